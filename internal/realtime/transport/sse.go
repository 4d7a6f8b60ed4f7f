package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/balungpisah/gotong-royong-core/internal/realtime"
)

// sseSink implements realtime.Sink by writing Server-Sent Events frames
// directly to an http.ResponseWriter, flushing after every write so the
// client observes messages as they're produced.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) writeEvent(event string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, body); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) SendMessage(m realtime.Message) error { return s.writeEvent("message", m) }
func (s *sseSink) SendAdvisory(kind string) error {
	return s.writeEvent("advisory", map[string]string{"reason": kind})
}
func (s *sseSink) SendHeartbeat() error { return s.writeEvent("heartbeat", map[string]string{}) }
func (s *sseSink) Close(policyReason string) {
	_ = s.writeEvent("closed", map[string]string{"reason": policyReason})
}

// ServeSSE streams the subscriber protocol as Server-Sent Events until
// the client disconnects (request context cancellation) or the
// protocol ends.
func ServeSSE(
	w http.ResponseWriter, r *http.Request,
	sub *realtime.Subscription, authorize realtime.Authorizer, backfill realtime.Backfill,
	initialBacklog []realtime.Message, log *slog.Logger,
) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sink := &sseSink{w: w, flusher: flusher}
	if err := realtime.RunSubscriberProtocol(ctx, sub, authorize, backfill, initialBacklog, sink); err != nil && log != nil {
		log.Debug("sse subscriber protocol ended", "error", err)
	}
	sub.Close()
}
