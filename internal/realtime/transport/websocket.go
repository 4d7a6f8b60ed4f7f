// Package transport adapts internal/realtime's subscriber protocol to
// concrete wire formats, grounded on internal/websocket.DAGStreamer's
// upgrader/register/read-loop shape (generalized here to one connection
// per subscriber rather than one shared hub, since each chat subscriber
// has its own authorization scope and replay cursor).
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/balungpisah/gotong-royong-core/internal/realtime"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeWait = 5 * time.Second

// wsSink implements realtime.Sink over a single *websocket.Conn.
type wsSink struct {
	conn *websocket.Conn
	log  *slog.Logger
}

type wireEnvelope struct {
	Type    string      `json:"type"` // "message", "advisory", "heartbeat", "closed"
	Message interface{} `json:"message,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

func (s *wsSink) SendMessage(m realtime.Message) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(wireEnvelope{Type: "message", Message: m})
}

func (s *wsSink) SendAdvisory(kind string) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(wireEnvelope{Type: "advisory", Reason: kind})
}

func (s *wsSink) SendHeartbeat() error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

func (s *wsSink) Close(policyReason string) {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.conn.WriteJSON(wireEnvelope{Type: "closed", Reason: policyReason})
	_ = s.conn.Close()
}

// ServeWebSocket upgrades the request and runs the subscriber protocol
// until the client disconnects or the context is cancelled. A read-loop
// goroutine drains (and discards) client frames purely to detect
// disconnects, same as DAGStreamer.HandleWebSocket.
func ServeWebSocket(
	w http.ResponseWriter, r *http.Request,
	sub *realtime.Subscription, authorize realtime.Authorizer, backfill realtime.Backfill,
	initialBacklog []realtime.Message, log *slog.Logger,
) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if log != nil {
			log.Warn("websocket upgrade failed", "error", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sink := &wsSink{conn: conn, log: log}
	if err := realtime.RunSubscriberProtocol(ctx, sub, authorize, backfill, initialBacklog, sink); err != nil && log != nil {
		log.Debug("subscriber protocol ended", "error", err)
	}
	sub.Close()
}
