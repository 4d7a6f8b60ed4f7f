package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/balungpisah/gotong-royong-core/internal/chat"
	"github.com/balungpisah/gotong-royong-core/internal/realtime"
	"github.com/balungpisah/gotong-royong-core/internal/realtime/transport"
)

type sendMessageRequest struct {
	Body        string   `json:"body"`
	Attachments []string `json:"attachments"`
}

// SendMessage handles POST /v1/chat/threads/{threadId}/messages.
func SendMessage(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, _ := requestActor(r)
		requestID, _, err := requestIDs(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req sendMessageRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}

		msg, err := svc.SendMessage(r.Context(), chat.SendMessageCommand{
			ThreadID:    pathVar(r, "threadId"),
			AuthorID:    actorID.UserID,
			Body:        req.Body,
			Attachments: req.Attachments,
			RequestID:   requestID,
			NowMs:       nowMs(),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

// Catchup handles GET /v1/chat/threads/{threadId}/messages.
func Catchup(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, _ := requestActor(r)
		q := r.URL.Query()

		cursor := chat.Catchup{Limit: chat.CatchupDefaultLimit}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				cursor.Limit = n
			}
		}
		if v := q.Get("since_created_at_ms"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				cursor.SinceCreatedAtMs = &n
			}
		}
		if v := q.Get("since_message_id"); v != "" {
			cursor.SinceMessageID = &v
		}

		msgs, err := svc.Catchup(r.Context(), pathVar(r, "threadId"), actorID.UserID, cursor, nowMs())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
	}
}

type markReadRequest struct {
	LastReadMessageID string `json:"last_read_message_id"`
}

// MarkRead handles PUT /v1/chat/threads/{threadId}/read-cursor.
func MarkRead(svc *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, _ := requestActor(r)
		var req markReadRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		cursor, err := svc.MarkRead(r.Context(), pathVar(r, "threadId"), actorID.UserID, req.LastReadMessageID, nowMs())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cursor)
	}
}

// Stream handles GET /v1/chat/threads/{threadId}/stream, picking
// WebSocket or SSE transport based on the Upgrade header, per §4.3's
// transport-agnostic subscriber protocol.
func Stream(svc *chat.Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threadID := pathVar(r, "threadId")
		actorID, _ := requestActor(r)
		userID := actorID.UserID
		now := nowMs()

		sub, err := svc.Subscribe(r.Context(), threadID, userID, now)
		if err != nil {
			writeError(w, err)
			return
		}
		defer sub.Close()

		authorizeFn := realtime.Authorizer(func(ctx context.Context) error {
			return svc.Reauthorize(ctx, threadID, userID, nowMs())
		})
		backfillFn := realtime.Backfill(func(ctx context.Context, sinceCreatedAtMs *int64, sinceMessageID *string) ([]realtime.Message, error) {
			msgs, err := svc.Catchup(ctx, threadID, userID, chat.Catchup{
				SinceCreatedAtMs: sinceCreatedAtMs,
				SinceMessageID:   sinceMessageID,
				Limit:            chat.CatchupMaxLimit,
			}, nowMs())
			if err != nil {
				return nil, err
			}
			return chat.WrapMessages(msgs), nil
		})

		var initialBacklog []realtime.Message
		if backlog, err := svc.Catchup(r.Context(), threadID, userID, chat.Catchup{Limit: chat.CatchupDefaultLimit}, now); err == nil {
			initialBacklog = chat.WrapMessages(backlog)
		}

		if r.Header.Get("Upgrade") == "websocket" {
			transport.ServeWebSocket(w, r, sub, authorizeFn, backfillFn, initialBacklog, log)
			return
		}
		transport.ServeSSE(w, r, sub, authorizeFn, backfillFn, initialBacklog, log)
	}
}
