package chat

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/balungpisah/gotong-royong-core/internal/corerr"
	"github.com/balungpisah/gotong-royong-core/internal/events"
	"github.com/balungpisah/gotong-royong-core/internal/idutil"
	"github.com/balungpisah/gotong-royong-core/internal/metrics"
	"github.com/balungpisah/gotong-royong-core/internal/realtime"
)

// Service implements §4.3's chat send/catch-up/membership operations,
// publishing accepted sends onto the realtime bus after persistence —
// the bus holds no persistence responsibility of its own.
type Service struct {
	repo    Repository
	bus     *realtime.Bus
	relay   *RedisRelay // nil in single-process deployments
	log     *slog.Logger
	metrics *metrics.Metrics
	emitter events.EventEmitter
}

func NewService(repo Repository, bus *realtime.Bus, log *slog.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, bus: bus, log: log, metrics: m}
}

// WithRelay attaches a RedisRelay so sends also fan out to other server
// processes, for multi-instance deployments.
func (s *Service) WithRelay(relay *RedisRelay) *Service {
	s.relay = relay
	return s
}

// WithEventEmitter attaches an admin/observability event stream; command
// outcomes are emitted as CloudEvents alongside the existing metrics and
// log lines. Optional — nil emitter disables this entirely.
func (s *Service) WithEventEmitter(emitter events.EventEmitter) *Service {
	s.emitter = emitter
	return s
}

// BusMessage adapts Message to realtime.Message, since Message's own
// fields are named MessageID/CreatedAtMs and Go cannot have a method
// share a field's name on the same type.
type BusMessage struct{ Message }

func (b BusMessage) MessageID() string  { return b.Message.MessageID }
func (b BusMessage) CreatedAtMs() int64 { return b.Message.CreatedAtMs }

// WrapMessages adapts a slice of domain messages to realtime.Message,
// for passing catch-up/backfill results into the protocol loop.
func WrapMessages(msgs []Message) []realtime.Message {
	out := make([]realtime.Message, len(msgs))
	for i, m := range msgs {
		out[i] = BusMessage{m}
	}
	return out
}

// assertActorIsMember enforces §4.3's membership predicate.
func assertActorIsMember(m *Member, nowMs int64) error {
	if m == nil {
		return corerr.Validation("user is not a member of this thread")
	}
	if m.LeftAtMs != nil {
		return corerr.Validation("membership in thread has ended")
	}
	if m.MuteUntilMs != nil && nowMs < *m.MuteUntilMs {
		return corerr.Validation("member is currently muted")
	}
	return nil
}

// SendMessageCommand is a validated request to post into a thread.
type SendMessageCommand struct {
	ThreadID    string
	AuthorID    string
	Body        string
	Attachments []string
	RequestID   string
	NowMs       int64
}

// SendMessage persists the message and its delivery event, then
// publishes to the bus. Repeating the same (thread_id, request_id)
// returns the original message unchanged and emits no new event or
// publish, per invariant 7.
func (s *Service) SendMessage(ctx context.Context, cmd SendMessageCommand) (Message, error) {
	start := time.Now()
	if existing, err := s.repo.GetMessageByRequestID(ctx, cmd.ThreadID, cmd.RequestID); err != nil {
		return Message{}, err
	} else if existing != nil {
		s.recordOutcome("send_message", "replay")
		return *existing, nil
	}

	if n := utf8.RuneCountInString(cmd.Body); n == 0 || n > MaxBodyLen {
		return Message{}, corerr.Validation("body must be 1-2000 characters")
	}
	if len(cmd.Attachments) > MaxAttachments {
		return Message{}, corerr.Validation("at most 20 attachments allowed")
	}

	member, err := s.repo.GetMember(ctx, cmd.ThreadID, cmd.AuthorID)
	if err != nil {
		return Message{}, err
	}
	if err := assertActorIsMember(member, cmd.NowMs); err != nil {
		return Message{}, err
	}

	msg := Message{
		ThreadID:    cmd.ThreadID,
		MessageID:   idutil.NewID(),
		AuthorID:    cmd.AuthorID,
		Body:        cmd.Body,
		Attachments: cmd.Attachments,
		CreatedAtMs: cmd.NowMs,
		RequestID:   cmd.RequestID,
	}
	created, err := s.repo.CreateMessage(ctx, msg)
	if err != nil {
		return Message{}, err
	}

	event := DeliveryEvent{
		EventID:      idutil.NewID(),
		ThreadID:     cmd.ThreadID,
		MessageID:    created.MessageID,
		EventType:    DeliveryMessageSent,
		OccurredAtMs: cmd.NowMs,
		RequestID:    cmd.RequestID,
	}
	if _, err := s.repo.CreateDeliveryEvent(ctx, event); err != nil {
		return Message{}, err
	}

	if s.bus != nil {
		s.bus.Publish(cmd.ThreadID, "chat", BusMessage{created})
	}
	if s.relay != nil {
		if err := s.relay.PublishAcrossProcesses(ctx, cmd.ThreadID, created); err != nil {
			s.log.Warn("chat relay publish failed", "thread_id", cmd.ThreadID, "error", err)
		}
	}

	s.recordOutcome("send_message", "created")
	if s.metrics != nil {
		s.metrics.CommandDuration.WithLabelValues("chat", "send_message").Observe(time.Since(start).Seconds())
	}
	return created, nil
}

// Catchup returns the backlog for a subscriber opening a stream or
// recovering from a Lagged signal, after checking membership.
func (s *Service) Catchup(ctx context.Context, threadID, userID string, cursor Catchup, nowMs int64) ([]Message, error) {
	member, err := s.repo.GetMember(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}
	if err := assertActorIsMember(member, nowMs); err != nil {
		return nil, err
	}
	if err := cursor.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListMessagesAfter(ctx, threadID, cursor.SinceCreatedAtMs, cursor.SinceMessageID, cursor.NormalizeLimit())
}

// Subscribe opens a bus subscription for threadID after checking
// membership, for use by a transport adapter's protocol loop.
func (s *Service) Subscribe(ctx context.Context, threadID, userID string, nowMs int64) (*realtime.Subscription, error) {
	member, err := s.repo.GetMember(ctx, threadID, userID)
	if err != nil {
		return nil, err
	}
	if err := assertActorIsMember(member, nowMs); err != nil {
		return nil, err
	}
	return s.bus.Subscribe(threadID, "chat"), nil
}

// Reauthorize re-checks membership, used by a transport adapter on a
// Lagged signal per §4.3 step 3 (membership could have been revoked).
func (s *Service) Reauthorize(ctx context.Context, threadID, userID string, nowMs int64) error {
	member, err := s.repo.GetMember(ctx, threadID, userID)
	if err != nil {
		return err
	}
	return assertActorIsMember(member, nowMs)
}

func (s *Service) MarkRead(ctx context.Context, threadID, userID, lastReadMessageID string, nowMs int64) (ReadCursor, error) {
	return s.repo.PutReadCursor(ctx, ReadCursor{
		ThreadID:          threadID,
		UserID:            userID,
		LastReadMessageID: lastReadMessageID,
		LastReadAtMs:      nowMs,
	})
}

func (s *Service) recordOutcome(operation, outcome string) {
	s.log.Debug("chat command", "operation", operation, "outcome", outcome)
	if s.metrics != nil {
		s.metrics.CommandTotal.WithLabelValues("chat", operation, outcome).Inc()
	}
	if s.emitter != nil {
		s.emitter.Emit("chat."+operation, "chat", outcome, nil)
	}
}
