package realtime

import (
	"context"
	"time"
)

// HeartbeatInterval is the keepalive cadence of §4.3 step 5.
const HeartbeatInterval = 15 * time.Second

// Authorizer re-checks membership/authorization for a subject (e.g. a
// chat thread) on open and after a Lagged signal.
type Authorizer func(ctx context.Context) error

// Backfill fetches messages strictly after the given cursor, using the
// same list path as the initial catch-up.
type Backfill func(ctx context.Context, sinceCreatedAtMs *int64, sinceMessageID *string) ([]Message, error)

// Message is the minimal shape the protocol loop needs from a domain
// payload to dedupe and advance the replay cursor.
type Message interface {
	MessageID() string
	CreatedAtMs() int64
}

// Sink is implemented by a transport adapter (WebSocket, SSE) to push
// protocol events to the wire.
type Sink interface {
	SendMessage(m Message) error
	SendAdvisory(kind string) error // e.g. "missed_messages_reconnect"
	SendHeartbeat() error
	Close(policyReason string)
}

// RunSubscriberProtocol implements §4.3's five-step subscriber
// protocol, transport-agnostic. It blocks until ctx is cancelled, the
// sink errors, or the bus signals Closed.
func RunSubscriberProtocol(ctx context.Context, sub *Subscription, authorize Authorizer, backfill Backfill, initialBacklog []Message, sink Sink) error {
	seen := make(map[string]struct{}, len(initialBacklog))
	var cursorCreatedAtMs *int64
	var cursorMessageID *string

	for _, m := range initialBacklog {
		seen[m.MessageID()] = struct{}{}
		ts, id := m.CreatedAtMs(), m.MessageID()
		cursorCreatedAtMs, cursorMessageID = &ts, &id
	}

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-heartbeat.C:
			if err := sink.SendHeartbeat(); err != nil {
				return err
			}

		case sig, ok := <-sub.C():
			if !ok {
				sink.Close("bus_closed")
				return nil
			}
			switch sig.Kind {
			case SignalClosed:
				sink.Close("policy_closed")
				return nil

			case SignalLagged:
				if err := authorize(ctx); err != nil {
					sink.Close("authorization_revoked")
					return nil
				}
				if cursorCreatedAtMs == nil {
					continue
				}
				missed, err := backfill(ctx, cursorCreatedAtMs, cursorMessageID)
				if err != nil {
					return err
				}
				if len(missed) == 0 {
					if err := sink.SendAdvisory("missed_messages_reconnect"); err != nil {
						return err
					}
					continue
				}
				for _, m := range missed {
					if _, dup := seen[m.MessageID()]; dup {
						continue
					}
					seen[m.MessageID()] = struct{}{}
					if err := sink.SendMessage(m); err != nil {
						return err
					}
					ts, id := m.CreatedAtMs(), m.MessageID()
					cursorCreatedAtMs, cursorMessageID = &ts, &id
				}

			case SignalMessage:
				m, ok := sig.Message.(Message)
				if !ok {
					continue
				}
				if _, dup := seen[m.MessageID()]; dup {
					continue
				}
				seen[m.MessageID()] = struct{}{}
				if err := sink.SendMessage(m); err != nil {
					return err
				}
				ts, id := m.CreatedAtMs(), m.MessageID()
				cursorCreatedAtMs, cursorMessageID = &ts, &id
			}
		}
	}
}
