// Package chat implements the realtime chat fan-out of §4.3: thread
// membership, message send with request-id replay, a catch-up cursor,
// and delivery events published onto the realtime bus. Grounded on the
// same conflict-sensitive repository shape as internal/siaga and
// internal/vault.
package chat

import "github.com/balungpisah/gotong-royong-core/internal/corerr"

const (
	MaxBodyLen        = 2000
	MaxAttachments     = 20
	CatchupDefaultLimit = 50
	CatchupMaxLimit     = 200
)

type PrivacyLevel string

const (
	PrivacyPublic  PrivacyLevel = "public"
	PrivacyPrivate PrivacyLevel = "private"
)

type MemberRole string

const (
	MemberOwner MemberRole = "owner"
	MemberAdmin MemberRole = "admin"
	MemberUser  MemberRole = "member"
)

// Thread is a chat room.
type Thread struct {
	ThreadID     string
	ScopeID      string
	CreatedBy    string
	PrivacyLevel PrivacyLevel
	CreatedAtMs  int64
	UpdatedAtMs  int64
}

// Member is one user's standing in a thread.
type Member struct {
	ThreadID    string
	UserID      string
	Role        MemberRole
	JoinedAtMs  int64
	LeftAtMs    *int64
	MuteUntilMs *int64
}

// Message is a single chat message, unique on (ThreadID, RequestID).
type Message struct {
	ThreadID    string
	MessageID   string
	AuthorID    string
	Body        string
	Attachments []string
	CreatedAtMs int64
	RequestID   string
}

// ReadCursor tracks a member's last-read position in a thread.
type ReadCursor struct {
	ThreadID          string
	UserID            string
	LastReadMessageID string
	LastReadAtMs      int64
}

type DeliveryEventType string

const (
	DeliveryMessageSent DeliveryEventType = "message_sent"
)

// DeliveryEvent is the durable record of a message having been
// delivered to the bus, unique on (ThreadID, RequestID) like Message.
type DeliveryEvent struct {
	EventID     string
	ThreadID    string
	MessageID   string
	EventType   DeliveryEventType
	OccurredAtMs int64
	RequestID   string
}

// Catchup is the catch-up cursor request shape of §4.3.
type Catchup struct {
	SinceCreatedAtMs *int64
	SinceMessageID   *string
	Limit            int
}

// NormalizeLimit clamps Limit to [1, CatchupMaxLimit], defaulting to
// CatchupDefaultLimit when unset (<=0).
func (c Catchup) NormalizeLimit() int {
	if c.Limit <= 0 {
		return CatchupDefaultLimit
	}
	if c.Limit > CatchupMaxLimit {
		return CatchupMaxLimit
	}
	return c.Limit
}

// Validate enforces that SinceMessageID implies SinceCreatedAtMs.
func (c Catchup) Validate() error {
	if c.SinceMessageID != nil && c.SinceCreatedAtMs == nil {
		return corerr.Validation("since_message_id requires since_created_at_ms")
	}
	return nil
}
