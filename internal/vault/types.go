// Package vault implements the sealed-entry state machine of §4.2.3:
// draft -> sealed -> (published | revoked | expired).
package vault

import "github.com/balungpisah/gotong-royong-core/internal/actor"

type State string

const (
	StateDraft     State = "draft"
	StateSealed    State = "sealed"
	StatePublished State = "published"
	StateRevoked   State = "revoked"
	StateExpired   State = "expired"
)

func (s State) Terminal() bool {
	return s == StatePublished || s == StateRevoked || s == StateExpired
}

const (
	MaxAttachmentRefs = 25
	MaxWali           = 20
	MaxTitleLength    = 200
)

// Entry is the vault root entity.
type Entry struct {
	VaultEntryID    string
	AuthorID        string
	State           State
	Title           string
	Payload         *string
	AttachmentRefs  []string
	Wali            []string
	SealedHash      *string
	EncryptionKeyID *string
	SealedAtMs      *int64
	RetentionPolicy *string
	RequestID       string
	CorrelationID   string
	CreatedAtMs     int64
	UpdatedAtMs     int64
	EventHash       string
	RetentionTag    string
}

// Event is the append-only audit trail entry for a vault entry.
type Event struct {
	EventID       string
	SubjectID     string // = VaultEntryID
	EventType     string
	Actor         actor.Snapshot
	RequestID     string
	CorrelationID string
	OccurredAtMs  int64
	Metadata      map[string]string
	EventHash     string
	RetentionTag  string
}

const (
	EventCreated        = "VaultEntryCreated"
	EventDraftUpdated   = "VaultDraftUpdated"
	EventTrusteeAdded   = "VaultTrusteeAdded"
	EventTrusteeRemoved = "VaultTrusteeRemoved"
	EventSealed         = "VaultSealed"
	EventPublished      = "VaultPublished"
	EventRevoked        = "VaultRevoked"
	EventExpired        = "VaultExpired"
	EventDraftDeleted   = "VaultDraftDeleted"
)
