// Package moderation implements the content moderation workflow of
// §4.2.4: append-only decisions driving a content row's status, with
// scheduled auto-release for holds left unresolved.
package moderation

import "github.com/balungpisah/gotong-royong-core/internal/actor"

type Status string

const (
	StatusProcessing  Status = "processing"
	StatusUnderReview Status = "under_review"
	StatusPublished   Status = "published"
	StatusRejected    Status = "rejected"
)

func (s Status) Terminal() bool { return s == StatusPublished || s == StatusRejected }

type Action string

const (
	ActionPublishNow          Action = "publish_now"
	ActionPublishWithWarning  Action = "publish_with_warning"
	ActionHoldForReview       Action = "hold_for_review"
	ActionBlock               Action = "block"
)

// Decision is one append-only moderation verdict.
type Decision struct {
	DecisionID             string
	ContentID              string
	ContentKind            string
	Action                 Action
	Confidence             float64
	ReasonCode             string
	HoldExpiresAtMs        *int64
	AutoReleaseIfNoAction  bool
	RequestID              string
	DecidedByUserID        string
	DecidedAtMs            int64
}

// Content is the moderation root entity; Decisions is the append-only
// history, applied in order.
type Content struct {
	ContentID             string
	ContentKind           string
	AuthorID              string
	Status                Status
	Action                Action
	Confidence            float64
	HoldExpiresAtMs       *int64
	AutoReleaseIfNoAction bool
	LastDecisionID        string
	RequestID             string
	Decisions             []Decision
	CreatedAtMs           int64
	UpdatedAtMs           int64
	EventHash             string
	RetentionTag          string
}

// Event is the append-only audit trail entry for a content row.
type Event struct {
	EventID       string
	SubjectID     string // = ContentID
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
	EventDecisionRecorded = "ModerationDecisionRecorded"
	EventAutoReleaseJob   = "ModerationAutoRelease"
)

// AutoReleaseRequestID builds the deterministic, idempotent request_id
// for a scheduled auto-release job, per §4.2 step 9 and §4.2.4.
func AutoReleaseRequestID(contentID, holdDecisionRequestID string) string {
	return "moderation_auto_release:" + contentID + ":" + holdDecisionRequestID
}
