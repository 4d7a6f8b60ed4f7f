// Package adaptivepath implements the adaptive-path state machine of
// §4.2.1: branching plans with versioned edits, editorial field locks,
// and AI-authored suggestions subject to those locks.
package adaptivepath

import "github.com/balungpisah/gotong-royong-core/internal/actor"

const (
	MaxBranches          = 60
	MaxPhasesPerBranch   = 120
	MaxCheckpointsPhase  = 180
	MaxOrder             = 999
)

// Checkpoint is the leaf node of a plan.
type Checkpoint struct {
	CheckpointID string
	Title        string
	Notes        string
	Order        int
	LockedFields map[string]bool
}

// Phase owns checkpoints.
type Phase struct {
	PhaseID      string
	Title        string
	Order        int
	LockedFields map[string]bool
	Checkpoints  []Checkpoint
}

// Branch owns phases and may reference a parent checkpoint in another
// branch by id — a validated cross-link, never an ownership edge.
type Branch struct {
	BranchID           string
	Title              string
	Order              int
	ParentCheckpointID string
	LockedFields       map[string]bool
	Phases             []Phase
}

// Status is a coarse classification carried from the original
// implementation (original_source/crates/domain/src/adaptive_path.rs);
// it plays no role in the version/lock invariants. A plan in a terminal
// status (completed, archived) rejects proposing and accepting
// suggestions (see isTerminal in service.go).
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusArchived   Status = "archived"
)

// Plan is the adaptive-path root entity.
type Plan struct {
	PlanID          string
	EntityID        string
	Version         uint64
	Title           string
	Summary         string
	Hints           []string
	AuthorID        string
	AuthorUsername  string
	ProjectManagerID     string
	HighestProfileUserID string
	Status          Status
	Branches        []Branch
	RequestID       string
	CorrelationID   string
	CreatedAtMs     int64
	UpdatedAtMs     int64
	EventHash       string
	RetentionTag    string
}

// SuggestionStatus is one-way: pending -> accepted|rejected.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
)

// Suggestion carries a partial proposal (a PlanPatch) to be re-projected
// onto the current plan at acceptance time, per §4.2.1.
type Suggestion struct {
	SuggestionID  string
	PlanID        string
	BaseVersion   uint64
	Proposal      PlanPatch
	Status        SuggestionStatus
	CreatedBy     string
	Rationale     string
	ModelID       string
	PromptVersion string
}

// PlanPatch is a partial proposal: any branch/phase/checkpoint present
// by id is considered "proposed"; fields left as zero-value are
// treated as "no change" for that node. It mirrors the same tree shape
// as Plan so proposals can carry new nodes too.
type PlanPatch struct {
	Title    *string
	Summary  *string
	Branches []BranchPatch
}

type BranchPatch struct {
	BranchID           string
	Title              *string
	ParentCheckpointID *string
	Order              *int
	Phases             []PhasePatch
}

type PhasePatch struct {
	PhaseID string
	Title   *string
	Order   *int
	Checkpoints []CheckpointPatch
}

type CheckpointPatch struct {
	CheckpointID string
	Title        *string
	Notes        *string
	Order        *int
}

// Event is the append-only audit trail entry for a plan.
type Event struct {
	EventID       string
	SubjectID     string // = PlanID
	EventType     string
	Actor         actor.Snapshot
	RequestID     string
	CorrelationID string
	BaseVersion   *uint64
	NextVersion   *uint64
	OccurredAtMs  int64
	Metadata      map[string]string
	EventHash     string
	RetentionTag  string
}

const (
	EventPlanCreated        = "PlanCreated"
	EventPlanUpdated        = "PlanUpdated"
	EventSuggestionProposed = "SuggestionProposed"
	EventSuggestionAccepted = "SuggestionAccepted"
	EventSuggestionRejected = "SuggestionRejected"
)
