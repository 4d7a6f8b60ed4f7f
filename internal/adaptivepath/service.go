package adaptivepath

import (
	"context"
	"log/slog"
	"time"

	"github.com/balungpisah/gotong-royong-core/internal/actor"
	"github.com/balungpisah/gotong-royong-core/internal/audithash"
	"github.com/balungpisah/gotong-royong-core/internal/corerr"
	"github.com/balungpisah/gotong-royong-core/internal/events"
	"github.com/balungpisah/gotong-royong-core/internal/idutil"
	"github.com/balungpisah/gotong-royong-core/internal/metrics"
)

const domainName = "adaptive_path"

// Service is the command engine for the adaptive-path state machine,
// grounded on the teacher's arbitrator-style "validate, mutate, persist,
// audit" command handlers.
type Service struct {
	repo    Repository
	log     *slog.Logger
	metrics *metrics.Metrics
	emitter events.EventEmitter // nil unless an admin/observability stream is attached
}

func NewService(repo Repository, log *slog.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, metrics: m}
}

// WithEventEmitter attaches an admin/observability event stream; command
// outcomes are emitted as CloudEvents alongside the existing metrics and
// log lines. Optional — nil emitter disables this entirely.
func (s *Service) WithEventEmitter(emitter events.EventEmitter) *Service {
	s.emitter = emitter
	return s
}

// CreatePlanCommand is the input to CreatePlan.
type CreatePlanCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
	Input         CreatePlanInput
}

// CreatePlan builds a brand-new plan at version 1 and appends a
// PlanCreated event, per §4.2 steps 1-9. Replaying the same
// (entity_id, request_id) pair returns the already-created plan
// instead of erroring, per the idempotent-command protocol.
func (s *Service) CreatePlan(ctx context.Context, cmd CreatePlanCommand) (Plan, error) {
	start := time.Now()
	defer s.observeDuration("create_plan", start)

	if err := validateCreate(cmd.Input); err != nil {
		s.recordOutcome("create_plan", "validation_error")
		return Plan{}, err
	}

	now := idutil.NowMillis()
	branches := make([]Branch, len(cmd.Input.Branches))
	for i, b := range cmd.Input.Branches {
		branches[i] = deepCopyBranch(b)
		if branches[i].LockedFields == nil {
			branches[i].LockedFields = map[string]bool{}
		}
		for pi := range branches[i].Phases {
			if branches[i].Phases[pi].LockedFields == nil {
				branches[i].Phases[pi].LockedFields = map[string]bool{}
			}
			for ci := range branches[i].Phases[pi].Checkpoints {
				if branches[i].Phases[pi].Checkpoints[ci].LockedFields == nil {
					branches[i].Phases[pi].Checkpoints[ci].LockedFields = map[string]bool{}
				}
			}
		}
	}
	sortBranches(branches)

	plan := Plan{
		PlanID:               idutil.NewID(),
		EntityID:             cmd.Input.EntityID,
		Version:              1,
		Title:                cmd.Input.Title,
		Summary:              cmd.Input.Summary,
		Hints:                append([]string(nil), cmd.Input.Hints...),
		AuthorID:             cmd.Actor.UserID,
		AuthorUsername:       cmd.Actor.Username,
		ProjectManagerID:     cmd.Actor.UserID,
		HighestProfileUserID: cmd.Actor.UserID,
		Status:               StatusDraft,
		Branches:             branches,
		RequestID:            cmd.RequestID,
		CorrelationID:        cmd.CorrelationID,
		CreatedAtMs:          now,
		UpdatedAtMs:          now,
	}

	hash, err := hashPlan(plan)
	if err != nil {
		return Plan{}, corerr.Internal("hash plan", err)
	}
	plan.EventHash = hash

	created, err := s.repo.CreatePlan(ctx, plan)
	if err != nil {
		if corerr.CodeOf(err) == corerr.CodeConflict {
			existing, getErr := s.repo.GetPlanByRequestID(ctx, cmd.Input.EntityID, cmd.RequestID)
			if getErr == nil && existing != nil {
				s.recordOutcome("create_plan", "replay")
				return *existing, nil
			}
		}
		s.recordOutcome("create_plan", "error")
		return Plan{}, err
	}

	ev := s.newEvent(EventPlanCreated, created.PlanID, cmd.Actor, cmd.TokenRole, cmd.RequestID, cmd.CorrelationID, cmd.RequestTSMs, nil, &created.Version, nil)
	if _, err := s.repo.AppendEvent(ctx, ev); err != nil && corerr.CodeOf(err) != corerr.CodeConflict {
		s.log.Warn("append PlanCreated event failed", "plan_id", created.PlanID, "error", err)
	}

	s.recordOutcome("create_plan", "created")
	return created, nil
}

// UpdatePlanCommand is the input to UpdatePlan.
type UpdatePlanCommand struct {
	Actor           actor.Identity
	TokenRole       actor.Role
	PlanID          string
	ExpectedVersion uint64
	RequestID       string
	CorrelationID   string
	RequestTSMs     int64
	Patch           PlanPatch
}

// UpdatePlan applies a direct, privileged edit: any field actually
// changed is added to its node's locked_fields, per invariant 4. Only
// the plan's project_manager/highest_profile_user or an elevated token
// role may call this, per §4.2.1.
func (s *Service) UpdatePlan(ctx context.Context, cmd UpdatePlanCommand) (Plan, error) {
	existing, err := s.repo.GetPlan(ctx, cmd.PlanID)
	if err != nil {
		return Plan{}, corerr.Internal("get plan", err)
	}
	if existing == nil {
		s.recordOutcome("update_plan", "not_found")
		return Plan{}, corerr.NotFound("plan")
	}

	if !canDirectlyEdit(*existing, cmd.Actor.UserID, cmd.TokenRole) {
		s.recordOutcome("update_plan", "forbidden")
		return Plan{}, corerr.Forbidden("only the project manager, highest profile user, or an elevated role may update this plan")
	}

	if existing.Version != cmd.ExpectedVersion {
		replay, getErr := s.repo.GetPlanByRequestID(ctx, existing.EntityID, cmd.RequestID)
		if getErr == nil && replay != nil {
			s.recordOutcome("update_plan", "replay")
			return *replay, nil
		}
		s.recordOutcome("update_plan", "conflict")
		return Plan{}, corerr.ErrConflict
	}

	next := deepCopyPlan(*existing)
	next = applyPlanPatch(next, cmd.Patch, modeDirectUpdate)
	next.Version = existing.Version + 1
	next.RequestID = cmd.RequestID
	next.CorrelationID = cmd.CorrelationID
	next.UpdatedAtMs = idutil.NowMillis()

	hash, err := hashPlan(next)
	if err != nil {
		return Plan{}, corerr.Internal("hash plan", err)
	}
	next.EventHash = hash

	updated, err := s.repo.UpdatePlan(ctx, next, existing.Version)
	if err != nil {
		if corerr.CodeOf(err) == corerr.CodeConflict {
			replay, getErr := s.repo.GetPlanByRequestID(ctx, existing.EntityID, cmd.RequestID)
			if getErr == nil && replay != nil {
				s.recordOutcome("update_plan", "replay")
				return *replay, nil
			}
		}
		s.recordOutcome("update_plan", "error")
		return Plan{}, err
	}

	base := existing.Version
	ev := s.newEvent(EventPlanUpdated, updated.PlanID, cmd.Actor, cmd.TokenRole, cmd.RequestID, cmd.CorrelationID, cmd.RequestTSMs, &base, &updated.Version, nil)
	if _, err := s.repo.AppendEvent(ctx, ev); err != nil && corerr.CodeOf(err) != corerr.CodeConflict {
		s.log.Warn("append PlanUpdated event failed", "plan_id", updated.PlanID, "error", err)
	}

	s.recordOutcome("update_plan", "updated")
	return updated, nil
}

// canDirectlyEdit implements §4.2.1's authorization rule: the plan's
// project_manager or highest_profile_user, or any elevated token role.
func canDirectlyEdit(plan Plan, userID string, role actor.Role) bool {
	if role.IsElevated() {
		return true
	}
	return userID != "" && (userID == plan.ProjectManagerID || userID == plan.HighestProfileUserID)
}

// ProposeSuggestionCommand is the input to ProposeSuggestion.
type ProposeSuggestionCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	PlanID        string
	BaseVersion   uint64
	Proposal      PlanPatch
	Rationale     string
	ModelID       string
	PromptVersion string
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

// ProposeSuggestion records a pending suggestion against a plan. The
// suggestion is not applied yet — AcceptSuggestion re-projects it onto
// the plan's current state at acceptance time.
func (s *Service) ProposeSuggestion(ctx context.Context, cmd ProposeSuggestionCommand) (Suggestion, error) {
	plan, err := s.repo.GetPlan(ctx, cmd.PlanID)
	if err != nil {
		return Suggestion{}, corerr.Internal("get plan", err)
	}
	if plan == nil {
		s.recordOutcome("propose_suggestion", "not_found")
		return Suggestion{}, corerr.NotFound("plan")
	}
	if isTerminal(plan.Status) {
		s.recordOutcome("propose_suggestion", "terminal")
		return Suggestion{}, corerr.Conflict("plan is in a terminal status and accepts no further suggestions")
	}

	sug := Suggestion{
		SuggestionID:  idutil.NewID(),
		PlanID:        cmd.PlanID,
		BaseVersion:   cmd.BaseVersion,
		Proposal:      cmd.Proposal,
		Status:        SuggestionPending,
		CreatedBy:     cmd.Actor.UserID,
		Rationale:     cmd.Rationale,
		ModelID:       cmd.ModelID,
		PromptVersion: cmd.PromptVersion,
	}

	created, err := s.repo.CreateSuggestion(ctx, sug)
	if err != nil {
		s.recordOutcome("propose_suggestion", "error")
		return Suggestion{}, err
	}

	ev := s.newEvent(EventSuggestionProposed, created.SuggestionID, cmd.Actor, cmd.TokenRole, cmd.RequestID, cmd.CorrelationID, cmd.RequestTSMs, &cmd.BaseVersion, nil, map[string]string{"plan_id": cmd.PlanID})
	if _, err := s.repo.AppendEvent(ctx, ev); err != nil && corerr.CodeOf(err) != corerr.CodeConflict {
		s.log.Warn("append SuggestionProposed event failed", "suggestion_id", created.SuggestionID, "error", err)
	}

	s.recordOutcome("propose_suggestion", "proposed")
	return created, nil
}

// AcceptSuggestionCommand is the input to AcceptSuggestion.
type AcceptSuggestionCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	SuggestionID  string
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

// AcceptSuggestion re-projects the suggestion's proposal onto the
// plan's CURRENT state (not its base state), skipping any field already
// locked, per invariant 5 and scenario S2. Acceptance never adds new
// locks — only a direct UpdatePlan can do that.
func (s *Service) AcceptSuggestion(ctx context.Context, cmd AcceptSuggestionCommand) (Plan, error) {
	sug, err := s.repo.GetSuggestion(ctx, cmd.SuggestionID)
	if err != nil {
		return Plan{}, corerr.Internal("get suggestion", err)
	}
	if sug == nil {
		s.recordOutcome("accept_suggestion", "not_found")
		return Plan{}, corerr.NotFound("suggestion")
	}
	if sug.Status != SuggestionPending {
		s.recordOutcome("accept_suggestion", "not_pending")
		return Plan{}, corerr.Conflict("suggestion is not pending")
	}

	plan, err := s.repo.GetPlan(ctx, sug.PlanID)
	if err != nil {
		return Plan{}, corerr.Internal("get plan", err)
	}
	if plan == nil {
		return Plan{}, corerr.NotFound("plan")
	}
	if isTerminal(plan.Status) {
		s.recordOutcome("accept_suggestion", "terminal")
		return Plan{}, corerr.Conflict("plan is in a terminal status")
	}
	if !canDirectlyEdit(*plan, cmd.Actor.UserID, cmd.TokenRole) {
		s.recordOutcome("accept_suggestion", "forbidden")
		return Plan{}, corerr.Forbidden("only the project manager, highest profile user, or an elevated role may accept suggestions")
	}

	next := deepCopyPlan(*plan)
	next = applyPlanPatch(next, sug.Proposal, modeAcceptSuggestion)
	next.Version = plan.Version + 1
	next.RequestID = cmd.RequestID
	next.CorrelationID = cmd.CorrelationID
	next.UpdatedAtMs = idutil.NowMillis()

	hash, err := hashPlan(next)
	if err != nil {
		return Plan{}, corerr.Internal("hash plan", err)
	}
	next.EventHash = hash

	updated, err := s.repo.UpdatePlan(ctx, next, plan.Version)
	if err != nil {
		s.recordOutcome("accept_suggestion", "conflict")
		return Plan{}, err
	}

	acceptedSug := *sug
	acceptedSug.Status = SuggestionAccepted
	if _, err := s.repo.UpdateSuggestion(ctx, acceptedSug); err != nil {
		s.log.Warn("mark suggestion accepted failed", "suggestion_id", sug.SuggestionID, "error", err)
	}

	base := plan.Version
	ev := s.newEvent(EventSuggestionAccepted, sug.SuggestionID, cmd.Actor, cmd.TokenRole, cmd.RequestID, cmd.CorrelationID, cmd.RequestTSMs, &base, &updated.Version, map[string]string{"plan_id": plan.PlanID})
	if _, err := s.repo.AppendEvent(ctx, ev); err != nil && corerr.CodeOf(err) != corerr.CodeConflict {
		s.log.Warn("append SuggestionAccepted event failed", "suggestion_id", sug.SuggestionID, "error", err)
	}

	s.recordOutcome("accept_suggestion", "accepted")
	return updated, nil
}

// RejectSuggestionCommand is the input to RejectSuggestion.
type RejectSuggestionCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	SuggestionID  string
	Reason        string
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

// RejectSuggestion marks a pending suggestion rejected and emits a
// SuggestionRejected event; it never touches the plan itself.
func (s *Service) RejectSuggestion(ctx context.Context, cmd RejectSuggestionCommand) (Suggestion, error) {
	sug, err := s.repo.GetSuggestion(ctx, cmd.SuggestionID)
	if err != nil {
		return Suggestion{}, corerr.Internal("get suggestion", err)
	}
	if sug == nil {
		s.recordOutcome("reject_suggestion", "not_found")
		return Suggestion{}, corerr.NotFound("suggestion")
	}
	if sug.Status != SuggestionPending {
		s.recordOutcome("reject_suggestion", "not_pending")
		return Suggestion{}, corerr.Conflict("suggestion is not pending")
	}

	plan, err := s.repo.GetPlan(ctx, sug.PlanID)
	if err != nil {
		return Suggestion{}, corerr.Internal("get plan", err)
	}
	if plan == nil {
		return Suggestion{}, corerr.NotFound("plan")
	}
	if !canDirectlyEdit(*plan, cmd.Actor.UserID, cmd.TokenRole) {
		s.recordOutcome("reject_suggestion", "forbidden")
		return Suggestion{}, corerr.Forbidden("only the project manager, highest profile user, or an elevated role may reject suggestions")
	}

	rejected := *sug
	rejected.Status = SuggestionRejected
	updated, err := s.repo.UpdateSuggestion(ctx, rejected)
	if err != nil {
		s.recordOutcome("reject_suggestion", "error")
		return Suggestion{}, err
	}

	meta := map[string]string{"plan_id": plan.PlanID}
	if cmd.Reason != "" {
		meta["reason"] = cmd.Reason
	}
	base := sug.BaseVersion
	ev := s.newEvent(EventSuggestionRejected, sug.SuggestionID, cmd.Actor, cmd.TokenRole, cmd.RequestID, cmd.CorrelationID, cmd.RequestTSMs, &base, nil, meta)
	if _, err := s.repo.AppendEvent(ctx, ev); err != nil && corerr.CodeOf(err) != corerr.CodeConflict {
		s.log.Warn("append SuggestionRejected event failed", "suggestion_id", sug.SuggestionID, "error", err)
	}

	s.recordOutcome("reject_suggestion", "rejected")
	return updated, nil
}

func isTerminal(status Status) bool {
	return status == StatusCompleted || status == StatusArchived
}

// hashPlan computes the audit hash over a plan with its own EventHash
// field cleared, so the hash never includes itself.
func hashPlan(p Plan) (string, error) {
	p.EventHash = ""
	return audithash.Compute(p)
}

func (s *Service) newEvent(eventType, subjectID string, id actor.Identity, role actor.Role, requestID, correlationID string, requestTSMs int64, base, next *uint64, meta map[string]string) Event {
	snap := actor.NewSnapshot(id, role, requestID, correlationID, requestTSMs)
	ev := Event{
		EventID:       idutil.NewID(),
		SubjectID:     subjectID,
		EventType:     eventType,
		Actor:         snap,
		RequestID:     requestID,
		CorrelationID: correlationID,
		BaseVersion:   base,
		NextVersion:   next,
		OccurredAtMs:  idutil.NowMillis(),
		Metadata:      meta,
	}
	hash, err := audithash.Compute(ev)
	if err == nil {
		ev.EventHash = hash
	}
	return ev
}

func (s *Service) recordOutcome(operation, outcome string) {
	s.log.Debug("adaptive_path command", "operation", operation, "outcome", outcome)
	if s.metrics != nil {
		s.metrics.CommandTotal.WithLabelValues(domainName, operation, outcome).Inc()
	}
	if s.emitter != nil {
		s.emitter.Emit(domainName+"."+operation, domainName, outcome, nil)
	}
}

// observeDuration records a command's wall-clock duration, kept for
// parity with the teacher's escrow service command handlers, which wrap
// every mutation in a duration histogram observation.
func (s *Service) observeDuration(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.CommandDuration.WithLabelValues(domainName, operation).Observe(time.Since(start).Seconds())
	}
}
