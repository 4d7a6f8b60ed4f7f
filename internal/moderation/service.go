package moderation

import (
	"context"
	"log/slog"

	"github.com/balungpisah/gotong-royong-core/internal/actor"
	"github.com/balungpisah/gotong-royong-core/internal/audithash"
	"github.com/balungpisah/gotong-royong-core/internal/corerr"
	"github.com/balungpisah/gotong-royong-core/internal/events"
	"github.com/balungpisah/gotong-royong-core/internal/idutil"
	"github.com/balungpisah/gotong-royong-core/internal/metrics"
)

const domainName = "moderation"

// Scheduler is the job-queue capability this domain needs: scheduling
// the deferred auto-release check at hold_expires_at_ms, per §4.2 step
// 9. internal/job.Worker's enqueue path satisfies this interface.
type Scheduler interface {
	ScheduleAt(ctx context.Context, runAtMs int64, jobType string, payload map[string]string, requestID string) error
}

// Service is the command engine for moderation content/decisions.
type Service struct {
	repo      Repository
	scheduler Scheduler
	log       *slog.Logger
	metrics   *metrics.Metrics
	emitter   events.EventEmitter
}

func NewService(repo Repository, scheduler Scheduler, log *slog.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, scheduler: scheduler, log: log, metrics: m}
}

// WithEventEmitter attaches an admin/observability event stream; command
// outcomes are emitted as CloudEvents alongside the existing metrics and
// log lines. Optional — nil emitter disables this entirely.
func (s *Service) WithEventEmitter(emitter events.EventEmitter) *Service {
	s.emitter = emitter
	return s
}

// WriteDecisionCommand is the input to WriteDecision.
type WriteDecisionCommand struct {
	Actor                 actor.Identity
	TokenRole             actor.Role
	ContentID             string
	ContentKind           string // only used when this is the first decision
	AuthorID              string // only used when this is the first decision
	Action                Action
	Confidence            float64
	HoldExpiresAtMs       *int64
	AutoReleaseIfNoAction bool
	RequestID             string
	CorrelationID         string
	RequestTSMs           int64
}

// WriteDecision applies invariant checks from §4.2.4, creates the
// content row on first use, appends the decision, and schedules a
// ModerationAutoRelease job when the decision holds for review with
// auto_release_if_no_action set.
func (s *Service) WriteDecision(ctx context.Context, cmd WriteDecisionCommand) (Content, error) {
	if !cmd.TokenRole.CanModerate() {
		s.recordOutcome("write_decision", "forbidden")
		return Content{}, corerr.Forbidden("actor does not have moderation privileges")
	}
	if cmd.Action == ActionHoldForReview && cmd.HoldExpiresAtMs == nil {
		return Content{}, corerr.Validation("hold_for_review requires hold_expires_at_ms")
	}
	if cmd.AutoReleaseIfNoAction && cmd.Action != ActionHoldForReview {
		return Content{}, corerr.Validation("auto_release_if_no_action requires action=hold_for_review")
	}

	existing, err := s.repo.GetContent(ctx, cmd.ContentID)
	if err != nil {
		return Content{}, corerr.Internal("get content", err)
	}

	if existing != nil {
		for _, d := range existing.Decisions {
			if d.RequestID == cmd.RequestID {
				s.recordOutcome("write_decision", "replay")
				return *existing, nil
			}
		}
	}

	now := idutil.NowMillis()
	decision := Decision{
		DecisionID:            idutil.NewID(),
		ContentID:             cmd.ContentID,
		ContentKind:           cmd.ContentKind,
		Action:                cmd.Action,
		Confidence:            cmd.Confidence,
		HoldExpiresAtMs:       cmd.HoldExpiresAtMs,
		AutoReleaseIfNoAction: cmd.AutoReleaseIfNoAction,
		RequestID:             cmd.RequestID,
		DecidedByUserID:       cmd.Actor.UserID,
		DecidedAtMs:           now,
	}

	var content Content
	if existing == nil {
		content = Content{
			ContentID:   cmd.ContentID,
			ContentKind: cmd.ContentKind,
			AuthorID:    cmd.AuthorID,
			CreatedAtMs: now,
		}
	} else {
		content = *existing
	}

	content.Status = statusFor(cmd.Action)
	content.Action = cmd.Action
	content.Confidence = cmd.Confidence
	content.HoldExpiresAtMs = cmd.HoldExpiresAtMs
	content.AutoReleaseIfNoAction = cmd.AutoReleaseIfNoAction
	content.LastDecisionID = decision.DecisionID
	content.RequestID = cmd.RequestID
	content.Decisions = append(append([]Decision(nil), content.Decisions...), decision)
	content.UpdatedAtMs = now

	hash, err := hashContent(content)
	if err != nil {
		return Content{}, corerr.Internal("hash content", err)
	}
	content.EventHash = hash

	var stored Content
	if existing == nil {
		stored, err = s.repo.CreateContent(ctx, content)
	} else {
		stored, err = s.repo.UpdateContent(ctx, content)
	}
	if err != nil {
		if corerr.CodeOf(err) == corerr.CodeConflict {
			if replay, getErr := s.repo.GetContentByRequestID(ctx, cmd.ContentID, cmd.RequestID); getErr == nil && replay != nil {
				s.recordOutcome("write_decision", "replay")
				return *replay, nil
			}
		}
		s.recordOutcome("write_decision", "error")
		return Content{}, err
	}

	ev := s.newEvent(EventDecisionRecorded, stored.ContentID, cmd.Actor, cmd.TokenRole, cmd.RequestID, cmd.CorrelationID, cmd.RequestTSMs, map[string]string{"action": string(cmd.Action)})
	if _, err := s.repo.AppendEvent(ctx, ev); err != nil && corerr.CodeOf(err) != corerr.CodeConflict {
		s.log.Warn("append decision event failed", "content_id", stored.ContentID, "error", err)
	}

	if cmd.Action == ActionHoldForReview && cmd.AutoReleaseIfNoAction && cmd.HoldExpiresAtMs != nil && s.scheduler != nil {
		jobReqID := AutoReleaseRequestID(cmd.ContentID, cmd.RequestID)
		payload := map[string]string{"content_id": cmd.ContentID, "hold_decision_request_id": cmd.RequestID}
		if err := s.scheduler.ScheduleAt(ctx, *cmd.HoldExpiresAtMs, EventAutoReleaseJob, payload, jobReqID); err != nil {
			s.log.Warn("schedule auto-release job failed", "content_id", cmd.ContentID, "error", err)
		}
	}

	s.recordOutcome("write_decision", "ok")
	return stored, nil
}

// AutoReleaseCommand is the input to AutoRelease, dispatched by the
// worker when a ModerationAutoRelease job fires.
type AutoReleaseCommand struct {
	Actor                 actor.Identity
	TokenRole             actor.Role
	ContentID             string
	HoldDecisionRequestID string
	RequestID             string
	CorrelationID         string
	RequestTSMs           int64
}

// AutoRelease implements §4.2.4's stale-hold no-op logic (scenario S4):
// it is a no-op-with-audit-decision if the content's current
// request_id has advanced past HoldDecisionRequestID, the status is no
// longer under_review, or auto_release_if_no_action was cleared.
// Otherwise it records a publish_now decision with reason_code
// "auto_release".
func (s *Service) AutoRelease(ctx context.Context, cmd AutoReleaseCommand) (Content, error) {
	if !cmd.TokenRole.IsAdmin() {
		s.recordOutcome("auto_release", "forbidden")
		return Content{}, corerr.Forbidden("auto-release may only be dispatched by admin/system")
	}

	content, err := s.repo.GetContent(ctx, cmd.ContentID)
	if err != nil {
		return Content{}, corerr.Internal("get content", err)
	}
	if content == nil {
		s.recordOutcome("auto_release", "not_found")
		return Content{}, corerr.NotFound("moderation content")
	}
	if content.RequestID == cmd.HoldDecisionRequestID && content.Status == StatusUnderReview && content.HoldExpiresAtMs != nil && cmd.RequestTSMs < *content.HoldExpiresAtMs {
		s.recordOutcome("auto_release", "validation_error")
		return Content{}, corerr.Validation("hold has not expired yet")
	}

	stale := content.RequestID != cmd.HoldDecisionRequestID
	notUnderReview := content.Status != StatusUnderReview
	cleared := !content.AutoReleaseIfNoAction

	if stale || notUnderReview || cleared {
		reason := "auto_release_stale_request"
		if notUnderReview && !stale {
			reason = "auto_release_not_under_review"
		} else if cleared && !stale {
			reason = "auto_release_cleared"
		}
		return s.recordAuditOnlyDecision(ctx, cmd, reason, content.Action, content.Status)
	}

	return s.recordAutoReleaseDecision(ctx, cmd)
}

// recordAuditOnlyDecision appends a decision that carries a reason_code
// but does not change the content's status/action — the no-op branch
// of AutoRelease.
func (s *Service) recordAuditOnlyDecision(ctx context.Context, cmd AutoReleaseCommand, reasonCode string, action Action, status Status) (Content, error) {
	content, err := s.repo.GetContent(ctx, cmd.ContentID)
	if err != nil {
		return Content{}, corerr.Internal("get content", err)
	}

	now := idutil.NowMillis()
	decision := Decision{
		DecisionID:      idutil.NewID(),
		ContentID:       cmd.ContentID,
		Action:          action,
		ReasonCode:      reasonCode,
		RequestID:       cmd.RequestID,
		DecidedByUserID: cmd.Actor.UserID,
		DecidedAtMs:     now,
	}

	next := *content
	next.Decisions = append(append([]Decision(nil), content.Decisions...), decision)
	next.UpdatedAtMs = now
	hash, err := hashContent(next)
	if err == nil {
		next.EventHash = hash
	}

	stored, err := s.repo.UpdateContent(ctx, next)
	if err != nil {
		s.recordOutcome("auto_release", "error")
		return Content{}, err
	}

	ev := s.newEvent(EventAutoReleaseJob, stored.ContentID, cmd.Actor, cmd.TokenRole, cmd.RequestID, cmd.CorrelationID, cmd.RequestTSMs, map[string]string{"reason_code": reasonCode})
	if _, err := s.repo.AppendEvent(ctx, ev); err != nil && corerr.CodeOf(err) != corerr.CodeConflict {
		s.log.Warn("append auto-release audit event failed", "content_id", stored.ContentID, "error", err)
	}

	s.recordOutcome("auto_release", "noop_"+reasonCode)
	return stored, nil
}

// recordAutoReleaseDecision appends a publish_now decision with
// reason_code=auto_release and moves the content to published.
func (s *Service) recordAutoReleaseDecision(ctx context.Context, cmd AutoReleaseCommand) (Content, error) {
	content, err := s.repo.GetContent(ctx, cmd.ContentID)
	if err != nil {
		return Content{}, corerr.Internal("get content", err)
	}

	now := idutil.NowMillis()
	decision := Decision{
		DecisionID:      idutil.NewID(),
		ContentID:       cmd.ContentID,
		Action:          ActionPublishNow,
		ReasonCode:      "auto_release",
		RequestID:       cmd.RequestID,
		DecidedByUserID: cmd.Actor.UserID,
		DecidedAtMs:     now,
	}

	next := *content
	next.Status = StatusPublished
	next.Action = ActionPublishNow
	next.AutoReleaseIfNoAction = false
	next.LastDecisionID = decision.DecisionID
	next.Decisions = append(append([]Decision(nil), content.Decisions...), decision)
	next.UpdatedAtMs = now
	hash, err := hashContent(next)
	if err == nil {
		next.EventHash = hash
	}

	stored, err := s.repo.UpdateContent(ctx, next)
	if err != nil {
		s.recordOutcome("auto_release", "error")
		return Content{}, err
	}

	ev := s.newEvent(EventAutoReleaseJob, stored.ContentID, cmd.Actor, cmd.TokenRole, cmd.RequestID, cmd.CorrelationID, cmd.RequestTSMs, map[string]string{"reason_code": "auto_release"})
	if _, err := s.repo.AppendEvent(ctx, ev); err != nil && corerr.CodeOf(err) != corerr.CodeConflict {
		s.log.Warn("append auto-release event failed", "content_id", stored.ContentID, "error", err)
	}

	s.recordOutcome("auto_release", "published")
	return stored, nil
}

func statusFor(a Action) Status {
	switch a {
	case ActionHoldForReview:
		return StatusUnderReview
	case ActionBlock:
		return StatusRejected
	case ActionPublishNow, ActionPublishWithWarning:
		return StatusPublished
	default:
		return StatusProcessing
	}
}

func hashContent(c Content) (string, error) {
	c.EventHash = ""
	return audithash.Compute(c)
}

func (s *Service) newEvent(eventType, subjectID string, id actor.Identity, role actor.Role, requestID, correlationID string, requestTSMs int64, meta map[string]string) Event {
	snap := actor.NewSnapshot(id, role, requestID, correlationID, requestTSMs)
	ev := Event{
		EventID:       idutil.NewID(),
		SubjectID:     subjectID,
		EventType:     eventType,
		Actor:         snap,
		RequestID:     requestID,
		CorrelationID: correlationID,
		OccurredAtMs:  idutil.NowMillis(),
		Metadata:      meta,
	}
	if hash, err := audithash.Compute(ev); err == nil {
		ev.EventHash = hash
	}
	return ev
}

func (s *Service) recordOutcome(operation, outcome string) {
	s.log.Debug("moderation command", "operation", operation, "outcome", outcome)
	if s.metrics != nil {
		s.metrics.CommandTotal.WithLabelValues(domainName, operation, outcome).Inc()
	}
	if s.emitter != nil {
		s.emitter.Emit(domainName+"."+operation, domainName, outcome, nil)
	}
}
