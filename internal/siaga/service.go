package siaga

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/balungpisah/gotong-royong-core/internal/actor"
	"github.com/balungpisah/gotong-royong-core/internal/audithash"
	"github.com/balungpisah/gotong-royong-core/internal/corerr"
	"github.com/balungpisah/gotong-royong-core/internal/events"
	"github.com/balungpisah/gotong-royong-core/internal/idutil"
	"github.com/balungpisah/gotong-royong-core/internal/metrics"
)

const domainName = "siaga"

// Service is the command engine for siaga broadcasts.
type Service struct {
	repo    Repository
	log     *slog.Logger
	metrics *metrics.Metrics
	emitter events.EventEmitter
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

// canManage implements the "author or admin/system" authorization rule
// shared by activate/update/close/cancel, per §4.2.2.
func canManage(b Broadcast, userID string, role actor.Role) bool {
	return role.IsAdmin() || (userID != "" && userID == b.AuthorID)
}

// CreateDraftCommand is the input to CreateDraft.
type CreateDraftCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	ScopeID       string
	EmergencyType string
	Severity      int
	Location      string
	Title         string
	Text          string
	Tags          []string
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

const (
	MaxTags       = 10
	MaxTagLength  = 32
)

// CreateDraft creates a new broadcast in StateDraft.
func (s *Service) CreateDraft(ctx context.Context, cmd CreateDraftCommand) (Broadcast, error) {
	if cmd.ScopeID == "" || cmd.Title == "" {
		s.recordOutcome("create_draft", "validation_error")
		return Broadcast{}, corerr.Validation("scope_id and title must not be empty")
	}
	if cmd.Severity < 1 || cmd.Severity > 5 {
		s.recordOutcome("create_draft", "validation_error")
		return Broadcast{}, corerr.Validation("severity must be within [1,5]")
	}
	if len(cmd.Tags) > MaxTags {
		s.recordOutcome("create_draft", "validation_error")
		return Broadcast{}, corerr.Validationf("broadcast may have at most %d tags", MaxTags)
	}
	for _, tag := range cmd.Tags {
		if utf8.RuneCountInString(tag) > MaxTagLength {
			s.recordOutcome("create_draft", "validation_error")
			return Broadcast{}, corerr.Validationf("tag %q exceeds %d characters", tag, MaxTagLength)
		}
	}

	now := idutil.NowMillis()
	b := Broadcast{
		SiagaID:       idutil.NewID(),
		ScopeID:       cmd.ScopeID,
		AuthorID:      cmd.Actor.UserID,
		EmergencyType: cmd.EmergencyType,
		Severity:      cmd.Severity,
		Location:      cmd.Location,
		Title:         cmd.Title,
		Text:          cmd.Text,
		Tags:          cmd.Tags,
		State:         StateDraft,
		RequestID:     cmd.RequestID,
		CorrelationID: cmd.CorrelationID,
		CreatedAtMs:   now,
		UpdatedAtMs:   now,
	}
	hash, err := hashBroadcast(b)
	if err != nil {
		return Broadcast{}, corerr.Internal("hash broadcast", err)
	}
	b.EventHash = hash

	created, err := s.repo.CreateBroadcast(ctx, b)
	if err != nil {
		if corerr.CodeOf(err) == corerr.CodeConflict {
			if existing, getErr := s.repo.GetBroadcastByRequestID(ctx, cmd.ScopeID, cmd.RequestID); getErr == nil && existing != nil {
				s.recordOutcome("create_draft", "replay")
				return *existing, nil
			}
		}
		s.recordOutcome("create_draft", "error")
		return Broadcast{}, err
	}

	s.recordOutcome("create_draft", "created")
	return created, nil
}

// ActivateCommand is the input to Activate.
type ActivateCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	SiagaID       string
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

// Activate transitions draft -> active.
func (s *Service) Activate(ctx context.Context, cmd ActivateCommand) (Broadcast, error) {
	b, err := s.repo.GetBroadcast(ctx, cmd.SiagaID)
	if err != nil {
		return Broadcast{}, corerr.Internal("get broadcast", err)
	}
	if b == nil {
		s.recordOutcome("activate", "not_found")
		return Broadcast{}, corerr.NotFound("siaga broadcast")
	}
	if !canManage(*b, cmd.Actor.UserID, cmd.TokenRole) {
		s.recordOutcome("activate", "forbidden")
		return Broadcast{}, corerr.Forbidden("only the author or admin/system may activate this broadcast")
	}
	if b.State != StateDraft {
		s.recordOutcome("activate", "invalid_state")
		return Broadcast{}, corerr.Conflict("broadcast must be in draft to activate")
	}

	next := *b
	next.State = StateActive
	next.RequestID = cmd.RequestID
	next.CorrelationID = cmd.CorrelationID
	next.UpdatedAtMs = idutil.NowMillis()
	return s.persistTransition(ctx, *b, next, EventActivated, cmd)
}

// UpdateCommand is the input to Update (non-terminal in-place edits).
type UpdateCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	SiagaID       string
	Title         *string
	Text          *string
	Location      *string
	Severity      *int
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

// Update edits a draft or active broadcast in place; terminal states
// reject the update.
func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (Broadcast, error) {
	b, err := s.repo.GetBroadcast(ctx, cmd.SiagaID)
	if err != nil {
		return Broadcast{}, corerr.Internal("get broadcast", err)
	}
	if b == nil {
		s.recordOutcome("update", "not_found")
		return Broadcast{}, corerr.NotFound("siaga broadcast")
	}
	if !canManage(*b, cmd.Actor.UserID, cmd.TokenRole) {
		s.recordOutcome("update", "forbidden")
		return Broadcast{}, corerr.Forbidden("only the author or admin/system may update this broadcast")
	}
	if b.State.Terminal() {
		s.recordOutcome("update", "invalid_state")
		return Broadcast{}, corerr.Conflict("broadcast is resolved or cancelled")
	}

	next := *b
	if cmd.Title != nil {
		next.Title = *cmd.Title
	}
	if cmd.Text != nil {
		next.Text = *cmd.Text
	}
	if cmd.Location != nil {
		next.Location = *cmd.Location
	}
	if cmd.Severity != nil {
		if *cmd.Severity < 1 || *cmd.Severity > 5 {
			return Broadcast{}, corerr.Validation("severity must be within [1,5]")
		}
		next.Severity = *cmd.Severity
	}
	next.RequestID = cmd.RequestID
	next.CorrelationID = cmd.CorrelationID
	next.UpdatedAtMs = idutil.NowMillis()
	return s.persistTransition(ctx, *b, next, EventUpdated, cmd)
}

// JoinResponderCommand is the input to JoinOrUpdateResponder.
type JoinResponderCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	SiagaID       string
	Status        ResponderStatus
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

// JoinOrUpdateResponder lets any authenticated actor join or update
// their own responder status while the broadcast is active. The
// operation is idempotent when the status is unchanged, per §4.2.2.
func (s *Service) JoinOrUpdateResponder(ctx context.Context, cmd JoinResponderCommand) (Broadcast, error) {
	b, err := s.repo.GetBroadcast(ctx, cmd.SiagaID)
	if err != nil {
		return Broadcast{}, corerr.Internal("get broadcast", err)
	}
	if b == nil {
		s.recordOutcome("join_responder", "not_found")
		return Broadcast{}, corerr.NotFound("siaga broadcast")
	}
	if b.State != StateActive {
		s.recordOutcome("join_responder", "invalid_state")
		return Broadcast{}, corerr.Conflict("broadcast must be active to join or update a responder")
	}
	if cmd.Actor.UserID == "" {
		return Broadcast{}, corerr.Forbidden("an authenticated actor is required to respond")
	}

	next := *b
	next.Responders = append([]Responder(nil), b.Responders...)
	now := idutil.NowMillis()

	idx := -1
	for i, r := range next.Responders {
		if r.UserID == cmd.Actor.UserID {
			idx = i
			break
		}
	}

	eventType := EventResponderJoined
	if idx >= 0 {
		if next.Responders[idx].Status == cmd.Status {
			s.recordOutcome("join_responder", "idempotent")
			return *b, nil
		}
		next.Responders[idx].Status = cmd.Status
		next.Responders[idx].UpdatedAtMs = now
		eventType = EventResponderUpdated
	} else {
		next.Responders = append(next.Responders, Responder{
			ResponderID: idutil.NewID(),
			UserID:      cmd.Actor.UserID,
			Status:      cmd.Status,
			JoinedAtMs:  now,
			UpdatedAtMs: now,
		})
	}

	next.RequestID = cmd.RequestID
	next.CorrelationID = cmd.CorrelationID
	next.UpdatedAtMs = now
	return s.persistTransition(ctx, *b, next, eventType, cmd)
}

// CloseCommand is the input to Close.
type CloseCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	SiagaID       string
	Reason        string
	Summary       string
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

// Close transitions active -> resolved, requiring a reason and summary,
// and freezes responder closure counters.
func (s *Service) Close(ctx context.Context, cmd CloseCommand) (Broadcast, error) {
	if cmd.Reason == "" || cmd.Summary == "" {
		return Broadcast{}, corerr.Validation("close requires a reason and a summary")
	}

	b, err := s.repo.GetBroadcast(ctx, cmd.SiagaID)
	if err != nil {
		return Broadcast{}, corerr.Internal("get broadcast", err)
	}
	if b == nil {
		s.recordOutcome("close", "not_found")
		return Broadcast{}, corerr.NotFound("siaga broadcast")
	}
	if !canManage(*b, cmd.Actor.UserID, cmd.TokenRole) {
		s.recordOutcome("close", "forbidden")
		return Broadcast{}, corerr.Forbidden("only the author or admin/system may close this broadcast")
	}
	if b.State != StateActive {
		s.recordOutcome("close", "invalid_state")
		return Broadcast{}, corerr.Conflict("broadcast must be active to close")
	}

	now := idutil.NowMillis()
	counters := make(map[ResponderStatus]int)
	for _, r := range b.Responders {
		counters[r.Status]++
	}

	next := *b
	next.State = StateResolved
	next.Closure = &Closure{Reason: cmd.Reason, Summary: cmd.Summary, Counters: counters, TotalResponders: len(b.Responders), ClosedAtMs: now}
	next.RequestID = cmd.RequestID
	next.CorrelationID = cmd.CorrelationID
	next.UpdatedAtMs = now
	return s.persistTransition(ctx, *b, next, EventClosed, cmd)
}

// CancelCommand is the input to Cancel.
type CancelCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	SiagaID       string
	Reason        string
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

// Cancel transitions draft/active -> cancelled, requiring a reason.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (Broadcast, error) {
	if cmd.Reason == "" {
		return Broadcast{}, corerr.Validation("cancel requires a reason")
	}

	b, err := s.repo.GetBroadcast(ctx, cmd.SiagaID)
	if err != nil {
		return Broadcast{}, corerr.Internal("get broadcast", err)
	}
	if b == nil {
		s.recordOutcome("cancel", "not_found")
		return Broadcast{}, corerr.NotFound("siaga broadcast")
	}
	if !canManage(*b, cmd.Actor.UserID, cmd.TokenRole) {
		s.recordOutcome("cancel", "forbidden")
		return Broadcast{}, corerr.Forbidden("only the author or admin/system may cancel this broadcast")
	}
	if b.State.Terminal() {
		s.recordOutcome("cancel", "invalid_state")
		return Broadcast{}, corerr.Conflict("broadcast is already resolved or cancelled")
	}

	next := *b
	next.State = StateCancelled
	next.Closure = &Closure{Reason: cmd.Reason, ClosedAtMs: idutil.NowMillis()}
	next.RequestID = cmd.RequestID
	next.CorrelationID = cmd.CorrelationID
	next.UpdatedAtMs = idutil.NowMillis()
	return s.persistTransition(ctx, *b, next, EventCancelled, cmd)
}

// commandMeta is implemented by every *Command type so persistTransition
// can read the shared actor/request fields without a type switch.
type commandMeta interface {
	actorID() actor.Identity
	tokenRole() actor.Role
	requestID() string
	correlationID() string
	requestTSMs() int64
}

func (c ActivateCommand) actorID() actor.Identity   { return c.Actor }
func (c ActivateCommand) tokenRole() actor.Role      { return c.TokenRole }
func (c ActivateCommand) requestID() string          { return c.RequestID }
func (c ActivateCommand) correlationID() string       { return c.CorrelationID }
func (c ActivateCommand) requestTSMs() int64          { return c.RequestTSMs }

func (c UpdateCommand) actorID() actor.Identity   { return c.Actor }
func (c UpdateCommand) tokenRole() actor.Role      { return c.TokenRole }
func (c UpdateCommand) requestID() string          { return c.RequestID }
func (c UpdateCommand) correlationID() string       { return c.CorrelationID }
func (c UpdateCommand) requestTSMs() int64          { return c.RequestTSMs }

func (c JoinResponderCommand) actorID() actor.Identity { return c.Actor }
func (c JoinResponderCommand) tokenRole() actor.Role    { return c.TokenRole }
func (c JoinResponderCommand) requestID() string        { return c.RequestID }
func (c JoinResponderCommand) correlationID() string     { return c.CorrelationID }
func (c JoinResponderCommand) requestTSMs() int64        { return c.RequestTSMs }

func (c CloseCommand) actorID() actor.Identity   { return c.Actor }
func (c CloseCommand) tokenRole() actor.Role      { return c.TokenRole }
func (c CloseCommand) requestID() string          { return c.RequestID }
func (c CloseCommand) correlationID() string       { return c.CorrelationID }
func (c CloseCommand) requestTSMs() int64          { return c.RequestTSMs }

func (c CancelCommand) actorID() actor.Identity   { return c.Actor }
func (c CancelCommand) tokenRole() actor.Role      { return c.TokenRole }
func (c CancelCommand) requestID() string          { return c.RequestID }
func (c CancelCommand) correlationID() string       { return c.CorrelationID }
func (c CancelCommand) requestTSMs() int64          { return c.RequestTSMs }

// persistTransition hashes, persists (with conflict/replay handling),
// and emits an audit event for a state transition shared by every
// command above.
func (s *Service) persistTransition(ctx context.Context, before, next Broadcast, eventType string, cmd commandMeta) (Broadcast, error) {
	hash, err := hashBroadcast(next)
	if err != nil {
		return Broadcast{}, corerr.Internal("hash broadcast", err)
	}
	next.EventHash = hash

	updated, err := s.repo.UpdateBroadcast(ctx, next)
	if err != nil {
		if corerr.CodeOf(err) == corerr.CodeConflict {
			if replay, getErr := s.repo.GetBroadcastByRequestID(ctx, before.ScopeID, cmd.requestID()); getErr == nil && replay != nil {
				s.recordOutcome(eventType, "replay")
				return *replay, nil
			}
		}
		s.recordOutcome(eventType, "error")
		return Broadcast{}, err
	}

	ev := s.newEvent(eventType, updated.SiagaID, cmd)
	if _, err := s.repo.AppendEvent(ctx, ev); err != nil && corerr.CodeOf(err) != corerr.CodeConflict {
		s.log.Warn("append siaga event failed", "siaga_id", updated.SiagaID, "event_type", eventType, "error", err)
	}

	s.recordOutcome(eventType, "ok")
	return updated, nil
}

func hashBroadcast(b Broadcast) (string, error) {
	b.EventHash = ""
	return audithash.Compute(b)
}

func (s *Service) newEvent(eventType, subjectID string, cmd commandMeta) Event {
	snap := actor.NewSnapshot(cmd.actorID(), cmd.tokenRole(), cmd.requestID(), cmd.correlationID(), cmd.requestTSMs())
	ev := Event{
		EventID:       idutil.NewID(),
		SubjectID:     subjectID,
		EventType:     eventType,
		Actor:         snap,
		RequestID:     cmd.requestID(),
		CorrelationID: cmd.correlationID(),
		OccurredAtMs:  idutil.NowMillis(),
	}
	if hash, err := audithash.Compute(ev); err == nil {
		ev.EventHash = hash
	}
	return ev
}

func (s *Service) recordOutcome(operation, outcome string) {
	s.log.Debug("siaga command", "operation", operation, "outcome", outcome)
	if s.metrics != nil {
		s.metrics.CommandTotal.WithLabelValues(domainName, operation, outcome).Inc()
	}
	if s.emitter != nil {
		s.emitter.Emit(domainName+"."+operation, domainName, outcome, nil)
	}
}
