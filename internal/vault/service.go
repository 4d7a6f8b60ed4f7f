package vault

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

const domainName = "vault"

// Service is the command engine for vault entries.
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

func isAuthor(e Entry, userID string) bool { return userID != "" && userID == e.AuthorID }

func isTrustee(e Entry, userID string) bool {
	for _, w := range e.Wali {
		if w == userID {
			return true
		}
	}
	return false
}

var errDraftOnly = corerr.Validation("entry must be in draft")

// CreateDraftCommand is the input to CreateDraft.
type CreateDraftCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	Title         string
	Payload       *string
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

func (s *Service) CreateDraft(ctx context.Context, cmd CreateDraftCommand) (Entry, error) {
	if utf8.RuneCountInString(cmd.Title) > MaxTitleLength {
		s.recordOutcome("create_draft", "validation_error")
		return Entry{}, corerr.Validationf("title must be at most %d characters", MaxTitleLength)
	}

	now := idutil.NowMillis()
	e := Entry{
		VaultEntryID:  idutil.NewID(),
		AuthorID:      cmd.Actor.UserID,
		State:         StateDraft,
		Title:         cmd.Title,
		Payload:       cmd.Payload,
		RequestID:     cmd.RequestID,
		CorrelationID: cmd.CorrelationID,
		CreatedAtMs:   now,
		UpdatedAtMs:   now,
	}
	hash, err := hashEntry(e)
	if err != nil {
		return Entry{}, corerr.Internal("hash entry", err)
	}
	e.EventHash = hash

	created, err := s.repo.CreateEntry(ctx, e)
	if err != nil {
		if corerr.CodeOf(err) == corerr.CodeConflict {
			if existing, getErr := s.repo.GetEntryByRequestID(ctx, cmd.Actor.UserID, cmd.RequestID); getErr == nil && existing != nil {
				s.recordOutcome("create_draft", "replay")
				return *existing, nil
			}
		}
		s.recordOutcome("create_draft", "error")
		return Entry{}, err
	}
	s.recordOutcome("create_draft", "created")
	return created, nil
}

// UpdateDraftCommand is the input to UpdateDraft.
type UpdateDraftCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	VaultEntryID  string
	Title         *string
	Payload       *string
	AttachmentRefs []string
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

// UpdateDraft edits title/payload/attachments while in draft only.
func (s *Service) UpdateDraft(ctx context.Context, cmd UpdateDraftCommand) (Entry, error) {
	e, err := s.requireDraftOwnedBy(ctx, cmd.VaultEntryID, cmd.Actor.UserID, "update_draft")
	if err != nil {
		return Entry{}, err
	}
	if cmd.Title != nil && utf8.RuneCountInString(*cmd.Title) > MaxTitleLength {
		return Entry{}, corerr.Validationf("title must be at most %d characters", MaxTitleLength)
	}

	next := *e
	if cmd.Title != nil {
		next.Title = *cmd.Title
	}
	if cmd.Payload != nil {
		next.Payload = cmd.Payload
	}
	if cmd.AttachmentRefs != nil {
		if len(cmd.AttachmentRefs) > MaxAttachmentRefs {
			return Entry{}, corerr.Validationf("at most %d attachment_refs are allowed", MaxAttachmentRefs)
		}
		next.AttachmentRefs = cmd.AttachmentRefs
	}
	next.RequestID = cmd.RequestID
	next.CorrelationID = cmd.CorrelationID
	next.UpdatedAtMs = idutil.NowMillis()
	return s.persistTransition(ctx, *e, next, EventDraftUpdated, cmd.Actor, cmd.TokenRole, cmd.RequestID, cmd.CorrelationID, cmd.RequestTSMs)
}

// AddTrusteeCommand is the input to AddTrustee.
type AddTrusteeCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	VaultEntryID  string
	TrusteeUserID string
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

func (s *Service) AddTrustee(ctx context.Context, cmd AddTrusteeCommand) (Entry, error) {
	e, err := s.requireDraftOwnedBy(ctx, cmd.VaultEntryID, cmd.Actor.UserID, "add_trustee")
	if err != nil {
		return Entry{}, err
	}
	if len(e.Wali) >= MaxWali {
		return Entry{}, corerr.Validationf("at most %d wali are allowed", MaxWali)
	}
	if isTrustee(*e, cmd.TrusteeUserID) {
		s.recordOutcome("add_trustee", "idempotent")
		return *e, nil
	}

	next := *e
	next.Wali = append(append([]string(nil), e.Wali...), cmd.TrusteeUserID)
	next.RequestID = cmd.RequestID
	next.CorrelationID = cmd.CorrelationID
	next.UpdatedAtMs = idutil.NowMillis()
	return s.persistTransition(ctx, *e, next, EventTrusteeAdded, cmd.Actor, cmd.TokenRole, cmd.RequestID, cmd.CorrelationID, cmd.RequestTSMs)
}

// RemoveTrusteeCommand is the input to RemoveTrustee.
type RemoveTrusteeCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	VaultEntryID  string
	TrusteeUserID string
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

func (s *Service) RemoveTrustee(ctx context.Context, cmd RemoveTrusteeCommand) (Entry, error) {
	e, err := s.requireDraftOwnedBy(ctx, cmd.VaultEntryID, cmd.Actor.UserID, "remove_trustee")
	if err != nil {
		return Entry{}, err
	}

	next := *e
	filtered := make([]string, 0, len(e.Wali))
	for _, w := range e.Wali {
		if w != cmd.TrusteeUserID {
			filtered = append(filtered, w)
		}
	}
	next.Wali = filtered
	next.RequestID = cmd.RequestID
	next.CorrelationID = cmd.CorrelationID
	next.UpdatedAtMs = idutil.NowMillis()
	return s.persistTransition(ctx, *e, next, EventTrusteeRemoved, cmd.Actor, cmd.TokenRole, cmd.RequestID, cmd.CorrelationID, cmd.RequestTSMs)
}

// DeleteDraftCommand is the input to DeleteDraft.
type DeleteDraftCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	VaultEntryID  string
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

// DeleteDraft removes a draft entry outright; draft-only, same as
// UpdateDraft/AddTrustee/RemoveTrustee.
func (s *Service) DeleteDraft(ctx context.Context, cmd DeleteDraftCommand) error {
	e, err := s.requireDraftOwnedBy(ctx, cmd.VaultEntryID, cmd.Actor.UserID, "delete_draft")
	if err != nil {
		return err
	}

	if err := s.repo.DeleteEntry(ctx, e.VaultEntryID); err != nil {
		s.recordOutcome("delete_draft", "error")
		return corerr.Internal("delete vault entry", err)
	}

	ev := s.newEvent(EventDraftDeleted, e.VaultEntryID, cmd.Actor, cmd.TokenRole, cmd.RequestID, cmd.CorrelationID, cmd.RequestTSMs)
	if _, err := s.repo.AppendEvent(ctx, ev); err != nil && corerr.CodeOf(err) != corerr.CodeConflict {
		s.log.Warn("append vault event failed", "vault_entry_id", e.VaultEntryID, "event_type", EventDraftDeleted, "error", err)
	}

	s.recordOutcome("delete_draft", "deleted")
	return nil
}

// SealCommand is the input to Seal.
type SealCommand struct {
	Actor           actor.Identity
	TokenRole       actor.Role
	VaultEntryID    string
	SealedHash      string
	EncryptionKeyID *string
	RequestID       string
	CorrelationID   string
	RequestTSMs     int64
}

// Seal requires a non-empty sealed_hash and freezes sealed_at_ms.
// Author only.
func (s *Service) Seal(ctx context.Context, cmd SealCommand) (Entry, error) {
	if cmd.SealedHash == "" {
		return Entry{}, corerr.Validation("sealed_hash must not be empty")
	}
	e, err := s.requireDraftOwnedBy(ctx, cmd.VaultEntryID, cmd.Actor.UserID, "seal")
	if err != nil {
		return Entry{}, err
	}

	now := idutil.NowMillis()
	next := *e
	next.State = StateSealed
	next.SealedHash = &cmd.SealedHash
	next.EncryptionKeyID = cmd.EncryptionKeyID
	next.SealedAtMs = &now
	next.RequestID = cmd.RequestID
	next.CorrelationID = cmd.CorrelationID
	next.UpdatedAtMs = now
	return s.persistTransition(ctx, *e, next, EventSealed, cmd.Actor, cmd.TokenRole, cmd.RequestID, cmd.CorrelationID, cmd.RequestTSMs)
}

// PublishCommand is the input to Publish.
type PublishCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	VaultEntryID  string
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

// Publish transitions sealed -> published. Author only.
func (s *Service) Publish(ctx context.Context, cmd PublishCommand) (Entry, error) {
	e, err := s.repo.GetEntry(ctx, cmd.VaultEntryID)
	if err != nil {
		return Entry{}, corerr.Internal("get vault entry", err)
	}
	if e == nil {
		s.recordOutcome("publish", "not_found")
		return Entry{}, corerr.NotFound("vault entry")
	}
	if !isAuthor(*e, cmd.Actor.UserID) {
		s.recordOutcome("publish", "forbidden")
		return Entry{}, corerr.Forbidden("only the author may publish a vault entry")
	}
	if e.State != StateSealed {
		s.recordOutcome("publish", "invalid_state")
		return Entry{}, corerr.Conflict("entry must be sealed to publish")
	}

	next := *e
	next.State = StatePublished
	next.RequestID = cmd.RequestID
	next.CorrelationID = cmd.CorrelationID
	next.UpdatedAtMs = idutil.NowMillis()
	return s.persistTransition(ctx, *e, next, EventPublished, cmd.Actor, cmd.TokenRole, cmd.RequestID, cmd.CorrelationID, cmd.RequestTSMs)
}

// RevokeCommand is the input to Revoke.
type RevokeCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	VaultEntryID  string
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

// Revoke transitions sealed -> revoked, clearing payload but preserving
// sealed_hash/encryption_key_id. Author, trustee (wali) or admin/system
// may revoke.
func (s *Service) Revoke(ctx context.Context, cmd RevokeCommand) (Entry, error) {
	e, err := s.repo.GetEntry(ctx, cmd.VaultEntryID)
	if err != nil {
		return Entry{}, corerr.Internal("get vault entry", err)
	}
	if e == nil {
		s.recordOutcome("revoke", "not_found")
		return Entry{}, corerr.NotFound("vault entry")
	}
	if !isAuthor(*e, cmd.Actor.UserID) && !isTrustee(*e, cmd.Actor.UserID) && !cmd.TokenRole.IsAdmin() {
		s.recordOutcome("revoke", "forbidden")
		return Entry{}, corerr.Forbidden("only the author, a trustee, or admin/system may revoke a vault entry")
	}
	if e.State != StateSealed {
		s.recordOutcome("revoke", "invalid_state")
		return Entry{}, corerr.Conflict("entry must be sealed to revoke")
	}

	next := *e
	next.State = StateRevoked
	next.Payload = nil
	next.RequestID = cmd.RequestID
	next.CorrelationID = cmd.CorrelationID
	next.UpdatedAtMs = idutil.NowMillis()
	return s.persistTransition(ctx, *e, next, EventRevoked, cmd.Actor, cmd.TokenRole, cmd.RequestID, cmd.CorrelationID, cmd.RequestTSMs)
}

// ExpireCommand is the input to Expire.
type ExpireCommand struct {
	Actor         actor.Identity
	TokenRole     actor.Role
	VaultEntryID  string
	RequestID     string
	CorrelationID string
	RequestTSMs   int64
}

// Expire transitions sealed -> expired, clearing payload but preserving
// sealed_hash/encryption_key_id. Author only.
func (s *Service) Expire(ctx context.Context, cmd ExpireCommand) (Entry, error) {
	e, err := s.repo.GetEntry(ctx, cmd.VaultEntryID)
	if err != nil {
		return Entry{}, corerr.Internal("get vault entry", err)
	}
	if e == nil {
		s.recordOutcome("expire", "not_found")
		return Entry{}, corerr.NotFound("vault entry")
	}
	if !isAuthor(*e, cmd.Actor.UserID) {
		s.recordOutcome("expire", "forbidden")
		return Entry{}, corerr.Forbidden("only the author may expire a vault entry")
	}
	if e.State != StateSealed {
		s.recordOutcome("expire", "invalid_state")
		return Entry{}, corerr.Conflict("entry must be sealed to expire")
	}

	next := *e
	next.State = StateExpired
	next.Payload = nil
	next.RequestID = cmd.RequestID
	next.CorrelationID = cmd.CorrelationID
	next.UpdatedAtMs = idutil.NowMillis()
	return s.persistTransition(ctx, *e, next, EventExpired, cmd.Actor, cmd.TokenRole, cmd.RequestID, cmd.CorrelationID, cmd.RequestTSMs)
}

// requireDraftOwnedBy fetches the entry, checks authorship, and
// enforces "draft-only" for the operation named, per §4.2.3.
func (s *Service) requireDraftOwnedBy(ctx context.Context, vaultEntryID, userID, op string) (*Entry, error) {
	e, err := s.repo.GetEntry(ctx, vaultEntryID)
	if err != nil {
		return nil, corerr.Internal("get vault entry", err)
	}
	if e == nil {
		s.recordOutcome(op, "not_found")
		return nil, corerr.NotFound("vault entry")
	}
	if !isAuthor(*e, userID) {
		s.recordOutcome(op, "forbidden")
		return nil, corerr.Forbidden("only the author may modify this vault entry")
	}
	if e.State != StateDraft {
		s.recordOutcome(op, "invalid_state")
		return nil, errDraftOnly
	}
	return e, nil
}

func (s *Service) persistTransition(ctx context.Context, before, next Entry, eventType string, id actor.Identity, role actor.Role, requestID, correlationID string, requestTSMs int64) (Entry, error) {
	hash, err := hashEntry(next)
	if err != nil {
		return Entry{}, corerr.Internal("hash entry", err)
	}
	next.EventHash = hash

	updated, err := s.repo.UpdateEntry(ctx, next)
	if err != nil {
		if corerr.CodeOf(err) == corerr.CodeConflict {
			if replay, getErr := s.repo.GetEntryByRequestID(ctx, before.AuthorID, requestID); getErr == nil && replay != nil {
				s.recordOutcome(eventType, "replay")
				return *replay, nil
			}
		}
		s.recordOutcome(eventType, "error")
		return Entry{}, err
	}

	ev := s.newEvent(eventType, updated.VaultEntryID, id, role, requestID, correlationID, requestTSMs)
	if _, err := s.repo.AppendEvent(ctx, ev); err != nil && corerr.CodeOf(err) != corerr.CodeConflict {
		s.log.Warn("append vault event failed", "vault_entry_id", updated.VaultEntryID, "event_type", eventType, "error", err)
	}

	s.recordOutcome(eventType, "ok")
	return updated, nil
}

func hashEntry(e Entry) (string, error) {
	e.EventHash = ""
	return audithash.Compute(e)
}

func (s *Service) newEvent(eventType, subjectID string, id actor.Identity, role actor.Role, requestID, correlationID string, requestTSMs int64) Event {
	snap := actor.NewSnapshot(id, role, requestID, correlationID, requestTSMs)
	ev := Event{
		EventID:       idutil.NewID(),
		SubjectID:     subjectID,
		EventType:     eventType,
		Actor:         snap,
		RequestID:     requestID,
		CorrelationID: correlationID,
		OccurredAtMs:  idutil.NowMillis(),
	}
	if hash, err := audithash.Compute(ev); err == nil {
		ev.EventHash = hash
	}
	return ev
}

func (s *Service) recordOutcome(operation, outcome string) {
	s.log.Debug("vault command", "operation", operation, "outcome", outcome)
	if s.metrics != nil {
		s.metrics.CommandTotal.WithLabelValues(domainName, operation, outcome).Inc()
	}
	if s.emitter != nil {
		s.emitter.Emit(domainName+"."+operation, domainName, outcome, nil)
	}
}
