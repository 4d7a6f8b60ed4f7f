package idempotency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/balungpisah/gotong-royong-core/internal/metrics"
)

// Outcome is the result of Begin, per §4.1.
type Outcome int

const (
	Started Outcome = iota
	InProgress
	Replay
)

func (o Outcome) String() string {
	switch o {
	case Started:
		return "started"
	case InProgress:
		return "in_progress"
	case Replay:
		return "replay"
	default:
		return "unknown"
	}
}

// BeginResult is returned by Begin.
type BeginResult struct {
	Outcome  Outcome
	Response *Response // populated only when Outcome == Replay
}

// Config tunes the two TTL classes described in §4.1.
type Config struct {
	InProgressTTL time.Duration
	CompletedTTL  time.Duration
}

// DefaultConfig matches the spec's defaults: 60s in-progress, 24h completed.
func DefaultConfig() Config {
	return Config{
		InProgressTTL: 60 * time.Second,
		CompletedTTL:  24 * time.Hour,
	}
}

// Service implements the begin/complete protocol of §4.1 over a Store.
type Service struct {
	store   Store
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewService constructs a Service. log may be nil, in which case
// slog.Default() is used; m may be nil, in which case no metrics are
// recorded.
func NewService(store Store, cfg Config, log *slog.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, cfg: cfg, log: log, metrics: m}
}

// Begin attempts to reserve key for processing. See §4.1 and invariant 1.
func (s *Service) Begin(ctx context.Context, key Key) (BeginResult, error) {
	result, err := s.store.PutIfAbsent(ctx, key, Record{State: StateInProgress}, s.cfg.InProgressTTL)
	if err != nil {
		return BeginResult{}, fmt.Errorf("idempotency begin: %w", err)
	}

	if result.Stored {
		s.observe(key, Started)
		return BeginResult{Outcome: Started}, nil
	}

	existing := result.Existing
	if existing == nil {
		// The NX attempt raced with an expiry between PutIfAbsent's
		// internal check and our Get; treat as fresh Started since no
		// record is actually observable now.
		s.observe(key, Started)
		return BeginResult{Outcome: Started}, nil
	}

	switch existing.State {
	case StateCompleted:
		if existing.Response == nil {
			return BeginResult{}, fmt.Errorf("idempotency begin: completed record for %s:%s:%s has no response", key.EntityType, key.EntityID, key.RequestID)
		}
		s.observe(key, Replay)
		return BeginResult{Outcome: Replay, Response: existing.Response}, nil
	default:
		s.observe(key, InProgress)
		return BeginResult{Outcome: InProgress}, nil
	}
}

// Complete unconditionally records the outcome of a successfully
// persisted command. Callers MUST only invoke this after persistence
// has succeeded (§4.1 failure semantics; §5 cancellation note).
func (s *Service) Complete(ctx context.Context, key Key, resp Response) error {
	if err := s.store.Update(ctx, key, Record{State: StateCompleted, Response: &resp}, s.cfg.CompletedTTL); err != nil {
		return fmt.Errorf("idempotency complete: %w", err)
	}
	s.log.Debug("idempotency completed", "entity_type", key.EntityType, "entity_id", key.EntityID, "request_id", key.RequestID)
	return nil
}

func (s *Service) observe(key Key, outcome Outcome) {
	s.log.Debug("idempotency begin", "entity_type", key.EntityType, "entity_id", key.EntityID, "request_id", key.RequestID, "outcome", outcome.String())
	if s.metrics != nil {
		s.metrics.IdempotencyOutcome.WithLabelValues(key.EntityType, outcome.String()).Inc()
	}
}
