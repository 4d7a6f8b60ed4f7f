package markov

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/balungpisah/gotong-royong-core/internal/config"
	"github.com/balungpisah/gotong-royong-core/internal/metrics"
)

// Fetcher is the origin call Service reads through to; satisfied by
// *Client, narrowed here so tests can substitute a stub.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (interface{}, error)
}

// Service is the typed read-through cache facade of §4.5: SWR reads
// backed by an LRU store, single-flighted cold fetches, and background
// revalidation on stale hits guarded by a per-key in-flight set —
// grounded on internal/idempotency's lock-scoped map idiom, extended
// with golang.org/x/sync/singleflight for the cold-miss stampede guard
// (the one dependency in the teacher's stack purpose-built for this).
type Service struct {
	store    *cacheStore
	fetcher  Fetcher
	policies map[Class]ClassPolicy
	group    singleflight.Group

	revalMu      sync.Mutex
	revalidating map[string]struct{}

	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(fetcher Fetcher, cfg config.MarkovConfig, log *slog.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = slog.Default()
	}
	now := time.Now
	return &Service{
		store:   newCacheStore(cfg.CacheMaxEntries, now),
		fetcher: fetcher,
		policies: map[Class]ClassPolicy{
			ClassProfile:  {TTL: time.Duration(cfg.ProfileTTLSec) * time.Second, StaleWindow: time.Duration(cfg.ProfileStaleSec-cfg.ProfileTTLSec) * time.Second},
			ClassGameplay: {TTL: time.Duration(cfg.GameplayTTLSec) * time.Second, StaleWindow: time.Duration(cfg.GameplayStaleSec-cfg.GameplayTTLSec) * time.Second},
		},
		revalidating: make(map[string]struct{}),
		log:          log,
		metrics:      m,
		now:          now,
	}
}

// Read implements §4.5's three-branch SWR algorithm on req's cache key.
func (s *Service) Read(ctx context.Context, req Request) (interface{}, error) {
	key := req.CacheKey()
	policy, ok := s.policies[req.Class]
	if !ok {
		return nil, newError(ErrConfiguration, "unknown cache class", nil)
	}

	if value, result := s.store.lookup(key); result == lookupHit {
		s.recordResult(req.Class, ReadHit)
		return value, nil
	} else if result == lookupStale {
		s.recordResult(req.Class, ReadStale)
		s.triggerBackgroundRevalidate(key, req, policy)
		return value, nil
	}

	s.recordResult(req.Class, ReadMiss)
	return s.singleFlightFetch(ctx, key, req, policy)
}

// singleFlightFetch performs the miss/expired path of §4.5 step 3: a
// concurrent caller for the same key awaits the in-flight fetch instead
// of issuing a duplicate origin call.
func (s *Service) singleFlightFetch(ctx context.Context, key string, req Request, policy ClassPolicy) (interface{}, error) {
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		value, err := s.fetcher.Fetch(ctx, req)
		if err != nil {
			s.recordOrigin(req.Class, "error")
			return nil, err
		}
		s.store.insert(key, value, policy)
		s.recordOrigin(req.Class, "success")
		return value, nil
	})
	return v, err
}

// triggerBackgroundRevalidate spawns at most one in-flight refresh per
// key, guarded by revalidating, per §4.5 step 2.
func (s *Service) triggerBackgroundRevalidate(key string, req Request, policy ClassPolicy) {
	s.revalMu.Lock()
	if _, inFlight := s.revalidating[key]; inFlight {
		s.revalMu.Unlock()
		return
	}
	s.revalidating[key] = struct{}{}
	s.revalMu.Unlock()

	go func() {
		defer func() {
			s.revalMu.Lock()
			delete(s.revalidating, key)
			s.revalMu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		value, err := s.fetcher.Fetch(ctx, req)
		if err != nil {
			s.log.Warn("background revalidation failed", "cache_key", key, "error", err)
			s.recordOrigin(req.Class, "revalidate_error")
			return
		}
		s.store.insert(key, value, policy)
		s.recordOrigin(req.Class, "revalidate_success")
	}()
}

func (s *Service) recordResult(class Class, result ReadOutcome) {
	if s.metrics != nil {
		s.metrics.CacheResultTotal.WithLabelValues(string(class), string(result)).Inc()
	}
}

func (s *Service) recordOrigin(class Class, outcome string) {
	if s.metrics != nil {
		s.metrics.CacheOriginCalls.WithLabelValues(string(class), outcome).Inc()
	}
}

// Len reports the current cache size, for tests and diagnostics.
func (s *Service) Len() int { return s.store.len() }
