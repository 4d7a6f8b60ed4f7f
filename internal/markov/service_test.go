package markov

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/balungpisah/gotong-royong-core/internal/config"
	"github.com/balungpisah/gotong-royong-core/internal/metrics"
)

type fakeFetcher struct {
	calls int32
	fn    func(ctx context.Context, req Request) (interface{}, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, req Request) (interface{}, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.fn(ctx, req)
}

func testConfig() config.MarkovConfig {
	return config.MarkovConfig{
		BaseURL: "http://origin.example", PlatformToken: "tok",
		RetryMaxAttempts: 1, CacheMaxEntries: 10,
		ProfileTTLSec: 10, ProfileStaleSec: 30,
		GameplayTTLSec: 5, GameplayStaleSec: 15,
	}
}

func TestS6ReadThroughMissThenHit(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(_ context.Context, _ Request) (interface{}, error) { return "value-1", nil }}
	svc := NewService(fetcher, testConfig(), nil, metrics.NewForTest())
	req := Request{Class: ClassProfile, Path: "/profiles/u1"}

	v1, err := svc.Read(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "value-1", v1)

	v2, err := svc.Read(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "value-1", v2)
	require.Equal(t, int32(1), fetcher.calls, "second read within ttl must be a cache hit, not a new origin call")
}

func TestStaleReadReturnsImmediatelyAndRevalidatesInBackground(t *testing.T) {
	var version int32
	fetcher := &fakeFetcher{fn: func(_ context.Context, _ Request) (interface{}, error) {
		n := atomic.AddInt32(&version, 1)
		return n, nil
	}}
	cfg := testConfig()
	cfg.ProfileTTLSec = 0 // immediately stale after insertion
	cfg.ProfileStaleSec = 60
	svc := NewService(fetcher, cfg, nil, metrics.NewForTest())
	req := Request{Class: ClassProfile, Path: "/profiles/u1"}

	v1, err := svc.Read(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, int32(1), v1)

	// ttl=0 means fresh_until == inserted_at; the next read is already stale.
	v2, err := svc.Read(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, int32(1), v2, "stale read must return the old value immediately")

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&fetcher.calls) >= 2
	}, time.Second, 5*time.Millisecond, "background revalidation must eventually refresh")
}

func TestConcurrentColdMissesSingleFlight(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(_ context.Context, _ Request) (interface{}, error) {
		time.Sleep(30 * time.Millisecond)
		return "v", nil
	}}
	svc := NewService(fetcher, testConfig(), nil, metrics.NewForTest())
	req := Request{Class: ClassProfile, Path: "/profiles/u1"}

	done := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, err := svc.Read(context.Background(), req)
			require.NoError(t, err)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}
	require.Equal(t, int32(1), fetcher.calls, "concurrent cold misses on the same key must single-flight")
}

func TestUnknownCacheClassIsConfigurationError(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(_ context.Context, _ Request) (interface{}, error) { return nil, nil }}
	svc := NewService(fetcher, testConfig(), nil, metrics.NewForTest())
	_, err := svc.Read(context.Background(), Request{Class: "unknown", Path: "/x"})
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, ErrConfiguration, merr.Code)
}
