package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/balungpisah/gotong-royong-core/internal/idutil"
	"github.com/balungpisah/gotong-royong-core/internal/job/memqueue"
)

func TestWorkerRetriesThenSucceeds(t *testing.T) {
	q := memqueue.New()
	w := NewWorker(q, WorkerConfig{PromoteLimit: 10, DequeueMs: 50, BackoffBaseMs: 1, BackoffMaxMs: 5}, nil, nil)

	var attempts int32
	done := make(chan struct{})
	w.Register("flaky", func(_ context.Context, env Envelope) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			return errors.New("transient failure")
		}
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, q.Enqueue(ctx, Envelope{
		JobID: idutil.NewID(), JobType: "flaky", MaxAttempts: 5, RunAtMs: idutil.NowMillis(),
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not succeed in time")
	}
	require.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(2))
}

func TestWorkerPermanentFailureDoesNotRetryForever(t *testing.T) {
	q := memqueue.New()
	w := NewWorker(q, WorkerConfig{PromoteLimit: 10, DequeueMs: 20, BackoffBaseMs: 1, BackoffMaxMs: 2}, nil, nil)

	var attempts int32
	w.Register("always_fails", func(_ context.Context, env Envelope) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("permanent")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, q.Enqueue(ctx, Envelope{
		JobID: idutil.NewID(), JobType: "always_fails", MaxAttempts: 2, RunAtMs: idutil.NowMillis(),
	}))

	time.Sleep(300 * time.Millisecond)
	require.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}
