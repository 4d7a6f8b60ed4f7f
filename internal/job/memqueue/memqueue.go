// Package memqueue is an in-process job.Queue for tests and small
// deployments: ready is a slice-backed FIFO, delayed is a
// container/heap min-heap on run_at_ms, processing is a map — grounded
// on the teacher's websocket.DAGStreamer channel-hub shape, generalized
// here into a priority queue instead of a fan-out broadcaster.
package memqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/balungpisah/gotong-royong-core/internal/job"
)

const dequeuePollInterval = 20 * time.Millisecond

// delayedItem is one entry in the min-heap, ordered by RunAtMs.
type delayedItem struct {
	env   job.Envelope
	index int
}

type delayedHeap []*delayedItem

func (h delayedHeap) Len() int            { return len(h) }
func (h delayedHeap) Less(i, j int) bool  { return h[i].env.RunAtMs < h[j].env.RunAtMs }
func (h delayedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *delayedHeap) Push(x interface{}) {
	item := x.(*delayedItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *delayedHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is an in-process implementation of job.Queue. Dequeue blocks by
// polling at a short fixed interval rather than wiring a condition
// variable — simpler to reason about and cheap at this queue's scale.
type Queue struct {
	mu sync.Mutex

	ready      []job.Envelope
	delayed    delayedHeap
	processing map[string]job.Envelope

	now func() time.Time
}

func New() *Queue {
	q := &Queue{
		delayed:    delayedHeap{},
		processing: make(map[string]job.Envelope),
		now:        time.Now,
	}
	heap.Init(&q.delayed)
	return q
}

func (q *Queue) Enqueue(_ context.Context, env job.Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if env.RunAtMs <= q.now().UnixMilli() {
		q.ready = append(q.ready, env)
		return nil
	}
	heap.Push(&q.delayed, &delayedItem{env: env})
	return nil
}

func (q *Queue) PromoteDue(_ context.Context, nowMs int64, limit int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	promoted := 0
	for promoted < limit && q.delayed.Len() > 0 {
		top := q.delayed[0]
		if top.env.RunAtMs > nowMs {
			break
		}
		item := heap.Pop(&q.delayed).(*delayedItem)
		q.ready = append(q.ready, item.env)
		promoted++
	}
	return promoted, nil
}

// Dequeue blocks up to timeoutMs for a ready job, polling at
// dequeuePollInterval.
func (q *Queue) Dequeue(ctx context.Context, timeoutMs int64) (*job.Envelope, error) {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	for {
		q.mu.Lock()
		if len(q.ready) > 0 {
			env := q.ready[0]
			q.ready = q.ready[1:]
			q.processing[env.JobID] = env
			q.mu.Unlock()
			return &env, nil
		}
		q.mu.Unlock()

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dequeuePollInterval):
		}
	}
}

func (q *Queue) Ack(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, jobID)
	return nil
}

func (q *Queue) RequeueProcessing(_ context.Context, limit int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	moved := 0
	for id, env := range q.processing {
		if moved >= limit {
			break
		}
		q.ready = append(q.ready, env)
		delete(q.processing, id)
		moved++
	}
	return moved, nil
}

var _ job.Queue = (*Queue)(nil)
