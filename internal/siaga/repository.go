package siaga

import (
	"context"
	"sync"

	"github.com/balungpisah/gotong-royong-core/internal/corerr"
)

// Repository is the persistence port for broadcasts, grounded on the
// same conflict-sensitive create/update shape as adaptivepath.Repository.
type Repository interface {
	CreateBroadcast(ctx context.Context, b Broadcast) (Broadcast, error)
	UpdateBroadcast(ctx context.Context, b Broadcast) (Broadcast, error)
	GetBroadcast(ctx context.Context, siagaID string) (*Broadcast, error)
	GetBroadcastByRequestID(ctx context.Context, scopeID, requestID string) (*Broadcast, error)

	AppendEvent(ctx context.Context, ev Event) (Event, error)
	ListEventsByBroadcast(ctx context.Context, siagaID string) ([]Event, error)
}

// MemoryRepository is an in-memory Repository.
type MemoryRepository struct {
	mu sync.Mutex

	byID      map[string]Broadcast
	byReqKey  map[string]string // scope_id|request_id -> siaga_id
	events    map[string][]Event
	eventSeen map[string]bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[string]Broadcast),
		byReqKey:  make(map[string]string),
		events:    make(map[string][]Event),
		eventSeen: make(map[string]bool),
	}
}

func reqKey(scopeID, requestID string) string { return scopeID + "|" + requestID }

func (r *MemoryRepository) CreateBroadcast(_ context.Context, b Broadcast) (Broadcast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := reqKey(b.ScopeID, b.RequestID)
	if _, exists := r.byReqKey[key]; exists {
		return Broadcast{}, corerr.ErrConflict
	}
	r.byID[b.SiagaID] = b
	r.byReqKey[key] = b.SiagaID
	return b, nil
}

func (r *MemoryRepository) UpdateBroadcast(_ context.Context, b Broadcast) (Broadcast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[b.SiagaID]; !ok {
		return Broadcast{}, corerr.NotFound("siaga broadcast")
	}
	key := reqKey(b.ScopeID, b.RequestID)
	if owner, exists := r.byReqKey[key]; exists && owner != b.SiagaID {
		return Broadcast{}, corerr.ErrConflict
	}
	r.byID[b.SiagaID] = b
	r.byReqKey[key] = b.SiagaID
	return b, nil
}

func (r *MemoryRepository) GetBroadcast(_ context.Context, siagaID string) (*Broadcast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[siagaID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *MemoryRepository) GetBroadcastByRequestID(_ context.Context, scopeID, requestID string) (*Broadcast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byReqKey[reqKey(scopeID, requestID)]
	if !ok {
		return nil, nil
	}
	b := r.byID[id]
	return &b, nil
}

func (r *MemoryRepository) AppendEvent(_ context.Context, ev Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := reqKey(ev.SubjectID, ev.RequestID)
	if r.eventSeen[key] {
		return Event{}, corerr.ErrConflict
	}
	r.eventSeen[key] = true
	r.events[ev.SubjectID] = append(r.events[ev.SubjectID], ev)
	return ev, nil
}

func (r *MemoryRepository) ListEventsByBroadcast(_ context.Context, siagaID string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events[siagaID]))
	copy(out, r.events[siagaID])
	return out, nil
}

var _ Repository = (*MemoryRepository)(nil)
