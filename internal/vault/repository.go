package vault

import (
	"context"
	"sync"

	"github.com/balungpisah/gotong-royong-core/internal/corerr"
)

// Repository is the persistence port for vault entries.
type Repository interface {
	CreateEntry(ctx context.Context, e Entry) (Entry, error)
	UpdateEntry(ctx context.Context, e Entry) (Entry, error)
	DeleteEntry(ctx context.Context, vaultEntryID string) error
	GetEntry(ctx context.Context, vaultEntryID string) (*Entry, error)
	GetEntryByRequestID(ctx context.Context, authorID, requestID string) (*Entry, error)

	AppendEvent(ctx context.Context, ev Event) (Event, error)
	ListEventsByEntry(ctx context.Context, vaultEntryID string) ([]Event, error)
}

// MemoryRepository is an in-memory Repository.
type MemoryRepository struct {
	mu sync.Mutex

	byID      map[string]Entry
	byReqKey  map[string]string // author_id|request_id -> vault_entry_id
	events    map[string][]Event
	eventSeen map[string]bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[string]Entry),
		byReqKey:  make(map[string]string),
		events:    make(map[string][]Event),
		eventSeen: make(map[string]bool),
	}
}

func reqKey(authorID, requestID string) string { return authorID + "|" + requestID }

func (r *MemoryRepository) CreateEntry(_ context.Context, e Entry) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := reqKey(e.AuthorID, e.RequestID)
	if _, exists := r.byReqKey[key]; exists {
		return Entry{}, corerr.ErrConflict
	}
	r.byID[e.VaultEntryID] = e
	r.byReqKey[key] = e.VaultEntryID
	return e, nil
}

func (r *MemoryRepository) UpdateEntry(_ context.Context, e Entry) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[e.VaultEntryID]; !ok {
		return Entry{}, corerr.NotFound("vault entry")
	}
	key := reqKey(e.AuthorID, e.RequestID)
	if owner, exists := r.byReqKey[key]; exists && owner != e.VaultEntryID {
		return Entry{}, corerr.ErrConflict
	}
	r.byID[e.VaultEntryID] = e
	r.byReqKey[key] = e.VaultEntryID
	return e, nil
}

func (r *MemoryRepository) DeleteEntry(_ context.Context, vaultEntryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[vaultEntryID]
	if !ok {
		return corerr.NotFound("vault entry")
	}
	delete(r.byID, vaultEntryID)
	delete(r.byReqKey, reqKey(e.AuthorID, e.RequestID))
	return nil
}

func (r *MemoryRepository) GetEntry(_ context.Context, vaultEntryID string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[vaultEntryID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *MemoryRepository) GetEntryByRequestID(_ context.Context, authorID, requestID string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byReqKey[reqKey(authorID, requestID)]
	if !ok {
		return nil, nil
	}
	e := r.byID[id]
	return &e, nil
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

func (r *MemoryRepository) ListEventsByEntry(_ context.Context, vaultEntryID string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events[vaultEntryID]))
	copy(out, r.events[vaultEntryID])
	return out, nil
}

var _ Repository = (*MemoryRepository)(nil)
