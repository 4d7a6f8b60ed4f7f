package moderation

import (
	"context"
	"sync"

	"github.com/balungpisah/gotong-royong-core/internal/corerr"
)

// Repository is the persistence port for moderation content rows.
type Repository interface {
	CreateContent(ctx context.Context, c Content) (Content, error)
	UpdateContent(ctx context.Context, c Content) (Content, error)
	GetContent(ctx context.Context, contentID string) (*Content, error)
	GetContentByRequestID(ctx context.Context, contentID, requestID string) (*Content, error)

	AppendEvent(ctx context.Context, ev Event) (Event, error)
	ListEventsByContent(ctx context.Context, contentID string) ([]Event, error)
}

// MemoryRepository is an in-memory Repository. Unlike the other three
// domains, moderation has no separate create-entity command — the
// first decision writes the content row; every later decision is an
// UpdateContent appending to the same row's Decisions slice.
type MemoryRepository struct {
	mu sync.Mutex

	byID      map[string]Content
	events    map[string][]Event
	eventSeen map[string]bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[string]Content),
		events:    make(map[string][]Event),
		eventSeen: make(map[string]bool),
	}
}

func reqKey(contentID, requestID string) string { return contentID + "|" + requestID }

func (r *MemoryRepository) CreateContent(_ context.Context, c Content) (Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[c.ContentID]; exists {
		return Content{}, corerr.ErrConflict
	}
	r.byID[c.ContentID] = c
	return c, nil
}

func (r *MemoryRepository) UpdateContent(_ context.Context, c Content) (Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[c.ContentID]; !ok {
		return Content{}, corerr.NotFound("moderation content")
	}
	r.byID[c.ContentID] = c
	return c, nil
}

func (r *MemoryRepository) GetContent(_ context.Context, contentID string) (*Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[contentID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// GetContentByRequestID returns the content row if requestID matches
// any decision already recorded on it, implementing the replay half of
// the idempotent-command protocol for write_decision.
func (r *MemoryRepository) GetContentByRequestID(_ context.Context, contentID, requestID string) (*Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[contentID]
	if !ok {
		return nil, nil
	}
	for _, d := range c.Decisions {
		if d.RequestID == requestID {
			return &c, nil
		}
	}
	return nil, nil
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

func (r *MemoryRepository) ListEventsByContent(_ context.Context, contentID string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events[contentID]))
	copy(out, r.events[contentID])
	return out, nil
}

var _ Repository = (*MemoryRepository)(nil)
