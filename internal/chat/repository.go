package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/balungpisah/gotong-royong-core/internal/corerr"
)

// Repository is the persistence port for threads, members, messages,
// cursors, and delivery events. Messages and delivery events are
// append-only with (thread_id, request_id) uniqueness, per §6.1.
type Repository interface {
	CreateThread(ctx context.Context, t Thread) (Thread, error)
	GetThread(ctx context.Context, threadID string) (*Thread, error)

	UpsertMember(ctx context.Context, m Member) (Member, error)
	GetMember(ctx context.Context, threadID, userID string) (*Member, error)
	ListMembers(ctx context.Context, threadID string) ([]Member, error)

	CreateMessage(ctx context.Context, m Message) (Message, error)
	GetMessageByRequestID(ctx context.Context, threadID, requestID string) (*Message, error)
	// ListMessagesAfter returns messages strictly after the cursor
	// (created_at_ms, message_id), lexicographic tie-break on
	// message_id, ascending, capped at limit.
	ListMessagesAfter(ctx context.Context, threadID string, sinceCreatedAtMs *int64, sinceMessageID *string, limit int) ([]Message, error)

	CreateDeliveryEvent(ctx context.Context, e DeliveryEvent) (DeliveryEvent, error)
	GetDeliveryEventByRequestID(ctx context.Context, threadID, requestID string) (*DeliveryEvent, error)

	PutReadCursor(ctx context.Context, c ReadCursor) (ReadCursor, error)
	GetReadCursor(ctx context.Context, threadID, userID string) (*ReadCursor, error)
}

// MemoryRepository is an in-process Repository, mutex-guarded like the
// teacher's map-backed stores.
type MemoryRepository struct {
	mu sync.Mutex

	threads map[string]Thread
	members map[string]map[string]Member // threadID -> userID -> Member

	messages      map[string][]Message            // threadID -> ordered messages
	messageByReq  map[string]string                // threadID|requestID -> message_id
	deliveryByReq map[string]DeliveryEvent          // threadID|requestID -> event
	cursors       map[string]ReadCursor             // threadID|userID -> cursor
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		threads:       make(map[string]Thread),
		members:       make(map[string]map[string]Member),
		messages:      make(map[string][]Message),
		messageByReq:  make(map[string]string),
		deliveryByReq: make(map[string]DeliveryEvent),
		cursors:       make(map[string]ReadCursor),
	}
}

func reqKey(threadID, requestID string) string { return threadID + "|" + requestID }
func memberKey(threadID, userID string) string { return threadID + "|" + userID }

func (r *MemoryRepository) CreateThread(_ context.Context, t Thread) (Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.threads[t.ThreadID]; exists {
		return Thread{}, corerr.Conflict("thread already exists")
	}
	r.threads[t.ThreadID] = t
	return t, nil
}

func (r *MemoryRepository) GetThread(_ context.Context, threadID string) (*Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[threadID]
	if !ok {
		return nil, nil
	}
	cp := t
	return &cp, nil
}

func (r *MemoryRepository) UpsertMember(_ context.Context, m Member) (Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byUser, ok := r.members[m.ThreadID]
	if !ok {
		byUser = make(map[string]Member)
		r.members[m.ThreadID] = byUser
	}
	byUser[m.UserID] = m
	return m, nil
}

func (r *MemoryRepository) GetMember(_ context.Context, threadID, userID string) (*Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byUser, ok := r.members[threadID]
	if !ok {
		return nil, nil
	}
	m, ok := byUser[userID]
	if !ok {
		return nil, nil
	}
	cp := m
	return &cp, nil
}

func (r *MemoryRepository) ListMembers(_ context.Context, threadID string) ([]Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byUser := r.members[threadID]
	out := make([]Member, 0, len(byUser))
	for _, m := range byUser {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *MemoryRepository) CreateMessage(_ context.Context, m Message) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := reqKey(m.ThreadID, m.RequestID)
	if _, exists := r.messageByReq[key]; exists {
		return Message{}, corerr.Conflict("message already exists for this request_id")
	}
	r.messages[m.ThreadID] = append(r.messages[m.ThreadID], m)
	r.messageByReq[key] = m.MessageID
	return m, nil
}

func (r *MemoryRepository) GetMessageByRequestID(_ context.Context, threadID, requestID string) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgID, ok := r.messageByReq[reqKey(threadID, requestID)]
	if !ok {
		return nil, nil
	}
	for _, m := range r.messages[threadID] {
		if m.MessageID == msgID {
			cp := m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListMessagesAfter(_ context.Context, threadID string, sinceCreatedAtMs *int64, sinceMessageID *string, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := append([]Message(nil), r.messages[threadID]...)
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAtMs != all[j].CreatedAtMs {
			return all[i].CreatedAtMs < all[j].CreatedAtMs
		}
		return all[i].MessageID < all[j].MessageID
	})

	out := make([]Message, 0, limit)
	for _, m := range all {
		if !afterCursor(m, sinceCreatedAtMs, sinceMessageID) {
			continue
		}
		out = append(out, m)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func afterCursor(m Message, sinceCreatedAtMs *int64, sinceMessageID *string) bool {
	if sinceCreatedAtMs == nil {
		return true
	}
	if m.CreatedAtMs != *sinceCreatedAtMs {
		return m.CreatedAtMs > *sinceCreatedAtMs
	}
	if sinceMessageID == nil {
		return false
	}
	return m.MessageID > *sinceMessageID
}

func (r *MemoryRepository) CreateDeliveryEvent(_ context.Context, e DeliveryEvent) (DeliveryEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := reqKey(e.ThreadID, e.RequestID)
	if existing, ok := r.deliveryByReq[key]; ok {
		return existing, corerr.Conflict("delivery event already exists for this request_id")
	}
	r.deliveryByReq[key] = e
	return e, nil
}

func (r *MemoryRepository) GetDeliveryEventByRequestID(_ context.Context, threadID, requestID string) (*DeliveryEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.deliveryByReq[reqKey(threadID, requestID)]
	if !ok {
		return nil, nil
	}
	cp := e
	return &cp, nil
}

func (r *MemoryRepository) PutReadCursor(_ context.Context, c ReadCursor) (ReadCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursors[memberKey(c.ThreadID, c.UserID)] = c
	return c, nil
}

func (r *MemoryRepository) GetReadCursor(_ context.Context, threadID, userID string) (*ReadCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cursors[memberKey(threadID, userID)]
	if !ok {
		return nil, nil
	}
	cp := c
	return &cp, nil
}

var _ Repository = (*MemoryRepository)(nil)
