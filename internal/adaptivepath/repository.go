package adaptivepath

import (
	"context"
	"sort"
	"sync"

	"github.com/balungpisah/gotong-royong-core/internal/corerr"
)

// Repository is the capability-set port this domain needs: conflict-
// sensitive create/update plus lookups, per §6.1.
type Repository interface {
	CreatePlan(ctx context.Context, plan Plan) (Plan, error)
	UpdatePlan(ctx context.Context, plan Plan, expectedVersion uint64) (Plan, error)
	GetPlan(ctx context.Context, planID string) (*Plan, error)
	GetPlanByEntityID(ctx context.Context, entityID string) (*Plan, error)
	GetPlanByRequestID(ctx context.Context, entityID, requestID string) (*Plan, error)

	CreateSuggestion(ctx context.Context, s Suggestion) (Suggestion, error)
	UpdateSuggestion(ctx context.Context, s Suggestion) (Suggestion, error)
	GetSuggestion(ctx context.Context, suggestionID string) (*Suggestion, error)
	ListSuggestionsByPlan(ctx context.Context, planID string) ([]Suggestion, error)

	AppendEvent(ctx context.Context, ev Event) (Event, error)
	ListEventsByPlan(ctx context.Context, planID string) ([]Event, error)
}

// MemoryRepository is an in-memory Repository, mutex-guarded like the
// teacher's snapshotServiceImpl and circuitbreaker.Manager. It tracks
// plans by both plan id and (entity_id, request_id) for the replay
// protocol of §4.2 step 8.
type MemoryRepository struct {
	mu sync.Mutex

	plansByID       map[string]Plan
	plansByEntityID map[string]string // entity_id -> plan_id
	plansByReqKey   map[string]string // entity_id|request_id -> plan_id

	suggestions map[string]Suggestion
	events      map[string][]Event // plan_id -> events
	eventByKey  map[string]bool    // subject_id|request_id -> seen
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		plansByID:       make(map[string]Plan),
		plansByEntityID: make(map[string]string),
		plansByReqKey:   make(map[string]string),
		suggestions:     make(map[string]Suggestion),
		events:          make(map[string][]Event),
		eventByKey:      make(map[string]bool),
	}
}

func reqKey(entityID, requestID string) string { return entityID + "|" + requestID }

func (r *MemoryRepository) CreatePlan(_ context.Context, plan Plan) (Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plansByEntityID[plan.EntityID]; exists {
		return Plan{}, corerr.ErrConflict
	}
	key := reqKey(plan.EntityID, plan.RequestID)
	if _, exists := r.plansByReqKey[key]; exists {
		return Plan{}, corerr.ErrConflict
	}

	r.plansByID[plan.PlanID] = plan
	r.plansByEntityID[plan.EntityID] = plan.PlanID
	r.plansByReqKey[key] = plan.PlanID
	return plan, nil
}

func (r *MemoryRepository) UpdatePlan(_ context.Context, plan Plan, expectedVersion uint64) (Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.plansByID[plan.PlanID]
	if !ok {
		return Plan{}, corerr.NotFound("plan")
	}
	if existing.Version != expectedVersion {
		return Plan{}, corerr.ErrConflict
	}

	key := reqKey(plan.EntityID, plan.RequestID)
	if owner, exists := r.plansByReqKey[key]; exists && owner != plan.PlanID {
		return Plan{}, corerr.ErrConflict
	}

	r.plansByID[plan.PlanID] = plan
	r.plansByReqKey[key] = plan.PlanID
	return plan, nil
}

func (r *MemoryRepository) GetPlan(_ context.Context, planID string) (*Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plansByID[planID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *MemoryRepository) GetPlanByEntityID(_ context.Context, entityID string) (*Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.plansByEntityID[entityID]
	if !ok {
		return nil, nil
	}
	p := r.plansByID[id]
	return &p, nil
}

func (r *MemoryRepository) GetPlanByRequestID(_ context.Context, entityID, requestID string) (*Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.plansByReqKey[reqKey(entityID, requestID)]
	if !ok {
		return nil, nil
	}
	p := r.plansByID[id]
	return &p, nil
}

func (r *MemoryRepository) CreateSuggestion(_ context.Context, s Suggestion) (Suggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.suggestions[s.SuggestionID]; exists {
		return Suggestion{}, corerr.ErrConflict
	}
	r.suggestions[s.SuggestionID] = s
	return s, nil
}

func (r *MemoryRepository) UpdateSuggestion(_ context.Context, s Suggestion) (Suggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.suggestions[s.SuggestionID]; !exists {
		return Suggestion{}, corerr.NotFound("suggestion")
	}
	r.suggestions[s.SuggestionID] = s
	return s, nil
}

func (r *MemoryRepository) GetSuggestion(_ context.Context, suggestionID string) (*Suggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.suggestions[suggestionID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *MemoryRepository) ListSuggestionsByPlan(_ context.Context, planID string) ([]Suggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Suggestion
	for _, s := range r.suggestions {
		if s.PlanID == planID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SuggestionID < out[j].SuggestionID })
	return out, nil
}

func (r *MemoryRepository) AppendEvent(_ context.Context, ev Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := reqKey(ev.SubjectID, ev.RequestID)
	if r.eventByKey[key] {
		return Event{}, corerr.ErrConflict
	}
	r.eventByKey[key] = true
	r.events[ev.SubjectID] = append(r.events[ev.SubjectID], ev)
	return ev, nil
}

func (r *MemoryRepository) ListEventsByPlan(_ context.Context, planID string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events[planID]))
	copy(out, r.events[planID])
	return out, nil
}

var _ Repository = (*MemoryRepository)(nil)

// sortBranches, sortPhases and sortCheckpoints order nodes by Order then id, per
// §4.2.1 ("Ordering: ... sorted by order then by id as tiebreak").
func sortBranches(b []Branch) {
	sort.Slice(b, func(i, j int) bool {
		if b[i].Order != b[j].Order {
			return b[i].Order < b[j].Order
		}
		return b[i].BranchID < b[j].BranchID
	})
}

func sortPhases(p []Phase) {
	sort.Slice(p, func(i, j int) bool {
		if p[i].Order != p[j].Order {
			return p[i].Order < p[j].Order
		}
		return p[i].PhaseID < p[j].PhaseID
	})
}

func sortCheckpoints(c []Checkpoint) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Order != c[j].Order {
			return c[i].Order < c[j].Order
		}
		return c[i].CheckpointID < c[j].CheckpointID
	})
}
