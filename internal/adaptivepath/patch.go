package adaptivepath

import "github.com/balungpisah/gotong-royong-core/internal/idutil"

// applyMode selects whether a patch is applied as a direct privileged
// update (locks accumulate, nothing is blocked) or as an accepted
// suggestion's re-projection (locked fields are skipped, nothing new
// is locked) — §4.2.1.
type applyMode int

const (
	modeDirectUpdate applyMode = iota
	modeAcceptSuggestion
)

// applyPlanPatch mutates a (already-cloned) plan in place and returns
// it, applying patch under mode.
func applyPlanPatch(plan Plan, patch PlanPatch, mode applyMode) Plan {
	if patch.Title != nil {
		plan.Title = *patch.Title
	}
	if patch.Summary != nil {
		plan.Summary = *patch.Summary
	}

	for _, bp := range patch.Branches {
		idx := findBranch(plan.Branches, bp.BranchID)
		if idx >= 0 {
			plan.Branches[idx] = applyBranchPatch(plan.Branches[idx], bp, mode)
		} else {
			plan.Branches = append(plan.Branches, newBranchFromPatch(bp))
		}
	}
	sortBranches(plan.Branches)
	return plan
}

func findBranch(branches []Branch, id string) int {
	for i, b := range branches {
		if b.BranchID == id {
			return i
		}
	}
	return -1
}

func findPhase(phases []Phase, id string) int {
	for i, p := range phases {
		if p.PhaseID == id {
			return i
		}
	}
	return -1
}

func findCheckpoint(cps []Checkpoint, id string) int {
	for i, c := range cps {
		if c.CheckpointID == id {
			return i
		}
	}
	return -1
}

func applyBranchPatch(b Branch, bp BranchPatch, mode applyMode) Branch {
	if b.LockedFields == nil {
		b.LockedFields = make(map[string]bool)
	}

	applyField(&b.Title, bp.Title, "title", b.LockedFields, mode)
	applyField(&b.ParentCheckpointID, bp.ParentCheckpointID, "parent_checkpoint_id", b.LockedFields, mode)
	applyIntField(&b.Order, bp.Order, "order", b.LockedFields, mode)

	for _, pp := range bp.Phases {
		idx := findPhase(b.Phases, pp.PhaseID)
		if idx >= 0 {
			b.Phases[idx] = applyPhasePatch(b.Phases[idx], pp, mode)
		} else {
			b.Phases = append(b.Phases, newPhaseFromPatch(pp))
		}
	}
	sortPhases(b.Phases)
	return b
}

func applyPhasePatch(p Phase, pp PhasePatch, mode applyMode) Phase {
	if p.LockedFields == nil {
		p.LockedFields = make(map[string]bool)
	}

	applyField(&p.Title, pp.Title, "title", p.LockedFields, mode)
	applyIntField(&p.Order, pp.Order, "order", p.LockedFields, mode)

	for _, cp := range pp.Checkpoints {
		idx := findCheckpoint(p.Checkpoints, cp.CheckpointID)
		if idx >= 0 {
			p.Checkpoints[idx] = applyCheckpointPatch(p.Checkpoints[idx], cp, mode)
		} else {
			p.Checkpoints = append(p.Checkpoints, newCheckpointFromPatch(cp))
		}
	}
	sortCheckpoints(p.Checkpoints)
	return p
}

func applyCheckpointPatch(c Checkpoint, cp CheckpointPatch, mode applyMode) Checkpoint {
	if c.LockedFields == nil {
		c.LockedFields = make(map[string]bool)
	}

	applyField(&c.Title, cp.Title, "title", c.LockedFields, mode)
	applyField(&c.Notes, cp.Notes, "notes", c.LockedFields, mode)
	applyIntField(&c.Order, cp.Order, "order", c.LockedFields, mode)
	return c
}

// applyField implements the lock semantics shared by every string
// field on every node type: a direct update overwrites and locks the
// field when the value actually changes; an accepted suggestion is
// blocked from touching an already-locked field.
func applyField(current *string, proposed *string, field string, locked map[string]bool, mode applyMode) {
	if proposed == nil {
		return
	}
	switch mode {
	case modeAcceptSuggestion:
		if locked[field] {
			return // base value wins — invariant 5
		}
		*current = *proposed
	default:
		if *proposed != *current {
			*current = *proposed
			locked[field] = true // invariant 4: monotonic lock
		}
	}
}

func applyIntField(current *int, proposed *int, field string, locked map[string]bool, mode applyMode) {
	if proposed == nil {
		return
	}
	switch mode {
	case modeAcceptSuggestion:
		if locked[field] {
			return
		}
		*current = *proposed
	default:
		if *proposed != *current {
			*current = *proposed
			locked[field] = true
		}
	}
}

func newBranchFromPatch(bp BranchPatch) Branch {
	b := Branch{
		BranchID:     bp.BranchID,
		LockedFields: make(map[string]bool),
	}
	if bp.Title != nil {
		b.Title = *bp.Title
	}
	if bp.Order != nil {
		b.Order = *bp.Order
	}
	if bp.ParentCheckpointID != nil {
		b.ParentCheckpointID = *bp.ParentCheckpointID
	}
	for _, pp := range bp.Phases {
		b.Phases = append(b.Phases, newPhaseFromPatch(pp))
	}
	sortPhases(b.Phases)
	return b
}

func newPhaseFromPatch(pp PhasePatch) Phase {
	p := Phase{
		PhaseID:      pp.PhaseID,
		LockedFields: make(map[string]bool),
	}
	if pp.Title != nil {
		p.Title = *pp.Title
	}
	if pp.Order != nil {
		p.Order = *pp.Order
	}
	for _, cp := range pp.Checkpoints {
		p.Checkpoints = append(p.Checkpoints, newCheckpointFromPatch(cp))
	}
	sortCheckpoints(p.Checkpoints)
	return p
}

func newCheckpointFromPatch(cp CheckpointPatch) Checkpoint {
	c := Checkpoint{
		CheckpointID: cp.CheckpointID,
		LockedFields: make(map[string]bool),
	}
	if cp.Title != nil {
		c.Title = *cp.Title
	}
	if cp.Notes != nil {
		c.Notes = *cp.Notes
	}
	if cp.Order != nil {
		c.Order = *cp.Order
	}
	return c
}

// newNodeID is a convenience for callers constructing brand-new nodes
// in a patch (tests and handlers alike).
func newNodeID() string { return idutil.NewID() }
