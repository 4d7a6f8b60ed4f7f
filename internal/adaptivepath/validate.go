package adaptivepath

import (
	"strings"

	"github.com/balungpisah/gotong-royong-core/internal/corerr"
)

// CreatePlanInput is the normalized input to CreatePlan.
type CreatePlanInput struct {
	EntityID string
	Title    string
	Summary  string
	Hints    []string
	Branches []Branch
}

func validateCreate(in CreatePlanInput) error {
	if strings.TrimSpace(in.EntityID) == "" {
		return corerr.Validation("entity_id must not be empty")
	}
	if strings.TrimSpace(in.Title) == "" {
		return corerr.Validation("title must not be empty")
	}
	if len(in.Branches) > MaxBranches {
		return corerr.Validationf("plan may have at most %d branches", MaxBranches)
	}

	checkpointIDs := map[string]bool{}
	seenBranchOrder := map[int]bool{}
	for _, b := range in.Branches {
		if strings.TrimSpace(b.BranchID) == "" {
			return corerr.Validation("branch_id must not be empty")
		}
		if b.Order < 0 || b.Order > MaxOrder {
			return corerr.Validationf("branch order must be within [0,%d]", MaxOrder)
		}
		if seenBranchOrder[b.Order] {
			return corerr.Validationf("duplicate branch order %d", b.Order)
		}
		seenBranchOrder[b.Order] = true
		if len(b.Phases) > MaxPhasesPerBranch {
			return corerr.Validationf("branch may have at most %d phases", MaxPhasesPerBranch)
		}
		seenPhaseOrder := map[int]bool{}
		for _, p := range b.Phases {
			if strings.TrimSpace(p.PhaseID) == "" {
				return corerr.Validation("phase_id must not be empty")
			}
			if p.Order < 0 || p.Order > MaxOrder {
				return corerr.Validationf("phase order must be within [0,%d]", MaxOrder)
			}
			if seenPhaseOrder[p.Order] {
				return corerr.Validationf("duplicate phase order %d in branch %q", p.Order, b.BranchID)
			}
			seenPhaseOrder[p.Order] = true
			if len(p.Checkpoints) > MaxCheckpointsPhase {
				return corerr.Validationf("phase may have at most %d checkpoints", MaxCheckpointsPhase)
			}
			seenCheckpointOrder := map[int]bool{}
			for _, c := range p.Checkpoints {
				if strings.TrimSpace(c.CheckpointID) == "" {
					return corerr.Validation("checkpoint_id must not be empty")
				}
				if c.Order < 0 || c.Order > MaxOrder {
					return corerr.Validationf("checkpoint order must be within [0,%d]", MaxOrder)
				}
				if seenCheckpointOrder[c.Order] {
					return corerr.Validationf("duplicate checkpoint order %d in phase %q", c.Order, p.PhaseID)
				}
				seenCheckpointOrder[c.Order] = true
				checkpointIDs[c.CheckpointID] = true
			}
		}
	}

	seenBranch, seenPhase := map[string]bool{}, map[string]bool{}
	for _, b := range in.Branches {
		if seenBranch[b.BranchID] {
			return corerr.Validationf("duplicate branch_id %q", b.BranchID)
		}
		seenBranch[b.BranchID] = true
		if b.ParentCheckpointID != "" && !checkpointIDs[b.ParentCheckpointID] {
			return corerr.Validationf("branch %q references unknown parent_checkpoint_id %q", b.BranchID, b.ParentCheckpointID)
		}
		for _, p := range b.Phases {
			if seenPhase[p.PhaseID] {
				return corerr.Validationf("duplicate phase_id %q", p.PhaseID)
			}
			seenPhase[p.PhaseID] = true
		}
	}
	return nil
}
