package adaptivepath

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/balungpisah/gotong-royong-core/internal/corerr"
)

func TestValidateCreateRejectsDuplicateBranchOrder(t *testing.T) {
	err := validateCreate(CreatePlanInput{
		EntityID: "proj-1",
		Title:    "Launch plan",
		Branches: []Branch{
			{BranchID: "b1", Order: 0},
			{BranchID: "b2", Order: 0},
		},
	})
	require.Error(t, err)
	require.Equal(t, corerr.CodeValidation, corerr.CodeOf(err))
}

func TestValidateCreateRejectsDuplicatePhaseOrderWithinBranch(t *testing.T) {
	err := validateCreate(CreatePlanInput{
		EntityID: "proj-1",
		Title:    "Launch plan",
		Branches: []Branch{
			{BranchID: "b1", Order: 0, Phases: []Phase{
				{PhaseID: "p1", Order: 0},
				{PhaseID: "p2", Order: 0},
			}},
		},
	})
	require.Error(t, err)
	require.Equal(t, corerr.CodeValidation, corerr.CodeOf(err))
}

func TestValidateCreateRejectsDuplicateCheckpointOrderWithinPhase(t *testing.T) {
	err := validateCreate(CreatePlanInput{
		EntityID: "proj-1",
		Title:    "Launch plan",
		Branches: []Branch{
			{BranchID: "b1", Order: 0, Phases: []Phase{
				{PhaseID: "p1", Order: 0, Checkpoints: []Checkpoint{
					{CheckpointID: "c1", Order: 0},
					{CheckpointID: "c2", Order: 0},
				}},
			}},
		},
	})
	require.Error(t, err)
	require.Equal(t, corerr.CodeValidation, corerr.CodeOf(err))
}

func TestValidateCreateAllowsSameOrderAcrossDifferentParents(t *testing.T) {
	err := validateCreate(CreatePlanInput{
		EntityID: "proj-1",
		Title:    "Launch plan",
		Branches: []Branch{
			{BranchID: "b1", Order: 0, Phases: []Phase{
				{PhaseID: "p1", Order: 0},
			}},
			{BranchID: "b2", Order: 1, Phases: []Phase{
				{PhaseID: "p2", Order: 0},
			}},
		},
	})
	require.NoError(t, err)
}
