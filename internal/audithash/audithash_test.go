package audithash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	SubjectID string            `json:"subject_id"`
	EventType string            `json:"event_type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func TestComputeDeterministic(t *testing.T) {
	p := payload{SubjectID: "plan-1", EventType: "PlanUpdated", Metadata: map[string]string{"b": "2", "a": "1"}}
	h1, err := Compute(p)
	require.NoError(t, err)
	h2, err := Compute(p)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestComputeChangesWithField(t *testing.T) {
	p1 := payload{SubjectID: "plan-1", EventType: "PlanUpdated"}
	p2 := payload{SubjectID: "plan-1", EventType: "PlanCreated"}
	h1, _ := Compute(p1)
	h2, _ := Compute(p2)
	assert.NotEqual(t, h1, h2)
}

func TestComputeIgnoresEventHashField(t *testing.T) {
	m1 := map[string]interface{}{"subject_id": "x", "event_hash": "aaa"}
	m2 := map[string]interface{}{"subject_id": "x", "event_hash": "bbb"}
	h1, _ := Compute(m1)
	h2, _ := Compute(m2)
	assert.Equal(t, h1, h2)
}
