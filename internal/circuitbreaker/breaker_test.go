package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS7_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	fakeNow := time.Now()
	cb := New(MarkovProfile(3, 30*time.Second))
	cb.now = func() time.Time { return fakeNow }

	fail := func() (interface{}, error) { return nil, errors.New("origin 500") }

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(fail)
		assert.Error(t, err)
	}

	assert.Equal(t, StateOpen, cb.State())

	_, err := cb.Execute(fail)
	assert.ErrorIs(t, err, ErrCircuitOpen, "4th call within open window must fail fast without hitting origin")

	fakeNow = fakeNow.Add(31 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State(), "after circuit_open_duration the breaker must allow a probe")

	_, err = cb.Execute(func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}
