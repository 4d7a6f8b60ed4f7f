package corerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := Conflict("plan version mismatch")
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeValidation, CodeOf(Validation("bad")))
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("boom")))
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("store down")
	err := Internal("idempotency put", cause)
	assert.ErrorIs(t, err, cause)
}
