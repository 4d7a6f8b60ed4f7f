package idutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIDIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		assert.False(t, seen[id], "duplicate id generated: %s", id)
		seen[id] = true
	}
}

func TestFormatRFC3339(t *testing.T) {
	out := FormatRFC3339(1700000000000)
	assert.Contains(t, out, "2023-11-14")
}
