package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupExpires(t *testing.T) {
	now := time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)
	d := NewDedup(time.Minute)
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate("opp-1"))
	assert.True(t, d.IsDuplicate("opp-1"))
	assert.False(t, d.IsDuplicate("opp-2"))

	now = now.Add(2 * time.Minute)
	assert.False(t, d.IsDuplicate("opp-1"), "expired ids may run again")
}
