package id

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewSurfaceID().String(), "surf_"))
	assert.True(t, strings.HasPrefix(NewRunID().String(), "run_"))
}

func TestUniqueAndSorted(t *testing.T) {
	g := NewGenerator()
	prev := ""
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		next := g.Generate().String()
		require.False(t, seen[next], "duplicate id %s", next)
		seen[next] = true
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(NewRunID().String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	_, err = Timestamp("surf_not-a-ulid")
	assert.Error(t, err)
}
