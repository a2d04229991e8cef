package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsAndAdd(t *testing.T) {
	q := New(4)
	assert.False(t, q.Contains("a"))
	require.NoError(t, q.Add("a"))
	assert.True(t, q.Contains("a"))
}

func TestEvictionAfterCapacity(t *testing.T) {
	// After N+1 distinct UUIDs, the oldest one is evicted and no longer
	// suppressed.
	q := New(3)
	q.Add("u1")
	q.Add("u2")
	q.Add("u3")
	q.Add("u4")

	assert.False(t, q.Contains("u1"), "expected u1 to have been evicted")
	for _, u := range []string{"u2", "u3", "u4"} {
		assert.True(t, q.Contains(u), "expected %s to still be present", u)
	}
	assert.Equal(t, 3, q.Size())
}

func TestUtilization(t *testing.T) {
	q := New(4)
	q.Add("a")
	assert.Equal(t, 25.0, q.Utilization())
}

func TestClear(t *testing.T) {
	q := New(4)
	q.Add("a")
	q.Add("b")
	q.Clear()
	assert.Equal(t, 0, q.Size())
	assert.False(t, q.Contains("a"))
}

func TestReAddingExistingUUIDDoesNotDesyncRing(t *testing.T) {
	q := New(2)
	q.Add("a")
	q.Add("a") // no-op: already present
	q.Add("b")
	q.Add("c") // evicts "a", the oldest real occupant

	assert.False(t, q.Contains("a"), "expected a to be evicted once genuinely oldest")
	assert.True(t, q.Contains("b"))
	assert.True(t, q.Contains("c"))
}

func TestStorageKind(t *testing.T) {
	assert.Equal(t, "memory", New(4).StorageKind())
}
