package sharedstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddAndContains(t *testing.T) {
	s := newTestStore(t)
	q := NewQueue(s, Config{Prefix: "ddq:"}, "Order:Pay.process", 3)

	assert.False(t, q.Contains("u1"))
	require.NoError(t, q.Add("u1"))
	assert.True(t, q.Contains("u1"))
}

func TestEvictionAfterCapacity(t *testing.T) {
	s := newTestStore(t)
	q := NewQueue(s, Config{Prefix: "ddq:"}, "Order:Pay.process", 2)

	require.NoError(t, q.Add("u1"))
	require.NoError(t, q.Add("u2"))
	require.NoError(t, q.Add("u3"))

	assert.False(t, q.Contains("u1"), "expected u1 to be evicted once capacity exceeded")
	assert.True(t, q.Contains("u2"))
	assert.True(t, q.Contains("u3"))
	assert.Equal(t, 2, q.Size())
}

func TestIsolationBetweenDDQKeys(t *testing.T) {
	// Two handlers of the same class must not share dedup state.
	s := newTestStore(t)
	pay := NewQueue(s, Config{Prefix: "ddq:"}, "Order:Pay.process", 100)
	ful := NewQueue(s, Config{Prefix: "ddq:"}, "Order:Ful.handle", 100)

	require.NoError(t, pay.Add("same-uuid"))
	assert.True(t, pay.Contains("same-uuid"))
	assert.False(t, ful.Contains("same-uuid"), "expected ful queue to be unaffected by pay's add")
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	q := NewQueue(s, Config{Prefix: "ddq:"}, "Order:Pay.process", 10)
	require.NoError(t, q.Add("u1"))
	q.Clear()
	assert.False(t, q.Contains("u1"))
	assert.Equal(t, 0, q.Size())
}

func TestTTLExpiresMembership(t *testing.T) {
	// Badger TTLs have second-level granularity, so use a 1s window.
	s := newTestStore(t)
	q := NewQueue(s, Config{Prefix: "ddq:", TTL: time.Second}, "Order:Pay.process", 10)
	require.NoError(t, q.Add("u1"))
	assert.True(t, q.Contains("u1"), "expected u1 present before TTL expiry")
	time.Sleep(2500 * time.Millisecond)
	assert.False(t, q.Contains("u1"), "expected u1 to expire after TTL")
}

func TestStorageKind(t *testing.T) {
	s := newTestStore(t)
	q := NewQueue(s, Config{}, "Order:Pay.process", 10)
	assert.Equal(t, "badger", q.StorageKind())
}
