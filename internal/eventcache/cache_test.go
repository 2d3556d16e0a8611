package eventcache

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessfabric/internal/domain"
)

func event(id uuid.UUID) domain.Event {
	return domain.Event{EventID: id, Kind: domain.KindUser, Action: domain.ActionAdd, Payload: [3]string{"u"}}
}

// TestCacheReplaySeedScenarioS6 mirrors spec.md §8's S6: cache size 2,
// append E1, E2, E3; GetAllEventsSince(E2) -> [E3]; GetAllEventsSince(E1)
// -> not cached.
func TestCacheReplaySeedScenarioS6(t *testing.T) {
	e1, e2, e3 := uuid.New(), uuid.New(), uuid.New()
	c := New(2, nil)

	c.Append(event(e1))
	c.Append(event(e2))
	c.Append(event(e3))

	since, ok := c.GetAllEventsSince(e2)
	require.True(t, ok)
	require.Len(t, since, 1)
	assert.Equal(t, e3, since[0].EventID)

	_, ok = c.GetAllEventsSince(e1)
	assert.False(t, ok, "e1 should have been evicted once e3 was appended")
}

func TestCacheGetAllEventsSinceEmptySuffix(t *testing.T) {
	e1 := uuid.New()
	c := New(5, nil)
	c.Append(event(e1))

	since, ok := c.GetAllEventsSince(e1)
	require.True(t, ok)
	assert.Empty(t, since)
}

func TestCacheLen(t *testing.T) {
	c := New(3, nil)
	assert.Equal(t, 0, c.Len())
	c.Append(event(uuid.New()))
	c.Append(event(uuid.New()))
	assert.Equal(t, 2, c.Len())
}

// TestCacheRingWrapsPastCapacityRepeatedly exercises the ring buffer
// wrapping around its backing slice several times over, confirming
// eviction and lookup stay correct once the start offset has wrapped.
func TestCacheRingWrapsPastCapacityRepeatedly(t *testing.T) {
	c := New(3, nil)
	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
		c.Append(event(ids[i]))
	}
	assert.Equal(t, 3, c.Len())

	for i := 0; i < 7; i++ {
		_, ok := c.GetAllEventsSince(ids[i])
		assert.False(t, ok, "id %d should have been evicted", i)
	}

	since, ok := c.GetAllEventsSince(ids[7])
	require.True(t, ok)
	require.Len(t, since, 2)
	assert.Equal(t, ids[8], since[0].EventID)
	assert.Equal(t, ids[9], since[1].EventID)
}
