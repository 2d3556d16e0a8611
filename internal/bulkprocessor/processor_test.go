package bulkprocessor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessfabric/internal/apperrors"
	"accessfabric/internal/domain"
	"accessfabric/internal/eventstore"
	"accessfabric/internal/metrics"
)

func addUserEvent(id uuid.UUID, name string, at time.Time) domain.Event {
	return domain.Event{EventID: id, Kind: domain.KindUser, Action: domain.ActionAdd, Occurred: at, Payload: [3]string{name}}
}

// TestProcessEventsStrictRejectsDuplicateWithNoWrites mirrors spec.md §8's
// S4: a strict batch with a duplicate event_id is rejected and leaves no
// trace in the store.
func TestProcessEventsStrictRejectsDuplicateWithNoWrites(t *testing.T) {
	store := eventstore.NewMemoryStore()
	p := New(store, metrics.NewTripSwitch(metrics.New(), nil), metrics.New())
	ctx := context.Background()
	t0 := time.Now()
	dup := uuid.New()

	_, err := p.ProcessEvents(ctx, []domain.Event{
		addUserEvent(dup, "x", t0),
		addUserEvent(dup, "y", t0.Add(time.Second)),
	}, false)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))

	liveX, err := store.IsLive(ctx, domain.KindUser, "x", t0)
	require.NoError(t, err)
	assert.False(t, liveX, "no writes should have committed")
}

// TestProcessEventsIgnorePreexistingAppliesFirstOnly mirrors the same S4
// scenario under ignore_preexisting=true.
func TestProcessEventsIgnorePreexistingAppliesFirstOnly(t *testing.T) {
	store := eventstore.NewMemoryStore()
	p := New(store, metrics.NewTripSwitch(metrics.New(), nil), metrics.New())
	ctx := context.Background()
	t0 := time.Now()
	dup := uuid.New()

	result, err := p.ProcessEvents(ctx, []domain.Event{
		addUserEvent(dup, "x", t0),
		addUserEvent(dup, "y", t0.Add(time.Second)),
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Skipped)

	liveX, err := store.IsLive(ctx, domain.KindUser, "x", t0)
	require.NoError(t, err)
	assert.True(t, liveX)
}

func TestProcessEventsUnknownKindAbortsBeforeAnyWrite(t *testing.T) {
	store := eventstore.NewMemoryStore()
	p := New(store, metrics.NewTripSwitch(metrics.New(), nil), metrics.New())
	ctx := context.Background()
	t0 := time.Now()

	_, err := p.ProcessEvents(ctx, []domain.Event{
		addUserEvent(uuid.New(), "x", t0),
		{EventID: uuid.New(), Kind: "not_a_kind", Action: domain.ActionAdd, Occurred: t0.Add(time.Second)},
	}, false)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))

	liveX, err := store.IsLive(ctx, domain.KindUser, "x", t0)
	require.NoError(t, err)
	assert.False(t, liveX, "validation must reject the batch before any write")
}

func TestProcessEventsAppliesInOrder(t *testing.T) {
	store := eventstore.NewMemoryStore()
	p := New(store, metrics.NewTripSwitch(metrics.New(), nil), metrics.New())
	ctx := context.Background()
	t0 := time.Now()

	result, err := p.ProcessEvents(ctx, []domain.Event{
		addUserEvent(uuid.New(), "alice", t0),
		addUserEvent(uuid.New(), "bob", t0.Add(time.Second)),
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)

	keys, err := store.ListLive(ctx, domain.KindUser, t0.Add(time.Second))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, keys)
}
