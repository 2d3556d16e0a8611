package eventbuffer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessfabric/internal/apperrors"
	"accessfabric/internal/bulkprocessor"
	"accessfabric/internal/domain"
	"accessfabric/internal/eventcache"
	"accessfabric/internal/eventstore"
	"accessfabric/internal/metrics"
	"accessfabric/internal/notify"
)

func newTestBuffer(t *testing.T, sizeLimit int) (*Buffer, eventstore.Store) {
	t.Helper()
	store := eventstore.NewMemoryStore()
	m := metrics.New()
	ts := metrics.NewTripSwitch(m, nil)
	processor := bulkprocessor.New(store, ts, m)
	cache := eventcache.New(100, m)
	return New(sizeLimit, 0, processor, cache, notify.Noop{}, m, nil), store
}

func TestAppendAssignsIdentityAndHash(t *testing.T) {
	b, _ := newTestBuffer(t, 10)
	ctx := context.Background()

	id, err := b.Append(ctx, Draft{Kind: domain.KindUser, Action: domain.ActionAdd, Payload: [3]string{"alice"}})
	require.NoError(t, err)
	assert.NotEqual(t, id.String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, 1, b.Len())
}

func TestFlushAppliesQueuedEventsAndEmptiesQueue(t *testing.T) {
	b, store := newTestBuffer(t, 10)
	ctx := context.Background()

	_, err := b.Append(ctx, Draft{Kind: domain.KindUser, Action: domain.ActionAdd, Payload: [3]string{"alice"}})
	require.NoError(t, err)

	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, 0, b.Len())

	live, err := store.IsLive(ctx, domain.KindUser, "alice", time.Now())
	require.NoError(t, err)
	assert.True(t, live)
}

func TestAppendFailsFastWhenTripSwitchActuated(t *testing.T) {
	store := eventstore.NewMemoryStore()
	m := metrics.New()
	ts := metrics.NewTripSwitch(m, nil)
	processor := bulkprocessor.New(store, ts, m)
	cache := eventcache.New(100, m)
	b := New(10, 0, processor, cache, notify.Noop{}, m, nil, WithTripSwitch(ts))
	ctx := context.Background()

	ts.Trip(ctx)

	_, err := b.Append(ctx, Draft{Kind: domain.KindUser, Action: domain.ActionAdd, Payload: [3]string{"alice"}})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnavailable, apperrors.CodeOf(err))
	assert.Equal(t, 0, b.Len())
}

func TestFlushPopulatesCache(t *testing.T) {
	store := eventstore.NewMemoryStore()
	m := metrics.New()
	ts := metrics.NewTripSwitch(m, nil)
	processor := bulkprocessor.New(store, ts, m)
	cache := eventcache.New(100, m)
	b := New(10, 0, processor, cache, notify.Noop{}, m, nil)
	ctx := context.Background()

	id, err := b.Append(ctx, Draft{Kind: domain.KindUser, Action: domain.ActionAdd, Payload: [3]string{"alice"}})
	require.NoError(t, err)
	require.NoError(t, b.Flush(ctx))

	assert.Equal(t, 1, cache.Len())
	_, ok := cache.GetAllEventsSince(id)
	assert.True(t, ok)
}

// TestAppendBlocksWhenFullUntilFlush mirrors spec.md §5's "every Append
// against a full buffer... may block."
func TestAppendBlocksWhenFullUntilFlush(t *testing.T) {
	b, _ := newTestBuffer(t, 1)
	ctx := context.Background()

	_, err := b.Append(ctx, Draft{Kind: domain.KindUser, Action: domain.ActionAdd, Payload: [3]string{"alice"}})
	require.NoError(t, err)
	require.Equal(t, 1, b.Len())

	unblocked := make(chan struct{})
	go func() {
		_, err := b.Append(ctx, Draft{Kind: domain.KindUser, Action: domain.ActionAdd, Payload: [3]string{"bob"}})
		assert.NoError(t, err)
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("second Append should have blocked while the buffer was full")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, b.Flush(ctx))

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("second Append should have unblocked once the flush freed capacity")
	}
}

func TestFlushRetainsBatchOnFailure(t *testing.T) {
	store := eventstore.NewMemoryStore()
	m := metrics.New()
	ts := metrics.NewTripSwitch(m, nil)
	processor := bulkprocessor.New(store, ts, m)
	b := New(10, 0, processor, eventcache.New(100, m), notify.Noop{}, m, nil, WithTripSwitch(ts))
	ctx := context.Background()

	// Two events referencing the same new user with the same occurred_time
	// is fine; force a failure instead via an unknown kind smuggled into
	// the queue directly (the processor rejects before any write).
	b.queue = append(b.queue, domain.Event{Kind: "not_a_kind", Action: domain.ActionAdd})

	err := b.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, b.Len(), "failed flush must retain its batch")
	assert.True(t, ts.Actuated(ctx), "flush failure must actuate the trip-switch")
}
