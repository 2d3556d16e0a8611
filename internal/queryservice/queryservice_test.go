package queryservice

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessfabric/internal/domain"
	"accessfabric/internal/eventstore"
)

func apply(t *testing.T, store eventstore.Store, at time.Time, kind domain.Kind, action domain.Action, payload ...string) {
	t.Helper()
	var p [3]string
	copy(p[:], payload)
	event := domain.Event{EventID: uuid.New(), Kind: kind, Action: action, Occurred: at, Payload: p}
	require.NoError(t, store.RunInTx(context.Background(), func(tx eventstore.Tx) error {
		return tx.Apply(context.Background(), event)
	}))
}

func TestListUsersAndContainsUser(t *testing.T) {
	store := eventstore.NewMemoryStore()
	t0 := time.Now().Add(-time.Hour)
	apply(t, store, t0, domain.KindUser, domain.ActionAdd, "alice")
	apply(t, store, t0.Add(time.Second), domain.KindUser, domain.ActionAdd, "bob")

	s := New(store)
	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users)

	ok, err := s.ContainsUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ContainsUser(context.Background(), "carol")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserGroupsIncludesTransitiveMembership(t *testing.T) {
	store := eventstore.NewMemoryStore()
	t0 := time.Now().Add(-time.Hour)
	apply(t, store, t0, domain.KindUser, domain.ActionAdd, "alice")
	apply(t, store, t0.Add(time.Second), domain.KindGroup, domain.ActionAdd, "engineers")
	apply(t, store, t0.Add(2*time.Second), domain.KindGroup, domain.ActionAdd, "staff")
	apply(t, store, t0.Add(3*time.Second), domain.KindUserToGroup, domain.ActionAdd, "alice", "engineers")
	apply(t, store, t0.Add(4*time.Second), domain.KindGroupToGroup, domain.ActionAdd, "engineers", "staff")

	s := New(store)
	direct, err := s.UserGroups(context.Background(), "alice", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"engineers"}, direct)

	all, err := s.UserGroups(context.Background(), "alice", true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"engineers", "staff"}, all)
}

func TestHasAccessToApplicationComponentViaGroup(t *testing.T) {
	store := eventstore.NewMemoryStore()
	t0 := time.Now().Add(-time.Hour)
	apply(t, store, t0, domain.KindUser, domain.ActionAdd, "alice")
	apply(t, store, t0.Add(time.Second), domain.KindGroup, domain.ActionAdd, "engineers")
	apply(t, store, t0.Add(2*time.Second), domain.KindUserToGroup, domain.ActionAdd, "alice", "engineers")
	apply(t, store, t0.Add(3*time.Second), domain.KindApplicationComponent, domain.ActionAdd, "billing")
	apply(t, store, t0.Add(4*time.Second), domain.KindAccessLevel, domain.ActionAdd, "view")
	apply(t, store, t0.Add(5*time.Second), domain.KindGroupToComponentAccess, domain.ActionAdd, "engineers", "billing", "view")

	s := New(store)
	ok, err := s.HasAccessToApplicationComponent(context.Background(), "alice", "billing", "view")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasAccessToApplicationComponent(context.Background(), "alice", "billing", "modify")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGroupToUserMappingsIncludesTransitiveMembers(t *testing.T) {
	store := eventstore.NewMemoryStore()
	t0 := time.Now().Add(-time.Hour)
	apply(t, store, t0, domain.KindUser, domain.ActionAdd, "alice")
	apply(t, store, t0.Add(time.Second), domain.KindGroup, domain.ActionAdd, "engineers")
	apply(t, store, t0.Add(2*time.Second), domain.KindGroup, domain.ActionAdd, "staff")
	apply(t, store, t0.Add(3*time.Second), domain.KindUserToGroup, domain.ActionAdd, "alice", "engineers")
	apply(t, store, t0.Add(4*time.Second), domain.KindGroupToGroup, domain.ActionAdd, "engineers", "staff")

	s := New(store)
	members, err := s.GroupToUserMappings(context.Background(), "staff", true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice"}, members)

	directOnly, err := s.GroupToUserMappings(context.Background(), "staff", false)
	require.NoError(t, err)
	assert.Empty(t, directOnly)
}
