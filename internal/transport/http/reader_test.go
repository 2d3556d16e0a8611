package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessfabric/internal/domain"
	"accessfabric/internal/eventstore"
	"accessfabric/internal/queryservice"
)

func newReaderTestRouter(t *testing.T) (http.Handler, eventstore.Store) {
	t.Helper()
	store := eventstore.NewMemoryStore()
	r := chi.NewRouter()
	NewReaderHandler(queryservice.New(store), nil).Register(r)
	return r, store
}

func applyReaderEvent(t *testing.T, store eventstore.Store, kind domain.Kind, payload ...string) {
	t.Helper()
	var p [3]string
	copy(p[:], payload)
	event := domain.Event{EventID: uuid.New(), Kind: kind, Action: domain.ActionAdd, Occurred: time.Now(), Payload: p}
	require.NoError(t, store.RunInTx(context.Background(), func(tx eventstore.Tx) error {
		return tx.Apply(context.Background(), event)
	}))
}

func TestHandleListUsers(t *testing.T) {
	r, store := newReaderTestRouter(t)
	applyReaderEvent(t, store, domain.KindUser, "alice")

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var users []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	assert.Contains(t, users, "alice")
}

func TestHandleContainsUserNotFound(t *testing.T) {
	r, _ := newReaderTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/users/nobody", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleHasAccessToComponent(t *testing.T) {
	r, store := newReaderTestRouter(t)
	applyReaderEvent(t, store, domain.KindUser, "alice")
	applyReaderEvent(t, store, domain.KindApplicationComponent, "billing")
	applyReaderEvent(t, store, domain.KindAccessLevel, "view")
	applyReaderEvent(t, store, domain.KindUserToComponentAccess, "alice", "billing", "view")

	req := httptest.NewRequest(http.MethodGet, "/users/alice/access/components/billing/view", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp["result"])
}

func TestHandleEntitiesAccessibleByUserFiltersByType(t *testing.T) {
	r, store := newReaderTestRouter(t)
	applyReaderEvent(t, store, domain.KindUser, "alice")
	applyReaderEvent(t, store, domain.KindEntityType, "document")
	applyReaderEvent(t, store, domain.KindEntity, "document", "doc-1")
	applyReaderEvent(t, store, domain.KindUserToEntity, "alice", "document", "doc-1")

	req := httptest.NewRequest(http.MethodGet, "/users/alice/access/entities?type=document", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var entities []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entities))
	assert.Contains(t, entities, "document:doc-1")

	req = httptest.NewRequest(http.MethodGet, "/users/alice/access/entities?type=other-type", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var none []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &none))
	assert.Empty(t, none)
}
