package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessfabric/internal/bulkprocessor"
	"accessfabric/internal/eventbuffer"
	"accessfabric/internal/eventcache"
	"accessfabric/internal/eventstore"
	"accessfabric/internal/metrics"
	"accessfabric/internal/notify"
)

func newWriterTestRouter(t *testing.T) (http.Handler, *eventbuffer.Buffer, eventstore.Store) {
	t.Helper()
	store := eventstore.NewMemoryStore()
	m := metrics.New()
	ts := metrics.NewTripSwitch(m, nil)
	processor := bulkprocessor.New(store, ts, m)
	cache := eventcache.New(10, m)
	buffer := eventbuffer.New(10, 0, processor, cache, notify.Noop{}, m, nil)

	r := chi.NewRouter()
	NewWriterHandler(buffer, nil).Register(r)
	return r, buffer, store
}

func TestHandleAggregateQueuesAndReturnsEventID(t *testing.T) {
	r, buffer, _ := newWriterTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader([]byte(`{"name":"alice"}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["event_id"])
	assert.Equal(t, 1, buffer.Len())
}

func TestHandleAggregateRejectsMissingName(t *testing.T) {
	r, _, _ := newWriterTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAggregateByPathRemove(t *testing.T) {
	r, buffer, _ := newWriterTestRouter(t)

	req := httptest.NewRequest(http.MethodDelete, "/users/alice", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, buffer.Len())
}

func TestHandleRelationRejectsWrongKeyCount(t *testing.T) {
	r, _, _ := newWriterTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/mappings/user-to-group", bytes.NewReader([]byte(`{"keys":["alice"]}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRelationQueuesEvent(t *testing.T) {
	r, buffer, _ := newWriterTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/mappings/user-to-group", bytes.NewReader([]byte(`{"keys":["alice","engineers"]}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, buffer.Len())
}
