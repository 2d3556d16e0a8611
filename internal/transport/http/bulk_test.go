package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessfabric/internal/bulkprocessor"
	"accessfabric/internal/eventstore"
	"accessfabric/internal/metrics"
)

func newBulkTestRouter(t *testing.T) (http.Handler, eventstore.Store) {
	t.Helper()
	store := eventstore.NewMemoryStore()
	m := metrics.New()
	ts := metrics.NewTripSwitch(m, nil)
	processor := bulkprocessor.New(store, ts, m)

	r := chi.NewRouter()
	NewBulkHandler(processor, nil).Register(r)
	return r, store
}

func TestProcessEventsAppliesBatch(t *testing.T) {
	r, store := newBulkTestRouter(t)

	body := map[string]any{
		"events": []map[string]any{
			{"event_id": uuid.New().String(), "kind": "user", "action": "add", "payload": []string{"alice"}},
		},
		"ignore_preexisting": false,
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/bulk/events", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp processEventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Applied)
	assert.Equal(t, 0, resp.Skipped)

	users, err := store.ListLive(req.Context(), "user", time.Now())
	require.NoError(t, err)
	assert.Contains(t, users, "alice")
}

func TestProcessEventsRejectsEmptyBatch(t *testing.T) {
	r, _ := newBulkTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/bulk/events", bytes.NewReader([]byte(`{"events":[]}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessEventsSkipsPreexistingWhenIgnored(t *testing.T) {
	r, _ := newBulkTestRouter(t)
	id := uuid.New().String()

	first := map[string]any{"events": []map[string]any{
		{"event_id": id, "kind": "user", "action": "add", "payload": []string{"alice"}},
	}}
	raw, _ := json.Marshal(first)
	req := httptest.NewRequest(http.MethodPost, "/bulk/events", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	second := map[string]any{
		"events":             first["events"],
		"ignore_preexisting": true,
	}
	raw, _ = json.Marshal(second)
	req = httptest.NewRequest(http.MethodPost, "/bulk/events", bytes.NewReader(raw))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp processEventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Applied)
	assert.Equal(t, 1, resp.Skipped)
}
