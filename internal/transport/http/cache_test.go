package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessfabric/internal/eventcache"
	"accessfabric/internal/metrics"
)

func newCacheTestRouter(t *testing.T) (http.Handler, *eventcache.Cache) {
	t.Helper()
	cache := eventcache.New(10, metrics.New())
	r := chi.NewRouter()
	NewCacheHandler(cache, nil).Register(r)
	return r, cache
}

func TestCacheEventsThenGetAllEventsSince(t *testing.T) {
	r, _ := newCacheTestRouter(t)
	e1, e2 := uuid.New().String(), uuid.New().String()

	body := map[string]any{"events": []map[string]any{
		{"event_id": e1, "kind": "user", "action": "add", "payload": []string{"alice"}},
		{"event_id": e2, "kind": "user", "action": "add", "payload": []string{"bob"}},
	}}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/cache/events", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/cache/events/since/"+e1, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var since []wireEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &since))
	require.Len(t, since, 1)
	assert.Equal(t, e2, since[0].EventID)
}

func TestGetAllEventsSinceUnknownIDReturnsNotFound(t *testing.T) {
	r, _ := newCacheTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/cache/events/since/"+uuid.New().String(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetAllEventsSinceRejectsMalformedID(t *testing.T) {
	r, _ := newCacheTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/cache/events/since/not-a-uuid", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
