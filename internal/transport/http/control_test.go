package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessfabric/internal/domain"
	"accessfabric/internal/metrics"
	"accessfabric/internal/router"
	"accessfabric/internal/shardclient"
)

type fakeShardClient struct{}

func (fakeShardClient) Dispatch(ctx context.Context, req shardclient.Request) (shardclient.Response, error) {
	return shardclient.Response{OK: true}, nil
}
func (fakeShardClient) Close() {}

func newControlTestRouter(t *testing.T) http.Handler {
	t.Helper()
	shards := shardclient.NewManager(func(domain.ClientConfig) shardclient.ShardClient {
		return fakeShardClient{}
	}, 0)
	m := metrics.New()
	ts := metrics.NewTripSwitch(m, nil)
	r := router.New(shards, nil)

	cr := chi.NewRouter()
	NewControlHandler(shards, r, ts, nil).Register(cr)
	return cr
}

func TestHandleResetTripSwitch(t *testing.T) {
	r := newControlTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/trip-switch/reset", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleReconfigureShardsRejectsEmpty(t *testing.T) {
	r := newControlTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/shards", bytes.NewReader([]byte(`{"records":[]}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleReconfigureShardsAccepts(t *testing.T) {
	r := newControlTestRouter(t)

	body := `{"records":[{"id":"s1","kind":"user","op":"event","client":{"address":"http://localhost:9001"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/admin/shards", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandlePauseAndResume(t *testing.T) {
	r := newControlTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/routing/user/pause", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/routing/user/resume", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
