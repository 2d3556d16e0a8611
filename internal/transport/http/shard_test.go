package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessfabric/internal/bulkprocessor"
	"accessfabric/internal/domain"
	"accessfabric/internal/eventbuffer"
	"accessfabric/internal/eventcache"
	"accessfabric/internal/eventstore"
	"accessfabric/internal/metrics"
	"accessfabric/internal/notify"
	"accessfabric/internal/queryservice"
	"accessfabric/internal/shardclient"
)

func newShardTestRouter(t *testing.T) (http.Handler, *eventbuffer.Buffer, eventstore.Store) {
	t.Helper()
	store := eventstore.NewMemoryStore()
	m := metrics.New()
	ts := metrics.NewTripSwitch(m, nil)
	processor := bulkprocessor.New(store, ts, m)
	cache := eventcache.New(10, m)
	buffer := eventbuffer.New(10, 0, processor, cache, notify.Noop{}, m, nil)
	queries := queryservice.New(store)

	r := chi.NewRouter()
	NewShardDispatchHandler(buffer, queries, nil).Register(r)
	return r, buffer, store
}

func dispatch(t *testing.T, r http.Handler, req shardclient.Request) (*httptest.ResponseRecorder, shardclient.Response) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/shard/dispatch", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httpReq)

	var resp shardclient.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestShardDispatchHandlesAddUserEvent(t *testing.T) {
	r, buffer, _ := newShardTestRouter(t)

	w, resp := dispatch(t, r, shardclient.Request{
		Op: domain.OpEvent, Kind: domain.ElementUser, Method: methodAddUser, Args: []string{"alice"}, HashKey: "alice",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.OK)
	assert.Equal(t, 1, buffer.Len())
}

func TestShardDispatchRejectsUnknownEventMethod(t *testing.T) {
	r, _, _ := newShardTestRouter(t)

	_, resp := dispatch(t, r, shardclient.Request{
		Op: domain.OpEvent, Kind: domain.ElementUser, Method: "NotAMethod", Args: []string{"alice"},
	})

	assert.False(t, resp.OK)
	assert.Equal(t, "validation", resp.Code)
}

func TestShardDispatchAnswersContainsUserPredicate(t *testing.T) {
	r, buffer, _ := newShardTestRouter(t)
	ctx := context.Background()
	_, err := buffer.Append(ctx, eventbuffer.Draft{Kind: domain.KindUser, Action: domain.ActionAdd, Payload: [3]string{"alice"}})
	require.NoError(t, err)
	require.NoError(t, buffer.Flush(ctx))

	_, resp := dispatch(t, r, shardclient.Request{
		Op: domain.OpQuery, Kind: domain.ElementUser, Method: methodContainsUser, Args: []string{"alice"}, HashKey: "alice",
	})
	assert.True(t, resp.OK)

	_, resp = dispatch(t, r, shardclient.Request{
		Op: domain.OpQuery, Kind: domain.ElementUser, Method: methodContainsUser, Args: []string{"bob"}, HashKey: "bob",
	})
	assert.False(t, resp.OK)
}

func TestShardDispatchListUsersReturnsResults(t *testing.T) {
	r, buffer, _ := newShardTestRouter(t)
	ctx := context.Background()
	_, err := buffer.Append(ctx, eventbuffer.Draft{Kind: domain.KindUser, Action: domain.ActionAdd, Payload: [3]string{"alice"}})
	require.NoError(t, err)
	require.NoError(t, buffer.Flush(ctx))

	_, resp := dispatch(t, r, shardclient.Request{Op: domain.OpQuery, Kind: domain.ElementUser, Method: methodListUsers})

	assert.True(t, resp.OK)
	assert.Contains(t, resp.Results, "alice")
}
