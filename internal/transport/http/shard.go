package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"accessfabric/internal/apperrors"
	"accessfabric/internal/domain"
	"accessfabric/internal/eventbuffer"
	"accessfabric/internal/queryservice"
	"accessfabric/internal/shardclient"
	"accessfabric/internal/transport/http/httputil"
)

// Method names used on both sides of the shard dispatch wire protocol:
// internal/router's dispatch calls and ShardDispatchHandler's switch
// below must agree on this vocabulary, since nothing else constrains it
// (shardclient.Request.Method is a free-form string).
const (
	methodAddUser          = "AddUser"
	methodRemoveUser       = "RemoveUser"
	methodContainsUser     = "ContainsUser"
	methodListUsers        = "ListUsers"
	methodAddGroup         = "AddGroup"
	methodRemoveGroup      = "RemoveGroup"
	methodContainsGroup    = "ContainsGroup"
	methodListGroups       = "ListGroups"
	methodAddGroupToGroup    = "AddGroupToGroup"
	methodRemoveGroupToGroup = "RemoveGroupToGroup"
)

// ShardDispatchHandler implements the receiving side of the Shard Client
// Manager's wire protocol (spec.md §4.5): a peer instance acting as a
// routing tier POSTs a shardclient.Request here, and it is executed
// against this instance's own buffer and query service exactly as if it
// had arrived on the local writer/reader surface. Every instance mounts
// this regardless of its own mode, since a "router" mode peer still
// needs somewhere to route to.
//
// Only the three sharded data_element_kinds (user, group,
// group_to_group_mapping; spec.md §4.6) are handled here — every other
// kind is never sharded and has no reason to reach this endpoint.
type ShardDispatchHandler struct {
	buffer  *eventbuffer.Buffer
	queries *queryservice.Service
	log     *slog.Logger
}

// NewShardDispatchHandler constructs a ShardDispatchHandler.
func NewShardDispatchHandler(buffer *eventbuffer.Buffer, queries *queryservice.Service, log *slog.Logger) *ShardDispatchHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ShardDispatchHandler{buffer: buffer, queries: queries, log: log}
}

// Register mounts the dispatch endpoint on r.
func (h *ShardDispatchHandler) Register(r chi.Router) {
	r.Post("/shard/dispatch", h.handleDispatch)
}

func (h *ShardDispatchHandler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req shardclient.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, req, apperrors.Wrap(err, apperrors.CodeValidation, "shard", "malformed dispatch request"))
		return
	}

	switch req.Op {
	case domain.OpEvent:
		if err := h.dispatchEvent(r.Context(), req); err != nil {
			h.fail(w, r, req, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, shardclient.Response{OK: true})
	case domain.OpQuery:
		h.dispatchQuery(w, r, req)
	default:
		h.fail(w, r, req, apperrors.New(apperrors.CodeValidation, "shard", "unknown op "+string(req.Op)))
	}
}

func (h *ShardDispatchHandler) dispatchEvent(ctx context.Context, req shardclient.Request) error {
	var (
		kind   domain.Kind
		action domain.Action
	)
	switch req.Method {
	case methodAddUser:
		kind, action = domain.KindUser, domain.ActionAdd
	case methodRemoveUser:
		kind, action = domain.KindUser, domain.ActionRemove
	case methodAddGroup:
		kind, action = domain.KindGroup, domain.ActionAdd
	case methodRemoveGroup:
		kind, action = domain.KindGroup, domain.ActionRemove
	case methodAddGroupToGroup:
		kind, action = domain.KindGroupToGroup, domain.ActionAdd
	case methodRemoveGroupToGroup:
		kind, action = domain.KindGroupToGroup, domain.ActionRemove
	default:
		return apperrors.New(apperrors.CodeValidation, "shard", "unknown event method "+req.Method)
	}

	var payload [3]string
	copy(payload[:], req.Args)
	_, err := h.buffer.Append(ctx, eventbuffer.Draft{Kind: kind, Action: action, Payload: payload})
	return err
}

func (h *ShardDispatchHandler) dispatchQuery(w http.ResponseWriter, r *http.Request, req shardclient.Request) {
	ctx := r.Context()
	switch req.Method {
	case methodListUsers:
		results, err := h.queries.ListUsers(ctx)
		h.respondEnumerate(w, r, req, results, err)
	case methodListGroups:
		results, err := h.queries.ListGroups(ctx)
		h.respondEnumerate(w, r, req, results, err)
	case methodContainsUser:
		ok, err := h.queries.ContainsUser(ctx, arg(req.Args, 0))
		h.respondPredicate(w, r, req, ok, err)
	case methodContainsGroup:
		ok, err := h.queries.ContainsGroup(ctx, arg(req.Args, 0))
		h.respondPredicate(w, r, req, ok, err)
	default:
		h.fail(w, r, req, apperrors.New(apperrors.CodeValidation, "shard", "unknown query method "+req.Method))
	}
}

func (h *ShardDispatchHandler) respondEnumerate(w http.ResponseWriter, r *http.Request, req shardclient.Request, results []string, err error) {
	if err != nil {
		h.fail(w, r, req, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, shardclient.Response{OK: true, Results: results})
}

func (h *ShardDispatchHandler) respondPredicate(w http.ResponseWriter, r *http.Request, req shardclient.Request, ok bool, err error) {
	if err != nil {
		h.fail(w, r, req, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, shardclient.Response{OK: ok})
}

// fail always writes HTTP 200: the dispatch wire protocol signals
// failure in the body's "ok" field, not the status line, matching
// shardclient.httpShardClient.Dispatch, which only treats status >= 300
// as a transport-level failure and otherwise decodes the body.
func (h *ShardDispatchHandler) fail(w http.ResponseWriter, r *http.Request, req shardclient.Request, err error) {
	h.log.ErrorContext(r.Context(), "shard dispatch failed", "kind", req.Kind, "method", req.Method, "error", err)
	httputil.WriteJSON(w, http.StatusOK, shardclient.Response{
		OK:      false,
		Code:    string(apperrors.CodeOf(err)),
		Message: err.Error(),
	})
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
