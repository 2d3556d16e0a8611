package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"accessfabric/internal/apperrors"
	"accessfabric/internal/domain"
	"accessfabric/internal/requestctx"
	"accessfabric/internal/router"
	"accessfabric/internal/transport/http/httputil"
)

// RouterHandler fronts the three sharded data_element_kinds (user, group,
// group_to_group_mapping; spec.md §4.6) with the same wire shape
// WriterHandler and ReaderHandler expose locally, but dispatches every
// request through internal/router instead of this instance's own event
// store. A "router" mode instance mounts this in place of the sharded
// routes WriterHandler/ReaderHandler would otherwise serve (see
// WriterWithoutShardedRoutes/ReaderWithoutShardedRoutes); every other
// kind is never sharded and keeps going straight to the local store.
type RouterHandler struct {
	router *router.Router
	log    *slog.Logger
}

// NewRouterHandler constructs a RouterHandler.
func NewRouterHandler(r *router.Router, log *slog.Logger) *RouterHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RouterHandler{router: r, log: log}
}

// Register mounts the routed user, group, and group-to-group-mapping
// endpoints on r.
func (h *RouterHandler) Register(r chi.Router) {
	r.Post("/users", h.handleAddUser)
	r.Delete("/users/{name}", h.handleRemoveUser)
	r.Get("/users/{name}", h.handleContainsUser)
	r.Get("/users", h.handleListUsers)

	r.Post("/groups", h.handleAddGroup)
	r.Delete("/groups/{name}", h.handleRemoveGroup)
	r.Get("/groups/{name}", h.handleContainsGroup)
	r.Get("/groups", h.handleListGroups)

	r.Post("/mappings/group-to-group", h.handleAddGroupToGroup)
	r.Post("/mappings/group-to-group/remove", h.handleRemoveGroupToGroup)
}

func (h *RouterHandler) handleAddUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[aggregateRequest](w, r, h.log, ctx, requestctx.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.router.DispatchEvent(ctx, domain.ElementUser, req.Name, methodAddUser, []string{req.Name}); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
}

func (h *RouterHandler) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		httputil.WriteError(w, apperrors.New(apperrors.CodeValidation, "http", "name is required"))
		return
	}
	if err := h.router.DispatchEvent(r.Context(), domain.ElementUser, name, methodRemoveUser, []string{name}); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"name": name})
}

func (h *RouterHandler) handleContainsUser(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ok, err := h.router.DispatchPredicate(r.Context(), domain.ElementUser, name, methodContainsUser, []string{name})
	h.respondBool(w, ok, err)
}

func (h *RouterHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.router.FanOutEnumerate(r.Context(), domain.ElementUser, methodListUsers, nil)
	h.respondList(w, users, err)
}

func (h *RouterHandler) handleAddGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[aggregateRequest](w, r, h.log, ctx, requestctx.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.router.DispatchEvent(ctx, domain.ElementGroup, req.Name, methodAddGroup, []string{req.Name}); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
}

func (h *RouterHandler) handleRemoveGroup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		httputil.WriteError(w, apperrors.New(apperrors.CodeValidation, "http", "name is required"))
		return
	}
	if err := h.router.DispatchEvent(r.Context(), domain.ElementGroup, name, methodRemoveGroup, []string{name}); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"name": name})
}

func (h *RouterHandler) handleContainsGroup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ok, err := h.router.DispatchPredicate(r.Context(), domain.ElementGroup, name, methodContainsGroup, []string{name})
	h.respondBool(w, ok, err)
}

func (h *RouterHandler) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.router.FanOutEnumerate(r.Context(), domain.ElementGroup, methodListGroups, nil)
	h.respondList(w, groups, err)
}

func (h *RouterHandler) handleAddGroupToGroup(w http.ResponseWriter, r *http.Request) {
	h.dispatchGroupToGroup(w, r, domain.ActionAdd, methodAddGroupToGroup)
}

func (h *RouterHandler) handleRemoveGroupToGroup(w http.ResponseWriter, r *http.Request) {
	h.dispatchGroupToGroup(w, r, domain.ActionRemove, methodRemoveGroupToGroup)
}

func (h *RouterHandler) dispatchGroupToGroup(w http.ResponseWriter, r *http.Request, action domain.Action, method string) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[relationRequest](w, r, h.log, ctx, requestctx.RequestID(ctx))
	if !ok {
		return
	}
	if len(req.Keys) != 2 {
		httputil.WriteError(w, apperrors.New(apperrors.CodeValidation, "http", "wrong number of relation keys"))
		return
	}

	hashKey := req.Keys[0]
	if err := h.router.DispatchEvent(ctx, domain.ElementGroupToGroup, hashKey, method, req.Keys); err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusCreated
	if action == domain.ActionRemove {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, map[string][]string{"keys": req.Keys})
}

func (h *RouterHandler) respondList(w http.ResponseWriter, values []string, err error) {
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if values == nil {
		values = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, values)
}

func (h *RouterHandler) respondBool(w http.ResponseWriter, ok bool, err error) {
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !ok {
		httputil.WriteError(w, apperrors.New(apperrors.CodeNotFound, "http", "not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"result": ok})
}
