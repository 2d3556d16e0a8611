package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"accessfabric/internal/apperrors"
	"accessfabric/internal/queryservice"
	"accessfabric/internal/transport/http/httputil"
)

// ReaderHandler fronts the query service with the reader RPC surface from
// spec.md §6: enumerations, membership, direct and reverse mappings, and
// access-decision queries. This always serves directly off this
// instance's own local store. The bare user/group enumeration and
// membership-check routes can instead be served by RouterHandler — see
// ReaderWithoutShardedRoutes and config.Config.Mode.
type ReaderHandler struct {
	queries     *queryservice.Service
	log         *slog.Logger
	skipSharded bool
}

// ReaderOption configures a ReaderHandler.
type ReaderOption func(*ReaderHandler)

// ReaderWithoutShardedRoutes omits the bare user and group enumeration
// and membership-check routes from Register, leaving every
// multi-kind/BFS query (user groups, group users, access decisions)
// mounted as usual. A "router" mode instance pairs this with
// RouterHandler, which covers the omitted routes by dispatching through
// internal/router instead of the local store.
func ReaderWithoutShardedRoutes() ReaderOption {
	return func(h *ReaderHandler) {
		h.skipSharded = true
	}
}

// NewReaderHandler constructs a ReaderHandler.
func NewReaderHandler(queries *queryservice.Service, log *slog.Logger, opts ...ReaderOption) *ReaderHandler {
	if log == nil {
		log = slog.Default()
	}
	h := &ReaderHandler{queries: queries, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts every reader endpoint on r.
func (h *ReaderHandler) Register(r chi.Router) {
	if !h.skipSharded {
		r.Get("/users", h.handleListUsers)
		r.Get("/users/{name}", h.handleContainsUser)
		r.Get("/groups", h.handleListGroups)
		r.Get("/groups/{name}", h.handleContainsGroup)
	}
	r.Get("/entity-types", h.handleListEntityTypes)
	r.Get("/entity-types/{type}/entities", h.handleListEntities)
	r.Get("/entity-types/{type}/entities/{name}", h.handleContainsEntity)

	r.Get("/users/{name}/groups", h.handleUserGroups)
	r.Get("/groups/{name}/users", h.handleGroupUsers)
	r.Get("/entity-types/{type}/entities/{name}/users", h.handleEntityUsers)

	r.Get("/users/{name}/access/components/{component}/{access}", h.handleHasAccessToComponent)
	r.Get("/users/{name}/access/entity-types/{type}/entities/{entity}", h.handleHasAccessToEntity)
	r.Get("/users/{name}/access/components", h.handleComponentsAccessibleByUser)
	r.Get("/users/{name}/access/entities", h.handleEntitiesAccessibleByUser)
}

func (h *ReaderHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.queries.ListUsers(r.Context())
	h.respondList(w, users, err)
}

func (h *ReaderHandler) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.queries.ListGroups(r.Context())
	h.respondList(w, groups, err)
}

func (h *ReaderHandler) handleListEntityTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.queries.ListEntityTypes(r.Context())
	h.respondList(w, types, err)
}

func (h *ReaderHandler) handleListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.queries.ListEntities(r.Context(), chi.URLParam(r, "type"))
	h.respondList(w, entities, err)
}

func (h *ReaderHandler) handleContainsUser(w http.ResponseWriter, r *http.Request) {
	ok, err := h.queries.ContainsUser(r.Context(), chi.URLParam(r, "name"))
	h.respondBool(w, ok, err)
}

func (h *ReaderHandler) handleContainsGroup(w http.ResponseWriter, r *http.Request) {
	ok, err := h.queries.ContainsGroup(r.Context(), chi.URLParam(r, "name"))
	h.respondBool(w, ok, err)
}

func (h *ReaderHandler) handleContainsEntity(w http.ResponseWriter, r *http.Request) {
	ok, err := h.queries.ContainsEntity(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "name"))
	h.respondBool(w, ok, err)
}

func (h *ReaderHandler) handleUserGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.queries.UserGroups(r.Context(), chi.URLParam(r, "name"), includeIndirect(r))
	h.respondList(w, groups, err)
}

func (h *ReaderHandler) handleGroupUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.queries.GroupToUserMappings(r.Context(), chi.URLParam(r, "name"), includeIndirect(r))
	h.respondList(w, users, err)
}

func (h *ReaderHandler) handleEntityUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.queries.EntityToUserMappings(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "name"))
	h.respondList(w, users, err)
}

func (h *ReaderHandler) handleHasAccessToComponent(w http.ResponseWriter, r *http.Request) {
	ok, err := h.queries.HasAccessToApplicationComponent(r.Context(),
		chi.URLParam(r, "name"), chi.URLParam(r, "component"), chi.URLParam(r, "access"))
	h.respondBool(w, ok, err)
}

func (h *ReaderHandler) handleHasAccessToEntity(w http.ResponseWriter, r *http.Request) {
	ok, err := h.queries.HasAccessToEntity(r.Context(),
		chi.URLParam(r, "name"), chi.URLParam(r, "type"), chi.URLParam(r, "entity"))
	h.respondBool(w, ok, err)
}

func (h *ReaderHandler) handleComponentsAccessibleByUser(w http.ResponseWriter, r *http.Request) {
	components, err := h.queries.ApplicationComponentsAccessibleByUser(r.Context(), chi.URLParam(r, "name"))
	h.respondList(w, components, err)
}

func (h *ReaderHandler) handleEntitiesAccessibleByUser(w http.ResponseWriter, r *http.Request) {
	entities, err := h.queries.EntitiesAccessibleByUser(r.Context(), chi.URLParam(r, "name"), r.URL.Query().Get("type"))
	h.respondList(w, entities, err)
}

func includeIndirect(r *http.Request) bool {
	return r.URL.Query().Get("include_indirect") == "true"
}

func (h *ReaderHandler) respondList(w http.ResponseWriter, values []string, err error) {
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if values == nil {
		values = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, values)
}

func (h *ReaderHandler) respondBool(w http.ResponseWriter, ok bool, err error) {
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
