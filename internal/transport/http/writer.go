package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"accessfabric/internal/apperrors"
	"accessfabric/internal/domain"
	"accessfabric/internal/eventbuffer"
	"accessfabric/internal/requestctx"
	"accessfabric/internal/transport/http/httputil"
)

// WriterHandler fronts the event buffer with the writer RPC surface from
// spec.md §6 ("one per event kind × action"): AddUser, RemoveUser,
// AddUserToGroupMapping, and so on for every relation. Structured the way
// the teacher mounts one Handler per concern
// (internal/decision/handler.Handler).
type WriterHandler struct {
	buffer      *eventbuffer.Buffer
	log         *slog.Logger
	skipSharded bool
}

// WriterOption configures a WriterHandler.
type WriterOption func(*WriterHandler)

// WriterWithoutShardedRoutes omits the user, group, and group-to-group
// mapping routes from Register. A "router" mode instance uses this to
// mount WriterHandler for every non-sharded kind while RouterHandler
// covers the three sharded ones instead.
func WriterWithoutShardedRoutes() WriterOption {
	return func(h *WriterHandler) {
		h.skipSharded = true
	}
}

// NewWriterHandler constructs a WriterHandler.
func NewWriterHandler(buffer *eventbuffer.Buffer, log *slog.Logger, opts ...WriterOption) *WriterHandler {
	if log == nil {
		log = slog.Default()
	}
	h := &WriterHandler{buffer: buffer, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts every writer endpoint on r.
func (h *WriterHandler) Register(r chi.Router) {
	if !h.skipSharded {
		r.Post("/users", h.handleAggregate(domain.KindUser, domain.ActionAdd))
		r.Delete("/users/{name}", h.handleAggregateByPath(domain.KindUser, domain.ActionRemove))

		r.Post("/groups", h.handleAggregate(domain.KindGroup, domain.ActionAdd))
		r.Delete("/groups/{name}", h.handleAggregateByPath(domain.KindGroup, domain.ActionRemove))
	}

	r.Post("/entity-types", h.handleAggregate(domain.KindEntityType, domain.ActionAdd))
	r.Delete("/entity-types/{name}", h.handleAggregateByPath(domain.KindEntityType, domain.ActionRemove))

	r.Post("/application-components", h.handleAggregate(domain.KindApplicationComponent, domain.ActionAdd))
	r.Delete("/application-components/{name}", h.handleAggregateByPath(domain.KindApplicationComponent, domain.ActionRemove))

	r.Post("/access-levels", h.handleAggregate(domain.KindAccessLevel, domain.ActionAdd))
	r.Delete("/access-levels/{name}", h.handleAggregateByPath(domain.KindAccessLevel, domain.ActionRemove))

	r.Post("/entities", h.handleRelation(domain.KindEntity, domain.ActionAdd, 2))
	r.Post("/entities/remove", h.handleRelation(domain.KindEntity, domain.ActionRemove, 2))

	r.Post("/mappings/user-to-group", h.handleRelation(domain.KindUserToGroup, domain.ActionAdd, 2))
	r.Post("/mappings/user-to-group/remove", h.handleRelation(domain.KindUserToGroup, domain.ActionRemove, 2))

	if !h.skipSharded {
		r.Post("/mappings/group-to-group", h.handleRelation(domain.KindGroupToGroup, domain.ActionAdd, 2))
		r.Post("/mappings/group-to-group/remove", h.handleRelation(domain.KindGroupToGroup, domain.ActionRemove, 2))
	}

	r.Post("/mappings/user-to-component-access", h.handleRelation(domain.KindUserToComponentAccess, domain.ActionAdd, 3))
	r.Post("/mappings/user-to-component-access/remove", h.handleRelation(domain.KindUserToComponentAccess, domain.ActionRemove, 3))

	r.Post("/mappings/group-to-component-access", h.handleRelation(domain.KindGroupToComponentAccess, domain.ActionAdd, 3))
	r.Post("/mappings/group-to-component-access/remove", h.handleRelation(domain.KindGroupToComponentAccess, domain.ActionRemove, 3))

	r.Post("/mappings/user-to-entity", h.handleRelation(domain.KindUserToEntity, domain.ActionAdd, 3))
	r.Post("/mappings/user-to-entity/remove", h.handleRelation(domain.KindUserToEntity, domain.ActionRemove, 3))

	r.Post("/mappings/group-to-entity", h.handleRelation(domain.KindGroupToEntity, domain.ActionAdd, 3))
	r.Post("/mappings/group-to-entity/remove", h.handleRelation(domain.KindGroupToEntity, domain.ActionRemove, 3))
}

// aggregateRequest is the JSON body for a single-key aggregate write
// (AddUser, AddGroup, AddEntityType, AddApplicationComponent, AddAccessLevel).
type aggregateRequest struct {
	Name string `json:"name"`
}

func (r *aggregateRequest) Validate() error {
	if r.Name == "" {
		return apperrors.New(apperrors.CodeValidation, "http", "name is required")
	}
	return nil
}

// relationRequest is the JSON body for a relation write: up to three
// ordered key fields, matching domain.Event.Payload's layout.
type relationRequest struct {
	Keys []string `json:"keys"`
}

func (r *relationRequest) Validate() error {
	for _, k := range r.Keys {
		if k == "" {
			return apperrors.New(apperrors.CodeValidation, "http", "relation keys must be non-empty")
		}
	}
	return nil
}

func (h *WriterHandler) handleAggregate(kind domain.Kind, action domain.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestctx.RequestID(ctx)
		req, ok := httputil.DecodeAndPrepare[aggregateRequest](w, r, h.log, ctx, requestID)
		if !ok {
			return
		}
		h.submit(w, r, kind, action, [3]string{req.Name})
	}
}

func (h *WriterHandler) handleAggregateByPath(kind domain.Kind, action domain.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name == "" {
			httputil.WriteError(w, apperrors.New(apperrors.CodeValidation, "http", "name is required"))
			return
		}
		h.submit(w, r, kind, action, [3]string{name})
	}
}

func (h *WriterHandler) handleRelation(kind domain.Kind, action domain.Action, keyCount int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestctx.RequestID(ctx)
		req, ok := httputil.DecodeAndPrepare[relationRequest](w, r, h.log, ctx, requestID)
		if !ok {
			return
		}
		if len(req.Keys) != keyCount {
			httputil.WriteError(w, apperrors.New(apperrors.CodeValidation, "http", "wrong number of relation keys"))
			return
		}
		var payload [3]string
		copy(payload[:], req.Keys)
		h.submit(w, r, kind, action, payload)
	}
}

func (h *WriterHandler) submit(w http.ResponseWriter, r *http.Request, kind domain.Kind, action domain.Action, payload [3]string) {
	ctx := r.Context()
	requestID := requestctx.RequestID(ctx)

	id, err := h.buffer.Append(ctx, eventbuffer.Draft{
		Kind:          kind,
		Action:        action,
		Payload:       payload,
		CorrelationID: requestctx.CorrelationID(ctx),
	})
	if err != nil {
		h.log.ErrorContext(ctx, "writer append failed", "request_id", requestID, "kind", kind, "action", action, "error", err)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if action == domain.ActionRemove {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, map[string]string{"event_id": id.String()})
}
