package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"accessfabric/internal/apperrors"
	"accessfabric/internal/domain"
	"accessfabric/internal/eventcache"
	"accessfabric/internal/requestctx"
	"accessfabric/internal/transport/http/httputil"
)

// CacheHandler fronts eventcache.Cache with the replay RPC surface from
// spec.md §6: CacheEvents seeds the cache directly (used by a peer shard
// replaying events it received out of band), and GetAllEventsSince answers
// the "since <id>" query a newly joined shard or lagging reader uses to
// catch up.
type CacheHandler struct {
	cache *eventcache.Cache
	log   *slog.Logger
}

// NewCacheHandler constructs a CacheHandler.
func NewCacheHandler(cache *eventcache.Cache, log *slog.Logger) *CacheHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CacheHandler{cache: cache, log: log}
}

// Register mounts the cache endpoints on r.
func (h *CacheHandler) Register(r chi.Router) {
	r.Post("/cache/events", h.handleCacheEvents)
	r.Get("/cache/events/since/{event_id}", h.handleGetAllEventsSince)
}

type cacheEventsRequest struct {
	Events []wireEvent `json:"events"`
}

func (r *cacheEventsRequest) Validate() error {
	if len(r.Events) == 0 {
		return apperrors.New(apperrors.CodeValidation, "http", "events must be non-empty")
	}
	for _, e := range r.Events {
		if _, err := uuid.Parse(e.EventID); err != nil {
			return apperrors.New(apperrors.CodeValidation, "http", "event_id must be a uuid")
		}
	}
	return nil
}

func (h *CacheHandler) handleCacheEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestctx.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[cacheEventsRequest](w, r, h.log, ctx, requestID)
	if !ok {
		return
	}

	events := make([]domain.Event, len(req.Events))
	for i, e := range req.Events {
		id, _ := uuid.Parse(e.EventID)
		var payload [3]string
		copy(payload[:], e.Payload)
		events[i] = domain.Event{
			EventID:       id,
			Kind:          domain.Kind(e.Kind),
			Action:        domain.Action(e.Action),
			Payload:       payload,
			Occurred:      e.OccurredTime,
			CorrelationID: e.CorrelationID,
		}
	}
	h.cache.AppendAll(events)
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"cached": len(events)})
}

func (h *CacheHandler) handleGetAllEventsSince(w http.ResponseWriter, r *http.Request) {
	priorID, err := uuid.Parse(chi.URLParam(r, "event_id"))
	if err != nil {
		httputil.WriteError(w, apperrors.New(apperrors.CodeValidation, "http", "event_id must be a uuid"))
		return
	}

	events, ok := h.cache.GetAllEventsSince(priorID)
	if !ok {
		httputil.WriteError(w, apperrors.New(apperrors.CodeNotFound, "http", "prior event id not cached; it was never seen or has been evicted"))
		return
	}

	out := make([]wireEvent, len(events))
	for i, e := range events {
		out[i] = wireEvent{
			EventID:       e.EventID.String(),
			Kind:          string(e.Kind),
			Action:        string(e.Action),
			Payload:       trimPayload(e.Payload),
			OccurredTime:  e.Occurred,
			CorrelationID: e.CorrelationID,
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func trimPayload(payload [3]string) []string {
	out := make([]string, 0, 3)
	for _, p := range payload {
		if p == "" {
			break
		}
		out = append(out, p)
	}
	return out
}
