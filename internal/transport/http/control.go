package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"accessfabric/internal/apperrors"
	"accessfabric/internal/domain"
	"accessfabric/internal/metrics"
	"accessfabric/internal/requestctx"
	"accessfabric/internal/router"
	"accessfabric/internal/shardclient"
	"accessfabric/internal/transport/http/httputil"
)

// ControlHandler exposes the operator surface spec.md §9 assumes: replacing
// the shard configuration set, toggling and pausing a kind's dual-routing
// window during an online re-shard, and resetting the trip-switch once an
// operator has confirmed the underlying failure is resolved. Every route
// here is gated by adminauth and must never be reachable from the regular
// reader/writer surface.
type ControlHandler struct {
	shards *shardclient.Manager
	router *router.Router
	trip   *metrics.TripSwitch
	log    *slog.Logger
}

// NewControlHandler constructs a ControlHandler.
func NewControlHandler(shards *shardclient.Manager, r *router.Router, trip *metrics.TripSwitch, log *slog.Logger) *ControlHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ControlHandler{shards: shards, router: r, trip: trip, log: log}
}

// Register mounts every control-plane endpoint on r. Callers must wrap r
// with RequireAdmin (see adminauth.go) before calling this.
func (h *ControlHandler) Register(r chi.Router) {
	r.Post("/admin/shards", h.handleReconfigureShards)
	r.Post("/admin/routing/{kind}/window", h.handleConfigureWindow)
	r.Post("/admin/routing/{kind}/on", h.handleSetRoutingOn(true))
	r.Post("/admin/routing/{kind}/off", h.handleSetRoutingOn(false))
	r.Post("/admin/routing/{kind}/pause", h.handlePause)
	r.Post("/admin/routing/{kind}/resume", h.handleResume)
	r.Post("/admin/trip-switch/reset", h.handleResetTripSwitch)
}

type clientConfigRequest struct {
	Address          string `json:"address"`
	DialTimeoutMS    int    `json:"dial_timeout_ms"`
	RequestTimeoutMS int    `json:"request_timeout_ms"`
}

type shardRecordRequest struct {
	ID             string              `json:"id"`
	Kind           string              `json:"kind"`
	Op             string              `json:"op"`
	HashRangeStart int32               `json:"hash_range_start"`
	Client         clientConfigRequest `json:"client"`
}

type reconfigureShardsRequest struct {
	Records []shardRecordRequest `json:"records"`
}

func (r *reconfigureShardsRequest) Validate() error {
	if len(r.Records) == 0 {
		return apperrors.New(apperrors.CodeValidation, "http", "records must be non-empty")
	}
	for _, rec := range r.Records {
		if rec.ID == "" || rec.Client.Address == "" {
			return apperrors.New(apperrors.CodeValidation, "http", "every record needs an id and a client address")
		}
	}
	return nil
}

func (h *ControlHandler) handleReconfigureShards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestctx.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[reconfigureShardsRequest](w, r, h.log, ctx, requestID)
	if !ok {
		return
	}

	records := make([]domain.ShardConfigRecord, len(req.Records))
	for i, rec := range req.Records {
		records[i] = domain.ShardConfigRecord{
			ID:             rec.ID,
			Kind:           domain.ElementKind(rec.Kind),
			Op:             domain.OpKind(rec.Op),
			HashRangeStart: rec.HashRangeStart,
			Client: domain.ClientConfig{
				Address:        rec.Client.Address,
				DialTimeout:    millis(rec.Client.DialTimeoutMS),
				RequestTimeout: millis(rec.Client.RequestTimeoutMS),
			},
		}
	}

	h.shards.Reconfigure(records)
	h.log.InfoContext(ctx, "shard configuration reconfigured", "request_id", requestID, "records", len(records))
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"records": len(records)})
}

type windowRequest struct {
	RoutingOn   bool                `json:"routing_on"`
	SourceStart uint32              `json:"source_start"`
	SourceEnd   uint32              `json:"source_end"`
	TargetStart uint32              `json:"target_start"`
	TargetEnd   uint32              `json:"target_end"`
	Source      shardRecordRequest  `json:"source"`
	Target      shardRecordRequest `json:"target"`
}

func (r *windowRequest) Validate() error {
	if r.Source.Client.Address == "" || r.Target.Client.Address == "" {
		return apperrors.New(apperrors.CodeValidation, "http", "source and target client addresses are required")
	}
	return nil
}

func (h *ControlHandler) handleConfigureWindow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestctx.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[windowRequest](w, r, h.log, ctx, requestID)
	if !ok {
		return
	}
	kind := domain.ElementKind(chi.URLParam(r, "kind"))

	h.router.Configure(kind, router.WindowConfig{
		RoutingOn:   req.RoutingOn,
		SourceStart: req.SourceStart,
		SourceEnd:   req.SourceEnd,
		TargetStart: req.TargetStart,
		TargetEnd:   req.TargetEnd,
		Source:      toShardConfigRecord(req.Source),
		Target:      toShardConfigRecord(req.Target),
	})
	h.log.InfoContext(ctx, "dual-routing window configured", "request_id", requestID, "kind", kind)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"kind": string(kind)})
}

func (h *ControlHandler) handleSetRoutingOn(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := domain.ElementKind(chi.URLParam(r, "kind"))
		h.router.SetRoutingOn(kind, on)
		httputil.WriteJSON(w, http.StatusOK, map[string]bool{"routing_on": on})
	}
}

func (h *ControlHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	kind := domain.ElementKind(chi.URLParam(r, "kind"))
	h.router.Pause(kind)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"state": "paused"})
}

func (h *ControlHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	kind := domain.ElementKind(chi.URLParam(r, "kind"))
	h.router.Resume(kind)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"state": "resumed"})
}

func (h *ControlHandler) handleResetTripSwitch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.trip == nil {
		httputil.WriteError(w, apperrors.New(apperrors.CodeFatal, "http", "trip-switch not configured"))
		return
	}
	h.trip.Reset(ctx)
	h.log.InfoContext(ctx, "trip-switch reset", "request_id", requestctx.RequestID(ctx))
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"state": "reset"})
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func toShardConfigRecord(rec shardRecordRequest) domain.ShardConfigRecord {
	return domain.ShardConfigRecord{
		ID:             rec.ID,
		Kind:           domain.ElementKind(rec.Kind),
		Op:             domain.OpKind(rec.Op),
		HashRangeStart: rec.HashRangeStart,
		Client: domain.ClientConfig{
			Address:        rec.Client.Address,
			DialTimeout:    millis(rec.Client.DialTimeoutMS),
			RequestTimeout: millis(rec.Client.RequestTimeoutMS),
		},
	}
}
