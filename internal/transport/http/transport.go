package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"accessfabric/internal/bulkprocessor"
	"accessfabric/internal/eventbuffer"
	"accessfabric/internal/eventcache"
	"accessfabric/internal/metrics"
	"accessfabric/internal/queryservice"
	"accessfabric/internal/router"
	"accessfabric/internal/shardclient"
	"accessfabric/internal/transport/http/middleware"
)

// Deps bundles every component the HTTP transport layer fronts.
type Deps struct {
	Buffer    *eventbuffer.Buffer
	Queries   *queryservice.Service
	Processor *bulkprocessor.Processor
	Cache     *eventcache.Cache
	Shards    *shardclient.Manager
	Router    *router.Router
	TripSwitch *metrics.TripSwitch
	Metrics   *metrics.Metrics
	AdminSigningKey []byte
	Log       *slog.Logger

	// Mode selects the writer/reader surface for the three sharded kinds
	// (user, group, group_to_group_mapping): "local" (default) serves
	// them straight off Buffer/Queries like every other kind; "router"
	// serves them through Router instead. Every other kind always goes
	// straight to Buffer/Queries regardless of Mode, and /shard/dispatch
	// is always mounted so a peer in "router" mode can reach this
	// instance as a shard.
	Mode string
}

// NewRouter assembles one chi.Router exposing the reader, writer, bulk,
// cache, and admin-gated control-plane surfaces, mirroring the teacher's
// per-concern Handler.Register(r chi.Router) mounting pattern
// (internal/consent/handler/handler.go, internal/decision/handler/handler.go).
func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.LatencyMiddleware(d.Metrics))

	if d.Mode == "router" {
		NewWriterHandler(d.Buffer, log, WriterWithoutShardedRoutes()).Register(r)
		NewReaderHandler(d.Queries, log, ReaderWithoutShardedRoutes()).Register(r)
		NewRouterHandler(d.Router, log).Register(r)
	} else {
		NewWriterHandler(d.Buffer, log).Register(r)
		NewReaderHandler(d.Queries, log).Register(r)
	}
	NewShardDispatchHandler(d.Buffer, d.Queries, log).Register(r)
	NewBulkHandler(d.Processor, log).Register(r)
	NewCacheHandler(d.Cache, log).Register(r)

	if d.Metrics != nil && d.Metrics.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Group(func(admin chi.Router) {
		admin.Use(RequireAdmin(d.AdminSigningKey, log))
		NewControlHandler(d.Shards, d.Router, d.TripSwitch, log).Register(admin)
	})

	return r
}
