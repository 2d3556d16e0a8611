// Package router implements the Operation Router (spec.md §4.6): it fronts
// the same operation surface as the local event store but dispatches over
// the network via the Shard Client Manager, consulting a per-kind
// dual-routing window to support online re-sharding.
//
// Structured the way the teacher layers its service façades
// (internal/auth/service, internal/consent/service): a thin struct holding
// mutable routing state behind small, targeted locks, with one method per
// concern and no business logic beyond "find the shard(s), call them,
// combine the results."
package router

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"accessfabric/internal/apperrors"
	"accessfabric/internal/domain"
	"accessfabric/internal/hashring"
	"accessfabric/internal/shardclient"
)

// WindowConfig is the caller-facing shape of one dual-routing
// reconfiguration: the four range endpoints plus the source and target
// shard themselves.
type WindowConfig struct {
	RoutingOn   bool
	SourceStart uint32
	SourceEnd   uint32
	TargetStart uint32
	TargetEnd   uint32
	Source      domain.ShardConfigRecord
	Target      domain.ShardConfigRecord
}

// Router dispatches writer and reader operations to the shard(s) that own
// them, consulting one dual-routing window per element kind.
type Router struct {
	windows sync.Map // domain.ElementKind -> *window

	shards *shardclient.Manager
	tracer trace.Tracer
	log    *slog.Logger
}

// New constructs a Router. No window is configured for any kind until
// Configure is called; until then dispatch falls back to the shard
// client manager's static ring.
func New(shards *shardclient.Manager, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		shards: shards,
		tracer: otel.Tracer("accessfabric/router"),
		log:    log,
	}
}

func (r *Router) windowFor(kind domain.ElementKind) *window {
	if v, ok := r.windows.Load(kind); ok {
		return v.(*window)
	}
	w := newWindow()
	actual, _ := r.windows.LoadOrStore(kind, w)
	return actual.(*window)
}

// Configure installs cfg as kind's dual-routing window, replacing any
// prior window for that kind. Used both for the initial config-file
// window and for an operator-triggered re-shard.
func (r *Router) Configure(kind domain.ElementKind, cfg WindowConfig) {
	r.windowFor(kind).configure(cfg)
}

// SetRoutingOn toggles whether kind's dual-routing window is consulted.
func (r *Router) SetRoutingOn(kind domain.ElementKind, on bool) {
	r.windowFor(kind).setRoutingOn(on)
}

// Pause blocks further DispatchEvent, DispatchPredicate, and
// DispatchEnumerate calls against kind until Resume is called, providing
// an online re-sharding cut-over point. FanOutEnumerate does not wait on
// a pause.
func (r *Router) Pause(kind domain.ElementKind) {
	r.windowFor(kind).pause()
}

// Resume releases any operation blocked by a prior Pause.
func (r *Router) Resume(kind domain.ElementKind) {
	r.windowFor(kind).resume()
}

// DispatchEvent routes a single write operation keyed by hashKey. When the
// window is inactive it goes straight to the statically configured shard;
// when active and the key falls in the source/target intersection, it
// fans out to both and requires both to succeed.
func (r *Router) DispatchEvent(ctx context.Context, kind domain.ElementKind, hashKey, method string, args []string) error {
	ctx, span := r.tracer.Start(ctx, "router.DispatchEvent")
	defer span.End()

	w := r.windowFor(kind)
	if err := w.waitUnlessPaused(ctx); err != nil {
		return err
	}

	req := shardclient.Request{Op: domain.OpEvent, Kind: kind, Method: method, Args: args, HashKey: hashKey}
	state := w.snapshot()
	if !state.routingOn {
		return r.dispatchStatic(ctx, kind, domain.OpEvent, hashKey, req)
	}

	h := hashring.Unsigned(hashring.Hash(hashKey))
	targets := state.targets(h)
	if len(targets) == 0 {
		return apperrors.New(apperrors.CodeUnavailable, "router", "hash not covered by source or target range for "+string(kind))
	}
	for _, rec := range targets {
		client := r.shards.ClientFor(rec.Client)
		if _, err := client.Dispatch(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// DispatchPredicate routes a boolean "contains"/"has-access"-shaped query.
// A key in the source/target intersection ORs the two shards' answers.
func (r *Router) DispatchPredicate(ctx context.Context, kind domain.ElementKind, hashKey, method string, args []string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "router.DispatchPredicate")
	defer span.End()

	w := r.windowFor(kind)
	if err := w.waitUnlessPaused(ctx); err != nil {
		return false, err
	}

	req := shardclient.Request{Op: domain.OpQuery, Kind: kind, Method: method, Args: args, HashKey: hashKey}
	state := w.snapshot()
	if !state.routingOn {
		resp, err := r.dispatchStaticResponse(ctx, kind, domain.OpQuery, hashKey, req)
		if err != nil {
			return false, err
		}
		return resp.OK, nil
	}

	h := hashring.Unsigned(hashring.Hash(hashKey))
	targets := state.targets(h)
	if len(targets) == 0 {
		return false, apperrors.New(apperrors.CodeUnavailable, "router", "hash not covered by source or target range for "+string(kind))
	}
	result := false
	for _, rec := range targets {
		client := r.shards.ClientFor(rec.Client)
		resp, err := client.Dispatch(ctx, req)
		if err != nil {
			return false, err
		}
		result = result || resp.OK
	}
	return result, nil
}

// DispatchEnumerate routes a list-shaped query keyed by hashKey, unioning
// and de-duplicating results when the key falls in the source/target
// intersection.
func (r *Router) DispatchEnumerate(ctx context.Context, kind domain.ElementKind, hashKey, method string, args []string) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "router.DispatchEnumerate")
	defer span.End()

	w := r.windowFor(kind)
	if err := w.waitUnlessPaused(ctx); err != nil {
		return nil, err
	}

	req := shardclient.Request{Op: domain.OpQuery, Kind: kind, Method: method, Args: args, HashKey: hashKey}
	state := w.snapshot()
	if !state.routingOn {
		resp, err := r.dispatchStaticResponse(ctx, kind, domain.OpQuery, hashKey, req)
		if err != nil {
			return nil, err
		}
		return resp.Results, nil
	}

	h := hashring.Unsigned(hashring.Hash(hashKey))
	targets := state.targets(h)
	if len(targets) == 0 {
		return nil, apperrors.New(apperrors.CodeUnavailable, "router", "hash not covered by source or target range for "+string(kind))
	}
	var merged []string
	for _, rec := range targets {
		client := r.shards.ClientFor(rec.Client)
		resp, err := client.Dispatch(ctx, req)
		if err != nil {
			return nil, err
		}
		merged = append(merged, resp.Results...)
	}
	return dedupe(merged), nil
}

// FanOutEnumerate handles queries with no hashable key (spec.md §4.6,
// "Query fan-out"): every shard of kind is consulted and the results
// merged and de-duplicated, independent of any dual-routing window.
func (r *Router) FanOutEnumerate(ctx context.Context, kind domain.ElementKind, method string, args []string) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "router.FanOutEnumerate")
	defer span.End()

	req := shardclient.Request{Op: domain.OpQuery, Kind: kind, Method: method, Args: args}
	shards := r.shards.All(kind, domain.OpQuery)
	if len(shards) == 0 {
		return nil, apperrors.New(apperrors.CodeUnavailable, "router", "no shards configured for "+string(kind))
	}
	var merged []string
	for _, s := range shards {
		resp, err := s.Client.Dispatch(ctx, req)
		if err != nil {
			return nil, err
		}
		merged = append(merged, resp.Results...)
	}
	return dedupe(merged), nil
}

func (r *Router) dispatchStatic(ctx context.Context, kind domain.ElementKind, op domain.OpKind, hashKey string, req shardclient.Request) error {
	_, err := r.dispatchStaticResponse(ctx, kind, op, hashKey, req)
	return err
}

func (r *Router) dispatchStaticResponse(ctx context.Context, kind domain.ElementKind, op domain.OpKind, hashKey string, req shardclient.Request) (shardclient.Response, error) {
	client, _, ok := r.shards.GetClient(kind, op, hashring.Hash(hashKey))
	if !ok {
		return shardclient.Response{}, apperrors.New(apperrors.CodeUnavailable, "router", "no shard configured for "+string(kind))
	}
	return client.Dispatch(ctx, req)
}
