package router

import (
	"context"
	"sync"

	"accessfabric/internal/domain"
)

// membership classifies a hash against a window's source/target ranges,
// per spec.md §4.6's dual-routing rule.
type membership int

const (
	memberNeither membership = iota
	memberSourceOnly
	memberTargetOnly
	memberBoth
)

// inRange reports whether h falls in the half-open interval [start, end)
// over the uint32 ring, wrapping around when start > end (mirrors the
// wrap-around convention internal/hashring uses for shard ranges).
func inRange(h, start, end uint32) bool {
	if start == end {
		return false
	}
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

// window holds one element kind's dual-routing state: the four range
// variables and routing_on/paused flags from spec.md §4.6, guarded by a
// mutex with a condition variable for Pause/Resume blocking.
type window struct {
	mu   sync.Mutex
	cond *sync.Cond

	routingOn bool
	paused    bool

	sourceStart, sourceEnd uint32
	targetStart, targetEnd uint32
	source, target         domain.ShardConfigRecord
}

func newWindow() *window {
	w := &window{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// windowState is an immutable snapshot of a window's routing configuration,
// taken once per dispatched call so classification doesn't hold the lock.
type windowState struct {
	routingOn              bool
	sourceStart, sourceEnd uint32
	targetStart, targetEnd uint32
	source, target         domain.ShardConfigRecord
}

// waitUnlessPaused blocks while the window is paused, per spec.md §4.6:
// "paused operations block rather than error, providing a cut-over point
// during shard migration." Mirrors internal/eventbuffer.Buffer.Append's
// cond-wait-then-check-ctx shape: a wake only happens on Resume, so a wait
// exits early only once the caller's context is already done at that point.
func (w *window) waitUnlessPaused(ctx context.Context) error {
	w.mu.Lock()
	for w.paused {
		w.cond.Wait()
		if ctx.Err() != nil {
			w.mu.Unlock()
			return ctx.Err()
		}
	}
	w.mu.Unlock()
	return nil
}

func (w *window) pause() {
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
}

func (w *window) resume() {
	w.mu.Lock()
	w.paused = false
	w.mu.Unlock()
	w.cond.Broadcast()
}

func (w *window) setRoutingOn(on bool) {
	w.mu.Lock()
	w.routingOn = on
	w.mu.Unlock()
}

// configure installs a new dual-routing range pair. cfg.RoutingOn selects
// whether the window is consulted at all or bypassed entirely.
func (w *window) configure(cfg WindowConfig) {
	w.mu.Lock()
	w.routingOn = cfg.RoutingOn
	w.sourceStart, w.sourceEnd = cfg.SourceStart, cfg.SourceEnd
	w.targetStart, w.targetEnd = cfg.TargetStart, cfg.TargetEnd
	w.source, w.target = cfg.Source, cfg.Target
	w.mu.Unlock()
}

func (w *window) snapshot() windowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return windowState{
		routingOn:   w.routingOn,
		sourceStart: w.sourceStart,
		sourceEnd:   w.sourceEnd,
		targetStart: w.targetStart,
		targetEnd:   w.targetEnd,
		source:      w.source,
		target:      w.target,
	}
}

func (s windowState) classify(h uint32) membership {
	inSource := inRange(h, s.sourceStart, s.sourceEnd)
	inTarget := inRange(h, s.targetStart, s.targetEnd)
	switch {
	case inSource && inTarget:
		return memberBoth
	case inSource:
		return memberSourceOnly
	case inTarget:
		return memberTargetOnly
	default:
		return memberNeither
	}
}

// targets returns the shard(s) a hash in this dual-routing window must be
// dispatched to: one for source-only or target-only, both (in source,
// target order) for the intersection.
func (s windowState) targets(h uint32) []domain.ShardConfigRecord {
	switch s.classify(h) {
	case memberSourceOnly:
		return []domain.ShardConfigRecord{s.source}
	case memberTargetOnly:
		return []domain.ShardConfigRecord{s.target}
	case memberBoth:
		return []domain.ShardConfigRecord{s.source, s.target}
	default:
		return nil
	}
}
