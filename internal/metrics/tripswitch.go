package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// tripSwitchRedisKey mirrors the local trip-switch state across instances
// sharing one Redis, following the corpus's store_redis.go pattern of
// using a single well-known key as a distributed marker.
const tripSwitchRedisKey = "accessfabric:trip_switch:actuated"

// TripSwitch is the latch described in spec.md §4.8: once actuated by a
// buffer-flush or bulk-persister failure, every write operation must fail
// fast until an operator resets it. Unlike the teacher's CircuitBreaker
// (internal/ratelimit/middleware/circuitbreaker.go), which auto-recovers
// after a run of successes, this latch never self-clears — spec.md is
// explicit that only a manual Reset does.
type TripSwitch struct {
	actuated atomic.Bool
	metrics  *Metrics
	mirror   *redis.Client // optional; nil disables cross-instance mirroring
}

// NewTripSwitch constructs a TripSwitch. mirror may be nil.
func NewTripSwitch(m *Metrics, mirror *redis.Client) *TripSwitch {
	return &TripSwitch{metrics: m, mirror: mirror}
}

// Trip actuates the switch. Safe to call repeatedly.
func (t *TripSwitch) Trip(ctx context.Context) {
	if !t.actuated.CompareAndSwap(false, true) {
		return
	}
	if t.metrics != nil {
		t.metrics.TripSwitchState.Set(1)
	}
	if t.mirror != nil {
		_ = t.mirror.Set(ctx, tripSwitchRedisKey, "1", 0).Err()
	}
}

// Reset clears the switch. Only an operator action should call this.
func (t *TripSwitch) Reset(ctx context.Context) {
	t.actuated.Store(false)
	if t.metrics != nil {
		t.metrics.TripSwitchState.Set(0)
	}
	if t.mirror != nil {
		_ = t.mirror.Del(ctx, tripSwitchRedisKey).Err()
	}
}

// Actuated reports whether the switch is currently tripped, consulting the
// Redis mirror (if configured) so that an operator's reset on one instance
// is observed promptly by its peers.
func (t *TripSwitch) Actuated(ctx context.Context) bool {
	if t.mirror != nil {
		cctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		n, err := t.mirror.Exists(cctx, tripSwitchRedisKey).Result()
		if err == nil {
			remote := n > 0
			if remote != t.actuated.Load() {
				t.actuated.Store(remote)
				if t.metrics != nil {
					if remote {
						t.metrics.TripSwitchState.Set(1)
					} else {
						t.metrics.TripSwitchState.Set(0)
					}
				}
			}
			return remote
		}
		// Redis unreachable: fall back to local state rather than fail
		// reads/writes on an observability dependency.
	}
	return t.actuated.Load()
}
