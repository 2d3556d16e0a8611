package hashring

import (
	"sort"

	"accessfabric/internal/domain"
)

// Range is one shard's ownership window over the ring, keyed by
// (element kind, op kind). Start is inclusive; the window extends to the
// next range's Start (exclusive), wrapping around at 2^32.
type Range struct {
	Start  uint32
	Record domain.ShardConfigRecord
}

// poolKey identifies one (kind, op) ring.
type poolKey struct {
	Kind domain.ElementKind
	Op   domain.OpKind
}

// Resolver holds one sorted ring per (element kind, op kind) and answers
// "which shard owns this hash" in O(log n). It is immutable once built —
// callers swap in a new Resolver wholesale on reconfiguration, matching the
// "atomic reconfiguration" requirement shared by C5 and C6.
type Resolver struct {
	rings map[poolKey][]Range
}

// New builds a Resolver from a flat shard configuration set.
func New(records []domain.ShardConfigRecord) *Resolver {
	rings := make(map[poolKey][]Range)
	for _, rec := range records {
		key := poolKey{Kind: rec.Kind, Op: rec.Op}
		rings[key] = append(rings[key], Range{
			Start:  Unsigned(rec.HashRangeStart),
			Record: rec,
		})
	}
	for key := range rings {
		sort.Slice(rings[key], func(i, j int) bool {
			return rings[key][i].Start < rings[key][j].Start
		})
	}
	return &Resolver{rings: rings}
}

// Resolve returns the shard config record whose HashRangeStart is the
// greatest value not exceeding h among records matching (kind, op),
// wrapping around to the greatest-start record when h is smaller than every
// configured start (spec.md §4.7: "the shard with the greatest start covers
// wrap-around back to the smallest").
func (r *Resolver) Resolve(kind domain.ElementKind, op domain.OpKind, h int32) (domain.ShardConfigRecord, bool) {
	ranges := r.rings[poolKey{Kind: kind, Op: op}]
	if len(ranges) == 0 {
		return domain.ShardConfigRecord{}, false
	}

	target := Unsigned(h)
	// Binary search for the greatest Start <= target.
	idx := sort.Search(len(ranges), func(i int) bool {
		return ranges[i].Start > target
	})
	if idx == 0 {
		// Wrap around: target is smaller than every start, so it belongs
		// to the range with the greatest start.
		return ranges[len(ranges)-1].Record, true
	}
	return ranges[idx-1].Record, true
}

// All returns every shard config record matching (kind, op), in ring order.
// Used by query fan-out for keyless operations (spec.md §4.6, "Query
// fan-out").
func (r *Resolver) All(kind domain.ElementKind, op domain.OpKind) []domain.ShardConfigRecord {
	ranges := r.rings[poolKey{Kind: kind, Op: op}]
	out := make([]domain.ShardConfigRecord, len(ranges))
	for i, rg := range ranges {
		out[i] = rg.Record
	}
	return out
}
