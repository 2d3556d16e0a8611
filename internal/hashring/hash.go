// Package hashring implements the Hash-Range Resolver (spec.md §4.7): a
// deterministic key hasher and a sorted, wrap-around ring lookup that maps a
// hash to the shard owning it for a given (element kind, op kind) pair.
package hashring

import "hash/fnv"

// Hash computes the deterministic 32-bit hash of s used for shard routing
// throughout the system (spec.md §3, "Hash code"). FNV-1a is used rather
// than a keyed or cryptographic hash because routing must be reproducible
// across processes and versions with no shared seed or secret — the exact
// property spec.md §8 property 6 ("Hash determinism") requires.
func Hash(s string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s)) // fnv.Write never errors
	return int32(h.Sum32())
}

// Unsigned reinterprets a hash code as the unsigned ring position used for
// range comparisons (spec.md §4.7 treats the hash space as a ring over
// uint32, i.e. "hash_code mod 2^32").
func Unsigned(h int32) uint32 {
	return uint32(h)
}
