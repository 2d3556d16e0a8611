// Package eventstore implements the Temporal Event Store (spec.md §4.1): the
// append-only, bitemporal persistence layer that guarantees at-most-one-live
// row per logical aggregate or relation while preserving full history.
//
// Two implementations share the Store interface: PostgresStore, grounded on
// the teacher's transactional-boundary pattern in
// cmd/server/consent_tx.go and its database/sql + lib/pq query style in
// internal/ratelimit/store/*/store_postgres.go; and MemoryStore, grounded on
// the teacher's internal/*/store_memory.go family, used by unit tests and by
// the bulk processor's idempotence tests.
package eventstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"accessfabric/internal/domain"
)

// Tx is the per-transaction surface an event store exposes to callers that
// need several operations applied atomically — the bulk processor's
// all-or-nothing batch semantics (spec.md §4.3) run entirely inside one Tx.
type Tx interface {
	// Apply persists a single event per the add-X / remove-X contract of
	// spec.md §4.1. It returns an *accessfabric/internal/apperrors.Error
	// describing the failing aggregate and cause.
	Apply(ctx context.Context, event domain.Event) error

	// Exists reports whether eventID has already been registered in the
	// event_id -> transaction_time index, for the bulk processor's
	// ignore-preexisting mode.
	Exists(ctx context.Context, eventID uuid.UUID) (bool, error)
}

// Store is the full interface a Temporal Event Store implementation
// provides: the write surface (via RunInTx) plus the local read path used
// by the operation router when a query can be answered without a remote
// shard call.
type Store interface {
	Tx

	// RunInTx runs fn inside one transaction; fn's error aborts the whole
	// transaction (full rollback), matching spec.md §4.1's "every operation
	// runs inside one transaction" and §4.3's "batch is transactional
	// end-to-end" contracts.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	// RunInTxWithRetry runs fn via RunInTx, retrying Postgres class-40
	// serialization failures (deadlock detected, could not serialize
	// access) up to maxRetries times with jittered exponential backoff,
	// per spec.md §5's deadlock-class retry requirement. maxRetries<=0
	// uses the store's own default. A store with no retryable failure
	// class (MemoryStore) runs fn exactly once.
	RunInTxWithRetry(ctx context.Context, maxRetries int, fn func(tx Tx) error) error

	// IsLive reports whether the aggregate or relation identified by kind
	// and key has a live row at instant at. key is the same primary-key
	// string used as domain.Event.Payload[0] for single-key kinds; callers
	// needing a compound key (relations) pass the joined key produced by
	// RelationKey.
	IsLive(ctx context.Context, kind domain.Kind, key string, at time.Time) (bool, error)

	// ListLive returns the primary keys of every row of kind live at
	// instant at, for enumeration-style queries ("all users", "all entity
	// types") that carry no hashable key of their own.
	ListLive(ctx context.Context, kind domain.Kind, at time.Time) ([]string, error)
}
