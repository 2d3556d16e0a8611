// Package bulkprocessor implements the Bulk Event Processor (spec.md §4.3):
// validates an ordered batch of events, applies them to the event store in
// one transaction, and supports idempotent replay via ignore_preexisting.
package bulkprocessor

import (
	"context"
	"time"

	"accessfabric/internal/apperrors"
	"accessfabric/internal/domain"
	"accessfabric/internal/eventstore"
	"accessfabric/internal/metrics"
)

// Result reports how a batch was applied.
type Result struct {
	Applied int
	Skipped int // only non-zero when ignorePreexisting is true
}

// DedupeChecker is the narrow interface an optional fast-path existence
// check satisfies — grounded on the teacher's RedisTRL.IsRevoked pattern
// (internal/auth/store/revocation/store_redis.go): a cheap Redis round
// trip ahead of the transactional store, to skip already-seen event ids
// without paying for a Postgres round trip per event during large replays.
type DedupeChecker interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error
}

// Processor validates, orders, and dispatches events to a Store in one
// transaction, per spec.md §4.3.
type Processor struct {
	store      eventstore.Store
	ts         *metrics.TripSwitch
	metrics    *metrics.Metrics
	dedupe     DedupeChecker // optional; nil disables the fast path
	dedupeTTL  time.Duration
	maxRetries int // class-40 serialization-failure retries, spec.md §5
}

// Option configures a Processor.
type Option func(*Processor)

// WithDedupeChecker installs the optional Redis fast-path existence check.
func WithDedupeChecker(d DedupeChecker, ttl time.Duration) Option {
	return func(p *Processor) {
		p.dedupe = d
		p.dedupeTTL = ttl
	}
}

// WithMaxRetries sets how many times a class-40 serialization failure is
// retried before the batch fails and the trip-switch trips (config:
// storage.max_deadlock_retries). n<=0 uses the store's own default.
func WithMaxRetries(n int) Option {
	return func(p *Processor) {
		p.maxRetries = n
	}
}

// New constructs a Processor.
func New(store eventstore.Store, ts *metrics.TripSwitch, m *metrics.Metrics, opts ...Option) *Processor {
	p := &Processor{store: store, ts: ts, metrics: m, dedupeTTL: 24 * time.Hour}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessEvents applies events to the store in input order inside one
// transaction. In strict mode (ignorePreexisting=false) any duplicate
// event_id aborts the whole batch; in ignore-preexisting mode, events whose
// id is already registered are silently skipped rather than re-applied.
// An unknown event_kind or event_action aborts the batch before any write.
func (p *Processor) ProcessEvents(ctx context.Context, events []domain.Event, ignorePreexisting bool) (Result, error) {
	if p.ts != nil && p.ts.Actuated(ctx) {
		return Result{}, apperrors.New(apperrors.CodeUnavailable, "bulkprocessor", "trip-switch actuated")
	}

	for _, event := range events {
		if !event.Kind.Valid() {
			p.countBatch("rejected")
			return Result{}, apperrors.New(apperrors.CodeValidation, string(event.Kind), "unknown event kind")
		}
		if !event.Action.Valid() {
			p.countBatch("rejected")
			return Result{}, apperrors.New(apperrors.CodeValidation, string(event.Kind), "unknown event action")
		}
	}

	var result Result
	err := p.store.RunInTxWithRetry(ctx, p.maxRetries, func(tx eventstore.Tx) error {
		for _, event := range events {
			skip, err := p.shouldSkip(ctx, tx, event, ignorePreexisting)
			if err != nil {
				return err
			}
			if skip {
				result.Skipped++
				continue
			}
			if err := tx.Apply(ctx, event); err != nil {
				return err
			}
			if p.dedupe != nil {
				_ = p.dedupe.MarkSeen(ctx, event.EventID.String(), p.dedupeTTL)
			}
			result.Applied++
		}
		return nil
	})
	if err != nil {
		if p.ts != nil {
			p.ts.Trip(ctx)
		}
		p.countBatch("failure")
		return Result{}, err
	}

	p.countBatch("success")
	return result, nil
}

// shouldSkip reports whether event should be skipped because its id is
// already registered. In strict mode a preexisting id is a hard conflict,
// not a skip.
func (p *Processor) shouldSkip(ctx context.Context, tx eventstore.Tx, event domain.Event, ignorePreexisting bool) (bool, error) {
	if p.dedupe != nil {
		seen, err := p.dedupe.Seen(ctx, event.EventID.String())
		if err == nil && seen {
			if !ignorePreexisting {
				return false, apperrors.New(apperrors.CodeConflict, event.EventID.String(), "event id already registered")
			}
			return true, nil
		}
	}

	exists, err := tx.Exists(ctx, event.EventID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if !ignorePreexisting {
		return false, apperrors.New(apperrors.CodeConflict, event.EventID.String(), "event id already registered")
	}
	return true, nil
}

func (p *Processor) countBatch(outcome string) {
	if p.metrics != nil {
		p.metrics.BulkBatches.WithLabelValues(outcome).Inc()
	}
}
