// Package eventbuffer implements the Event Buffer & Flush Strategy
// (spec.md §4.2): a bounded, insertion-ordered queue that drains into the
// Bulk Event Processor by size or interval trigger, coalescing concurrent
// flush attempts into one.
//
// The queue shape is adapted from the teacher's
// pkg/platform/audit/publishers/security/buffer.go ring buffer and
// internal/audit/worker.go ticker/select background loop — unlike that
// ring buffer, which drops the oldest entry once full, this buffer never
// drops: reaching capacity blocks Append until the next flush makes room,
// since spec.md requires every buffered event to eventually become
// durable.
package eventbuffer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"accessfabric/internal/bulkprocessor"
	"accessfabric/internal/apperrors"
	"accessfabric/internal/domain"
	"accessfabric/internal/eventcache"
	"accessfabric/internal/hashring"
	"accessfabric/internal/metrics"
	"accessfabric/internal/notify"
)

// Draft is the caller-supplied shape of a new event: everything but the
// identity, timestamp, and hash code the buffer assigns at Append time.
type Draft struct {
	Kind          domain.Kind
	Action        domain.Action
	Payload       [3]string
	CorrelationID string
}

// Buffer queues drafted events in insertion order and flushes them into a
// bulkprocessor.Processor by size or interval trigger.
type Buffer struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []domain.Event

	sizeLimit int
	interval  time.Duration

	processor *bulkprocessor.Processor
	cache     *eventcache.Cache
	publisher notify.Publisher
	metrics   *metrics.Metrics
	ts        *metrics.TripSwitch // optional; nil disables the fail-fast check and tripping on flush failure
	log       *slog.Logger

	clock      monotonicClock
	flushGroup singleflight.Group

	sizeTrigger chan struct{}
	stop        chan struct{}
	done        chan struct{}
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithTripSwitch installs the trip-switch Append consults before queuing,
// so a write submitted while the switch is actuated fails fast (spec.md
// §4.8) instead of being accepted and only failing at the next flush. A
// failed flush actuates the same switch.
func WithTripSwitch(ts *metrics.TripSwitch) Option {
	return func(b *Buffer) {
		b.ts = ts
	}
}

// New constructs a Buffer. publisher may be notify.Noop{} to disable
// downstream fan-out; cache may be nil to skip the C1+C4 fan-out's cache
// side (tests that only care about durability do this).
func New(sizeLimit int, interval time.Duration, processor *bulkprocessor.Processor, cache *eventcache.Cache, publisher notify.Publisher, m *metrics.Metrics, log *slog.Logger, opts ...Option) *Buffer {
	if sizeLimit <= 0 {
		sizeLimit = 1
	}
	if publisher == nil {
		publisher = notify.Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	b := &Buffer{
		sizeLimit:   sizeLimit,
		interval:    interval,
		processor:   processor,
		cache:       cache,
		publisher:   publisher,
		metrics:     m,
		log:         log,
		sizeTrigger: make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the background flush loop. Run once per Buffer; Stop
// joins it.
func (b *Buffer) Start(ctx context.Context) {
	go b.loop(ctx)
}

// Stop signals the background loop to exit and waits for it to finish.
func (b *Buffer) Stop() {
	close(b.stop)
	<-b.done
}

func (b *Buffer) loop(ctx context.Context) {
	defer close(b.done)

	var ticker *time.Ticker
	var tick <-chan time.Time
	if b.interval > 0 {
		ticker = time.NewTicker(b.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-b.stop:
			return
		case <-ctx.Done():
			return
		case <-tick:
			if err := b.Flush(ctx); err != nil {
				b.log.Warn("eventbuffer: interval flush failed", "error", err)
			}
		case <-b.sizeTrigger:
			if err := b.Flush(ctx); err != nil {
				b.log.Warn("eventbuffer: size-triggered flush failed", "error", err)
			}
		}
	}
}

// Append assigns event_id, occurred_time, and hash_code to draft and queues
// it. It returns synchronously with a durable event_id but not a durable
// event: durability is established only after the next successful flush.
// If the queue is already at capacity, Append blocks until a flush frees
// room (spec.md §5: "every Append against a full buffer... may block").
//
// If the trip-switch is actuated, Append fails fast with a typed
// "unavailable" error instead of accepting the write (spec.md §4.8): a
// write accepted here would otherwise only fail later at flush, after the
// caller has already seen success.
func (b *Buffer) Append(ctx context.Context, draft Draft) (uuid.UUID, error) {
	if b.ts != nil && b.ts.Actuated(ctx) {
		return uuid.Nil, apperrors.New(apperrors.CodeUnavailable, "eventbuffer", "trip-switch actuated")
	}

	b.mu.Lock()
	for len(b.queue) >= b.sizeLimit {
		b.cond.Wait()
		if ctx.Err() != nil {
			b.mu.Unlock()
			return uuid.Nil, ctx.Err()
		}
	}

	event := domain.Event{
		EventID:       uuid.New(),
		Kind:          draft.Kind,
		Action:        draft.Action,
		Payload:       draft.Payload,
		CorrelationID: draft.CorrelationID,
		Occurred:      b.clock.next(),
	}
	event.HashCode = hashring.Hash(event.PrimaryKey())

	b.queue = append(b.queue, event)
	full := len(b.queue) >= b.sizeLimit
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.EventsAppended.Inc()
	}
	if full {
		select {
		case b.sizeTrigger <- struct{}{}:
		default:
		}
	}
	return event.EventID, nil
}

// Flush drains the queue into the bulk processor. Only one flush runs at a
// time; concurrent callers coalesce onto the in-flight attempt via
// singleflight, matching spec.md §4.2's "only one flush runs at a time;
// additional triggers coalesce."
func (b *Buffer) Flush(ctx context.Context) error {
	_, err, _ := b.flushGroup.Do("flush", func() (any, error) {
		return nil, b.doFlush(ctx)
	})
	return err
}

func (b *Buffer) doFlush(ctx context.Context) error {
	b.mu.Lock()
	batch := make([]domain.Event, len(b.queue))
	copy(batch, b.queue)
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	_, err := b.processor.ProcessEvents(ctx, batch, false)
	if b.metrics != nil {
		b.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if b.metrics != nil {
			b.metrics.EventsFlushed.WithLabelValues("failure").Add(float64(len(batch)))
		}
		if b.ts != nil {
			b.ts.Trip(ctx)
		}
		// The buffer is retained: we never removed batch from the queue.
		return err
	}

	b.mu.Lock()
	b.queue = b.queue[len(batch):]
	b.cond.Broadcast()
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.EventsFlushed.WithLabelValues("success").Add(float64(len(batch)))
	}
	if b.cache != nil {
		b.cache.AppendAll(batch)
	}
	for _, event := range batch {
		b.publisher.Publish(ctx, event)
	}
	return nil
}

// Len reports the number of events currently queued (not yet durable).
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
