package eventstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"accessfabric/internal/apperrors"
	"accessfabric/internal/domain"
)

type memRow struct {
	Row     domain.Row
	Payload [3]string
}

// MemoryStore is an in-process Store used by unit tests and by the bulk
// processor's idempotence tests, grounded on the teacher's
// internal/*/store_memory.go family: a mutex-guarded map standing in for a
// real relational backend.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	rows     map[domain.Kind][]*memRow
	events   map[uuid.UUID]time.Time
	maxTxn   time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:   make(map[domain.Kind][]*memRow),
		events: make(map[uuid.UUID]time.Time),
	}
}

// RunInTx runs fn against a snapshot of the store's state; the snapshot is
// only committed back if fn returns nil, giving the same all-or-nothing
// semantics a real transaction would (spec.md §4.3's "batch is
// transactional end-to-end").
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeTransient, "store", "transaction aborted: context cancelled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.snapshotLocked()
	if err := fn(working); err != nil {
		return err
	}
	s.rows = working.rows
	s.events = working.events
	s.maxTxn = working.maxTxn
	s.nextID = working.nextID
	return nil
}

// RunInTxWithRetry satisfies Store; the in-memory store has no class-40
// serialization-failure concept, so it runs fn exactly once via RunInTx.
func (s *MemoryStore) RunInTxWithRetry(ctx context.Context, maxRetries int, fn func(tx Tx) error) error {
	return s.RunInTx(ctx, fn)
}

// snapshotLocked deep-copies the store's rows/events for a transaction
// attempt. Caller must hold s.mu.
func (s *MemoryStore) snapshotLocked() *MemoryStore {
	cp := &MemoryStore{
		rows:   make(map[domain.Kind][]*memRow, len(s.rows)),
		events: make(map[uuid.UUID]time.Time, len(s.events)),
		maxTxn: s.maxTxn,
		nextID: s.nextID,
	}
	for k, list := range s.rows {
		cpList := make([]*memRow, len(list))
		for i, r := range list {
			row := *r
			cpList[i] = &row
		}
		cp.rows[k] = cpList
	}
	for id, t := range s.events {
		cp.events[id] = t
	}
	return cp
}

// Apply implements Tx against the in-flight transaction snapshot. Callers
// driving a real batch should do so through RunInTx; Apply still locks here
// so that a direct, single-shot call outside a transaction is also safe.
func (s *MemoryStore) Apply(ctx context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !event.Kind.Valid() {
		return apperrors.New(apperrors.CodeValidation, string(event.Kind), "unknown event kind")
	}
	if !event.Action.Valid() {
		return apperrors.New(apperrors.CodeValidation, string(event.Kind), "unknown event action")
	}
	if _, exists := s.events[event.EventID]; exists {
		return apperrors.New(apperrors.CodeConflict, event.EventID.String(), "event id already registered")
	}
	if event.Occurred.Before(s.maxTxn) {
		return apperrors.New(apperrors.CodeConflict, string(event.Kind),
			"occurred_time precedes the current maximum transaction time")
	}

	switch event.Action {
	case domain.ActionAdd:
		if err := s.applyAddLocked(event); err != nil {
			return err
		}
	case domain.ActionRemove:
		if err := s.applyRemoveLocked(event); err != nil {
			return err
		}
	}

	s.events[event.EventID] = event.Occurred
	s.maxTxn = event.Occurred
	return nil
}

func (s *MemoryStore) applyAddLocked(event domain.Event) error {
	key := rowKey(event)
	if s.liveRowLocked(event.Kind, key, event.Occurred) != nil {
		return apperrors.New(apperrors.CodeConflict, key, "aggregate already live")
	}

	if event.Kind == domain.KindUserToComponentAccess || event.Kind == domain.KindGroupToComponentAccess {
		s.autoCreateLocked(domain.KindApplicationComponent, event.Payload[1], event.Occurred)
		s.autoCreateLocked(domain.KindAccessLevel, event.Payload[2], event.Occurred)
	}

	s.nextID++
	s.rows[event.Kind] = append(s.rows[event.Kind], &memRow{
		Row: domain.Row{
			ID:              s.nextID,
			TransactionFrom: event.Occurred,
			TransactionTo:   domain.MaxTime,
		},
		Payload: event.Payload,
	})
	return nil
}

// autoCreateLocked creates aggregate kind with the given key if it is not
// currently live, per spec.md §4.1's "auto-creation on first use" rule.
func (s *MemoryStore) autoCreateLocked(kind domain.Kind, key string, at time.Time) {
	if s.liveRowLocked(kind, key, at) != nil {
		return
	}
	s.nextID++
	s.rows[kind] = append(s.rows[kind], &memRow{
		Row: domain.Row{
			ID:              s.nextID,
			TransactionFrom: at,
			TransactionTo:   domain.MaxTime,
		},
		Payload: [3]string{key},
	})
}

func (s *MemoryStore) applyRemoveLocked(event domain.Event) error {
	key := rowKey(event)
	live := s.liveRowLocked(event.Kind, key, event.Occurred)
	if live == nil {
		return apperrors.New(apperrors.CodeNotFound, key, "no live row to remove")
	}

	closeAt := event.Occurred.Add(-domain.Epsilon)

	if cascades(event.Kind) {
		for _, step := range cascadeTable[event.Kind] {
			for _, row := range s.rows[step.Kind] {
				if !row.Row.Live(event.Occurred) {
					continue
				}
				if step.matches(event.Payload, row.Payload) {
					row.Row.TransactionTo = closeAt
				}
			}
		}
	}

	live.Row.TransactionTo = closeAt
	return nil
}

func (s *MemoryStore) liveRowLocked(kind domain.Kind, key string, at time.Time) *memRow {
	n, _ := payloadFields(kind)
	if n == 0 {
		n = 1
	}
	for _, row := range s.rows[kind] {
		if !row.Row.Live(at) {
			continue
		}
		if RelationKey(row.Payload[:n]...) == key {
			return row
		}
	}
	return nil
}

// Exists reports whether eventID has been registered.
func (s *MemoryStore) Exists(ctx context.Context, eventID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.events[eventID]
	return ok, nil
}

// IsLive implements Store.IsLive.
func (s *MemoryStore) IsLive(ctx context.Context, kind domain.Kind, key string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveRowLocked(kind, key, at) != nil, nil
}

// ListLive implements Store.ListLive.
func (s *MemoryStore) ListLive(ctx context.Context, kind domain.Kind, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, _ := payloadFields(kind)
	if n == 0 {
		n = 1
	}
	var keys []string
	for _, row := range s.rows[kind] {
		if row.Row.Live(at) {
			keys = append(keys, RelationKey(row.Payload[:n]...))
		}
	}
	return keys, nil
}
