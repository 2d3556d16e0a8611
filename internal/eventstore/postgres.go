package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"accessfabric/internal/apperrors"
	"accessfabric/internal/domain"
)

const defaultStoreTxTimeout = 5 * time.Second

// querier is satisfied by both *sql.DB and *sql.Tx, letting the read path
// (IsLive/ListLive, run outside any transaction) and the write path (run
// inside one) share the same SQL builders.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// PostgresStore is the production Store implementation: database/sql with
// github.com/lib/pq, transactions via db.BeginTx, table-level exclusive
// guards for cascade invalidation, grounded in the teacher's
// cmd/server/consent_tx.go transactional-boundary pattern and
// internal/ratelimit/store/*/store_postgres.go query style.
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresStore constructs a PostgreSQL-backed Store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, timeout: defaultStoreTxTimeout}
}

// postgresTx is the Tx handed to RunInTx's fn.
type postgresTx struct {
	tx *sql.Tx
}

// RunInTx mirrors the teacher's consentPostgresTx.RunInTx: derive a bounded
// context if the caller supplied none, begin a transaction, always defer a
// rollback, commit only if fn succeeds.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeTransient, "store", "transaction aborted: context cancelled")
	}

	timeout := s.timeout
	if timeout == 0 {
		timeout = defaultStoreTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "store", "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(postgresTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeTransient, "store", "commit transaction")
	}
	return nil
}

// Apply implements Tx.Apply against the transaction's *sql.Tx.
func (t postgresTx) Apply(ctx context.Context, event domain.Event) error {
	return apply(ctx, t.tx, event)
}

// Exists implements Tx.Exists against the transaction's *sql.Tx.
func (t postgresTx) Exists(ctx context.Context, eventID uuid.UUID) (bool, error) {
	return exists(ctx, t.tx, eventID)
}

// Exists implements Store.Exists for a direct (non-transactional) check.
func (s *PostgresStore) Exists(ctx context.Context, eventID uuid.UUID) (bool, error) {
	return exists(ctx, s.db, eventID)
}

// Apply implements Store.Apply as a single-statement-equivalent transaction
// for callers that don't need a multi-event batch.
func (s *PostgresStore) Apply(ctx context.Context, event domain.Event) error {
	return s.RunInTx(ctx, func(tx Tx) error { return tx.Apply(ctx, event) })
}

func exists(ctx context.Context, q querier, eventID uuid.UUID) (bool, error) {
	var ignored time.Time
	err := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT transaction_time FROM %s WHERE event_id = $1`, eventIndexTable), eventID).Scan(&ignored)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeTransient, eventID.String(), "check event index")
	}
	return true, nil
}

func apply(ctx context.Context, tx *sql.Tx, event domain.Event) error {
	if !event.Kind.Valid() {
		return apperrors.New(apperrors.CodeValidation, string(event.Kind), "unknown event kind")
	}
	if !event.Action.Valid() {
		return apperrors.New(apperrors.CodeValidation, string(event.Kind), "unknown event action")
	}

	var maxTxn sql.NullTime
	if err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT MAX(transaction_time) FROM %s`, eventIndexTable)).Scan(&maxTxn); err != nil {
		return apperrors.Wrap(err, apperrors.CodeTransient, string(event.Kind), "read max transaction time")
	}
	if maxTxn.Valid && event.Occurred.Before(maxTxn.Time) {
		return apperrors.New(apperrors.CodeConflict, string(event.Kind),
			"occurred_time precedes the current maximum transaction time")
	}

	var err error
	switch event.Action {
	case domain.ActionAdd:
		err = applyAdd(ctx, tx, event)
	case domain.ActionRemove:
		err = applyRemove(ctx, tx, event)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (event_id, transaction_time) VALUES ($1, $2)`, eventIndexTable),
		event.EventID, event.Occurred); err != nil {
		if isUniqueViolation(err) {
			return apperrors.Wrap(err, apperrors.CodeConflict, event.EventID.String(), "event id already registered")
		}
		return apperrors.Wrap(err, apperrors.CodeTransient, event.EventID.String(), "register event index")
	}
	return nil
}

func applyAdd(ctx context.Context, tx *sql.Tx, event domain.Event) error {
	table, ok := tables[event.Kind]
	if !ok {
		return apperrors.New(apperrors.CodeValidation, string(event.Kind), "no table registered for kind")
	}
	key := rowKey(event)

	live, err := liveRow(ctx, tx, event.Kind, key, event.Occurred)
	if err != nil {
		return err
	}
	if live {
		return apperrors.New(apperrors.CodeConflict, key, "aggregate already live")
	}

	if event.Kind == domain.KindUserToComponentAccess || event.Kind == domain.KindGroupToComponentAccess {
		if err := autoCreate(ctx, tx, domain.KindApplicationComponent, event.Payload[1], event.Occurred); err != nil {
			return err
		}
		if err := autoCreate(ctx, tx, domain.KindAccessLevel, event.Payload[2], event.Occurred); err != nil {
			return err
		}
	}

	rowID, err := insertRow(ctx, tx, table, event.Payload, event.Occurred, domain.MaxTime)
	if err != nil {
		return err
	}
	return insertAudit(ctx, tx, event, rowID)
}

// autoCreate creates aggregate kind's row for key if it is not currently
// live, per spec.md §4.1's auto-creation-on-first-use rule (Application
// Component and Access Level only).
func autoCreate(ctx context.Context, tx *sql.Tx, kind domain.Kind, key string, at time.Time) error {
	live, err := liveRow(ctx, tx, kind, key, at)
	if err != nil {
		return err
	}
	if live {
		return nil
	}
	_, err = insertRow(ctx, tx, tables[kind], [3]string{key}, at, domain.MaxTime)
	return err
}

func applyRemove(ctx context.Context, tx *sql.Tx, event domain.Event) error {
	table, ok := tables[event.Kind]
	if !ok {
		return apperrors.New(apperrors.CodeValidation, string(event.Kind), "no table registered for kind")
	}
	key := rowKey(event)
	closeAt := event.Occurred.Add(-domain.Epsilon)

	if cascades(event.Kind) {
		for _, step := range cascadeTable[event.Kind] {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`LOCK TABLE %s IN EXCLUSIVE MODE`, tables[step.Kind].Name)); err != nil {
				return apperrors.Wrap(err, apperrors.CodeTransient, string(event.Kind), "lock dependent table "+tables[step.Kind].Name)
			}
		}
		for _, step := range cascadeTable[event.Kind] {
			if err := invalidateReferencing(ctx, tx, step, event.Payload, closeAt, event.Occurred); err != nil {
				return err
			}
		}
	}

	rowID, found, err := closeLiveRow(ctx, tx, table, key, closeAt, event.Occurred)
	if err != nil {
		return err
	}
	if !found {
		return apperrors.New(apperrors.CodeNotFound, key, "no live row to remove")
	}
	return insertAudit(ctx, tx, event, rowID)
}

func insertRow(ctx context.Context, tx *sql.Tx, table tableInfo, payload [3]string, from, to time.Time) (int64, error) {
	cols := strings.Join(table.Columns, ", ")
	placeholders := make([]string, len(table.Columns)+2)
	args := make([]any, 0, len(table.Columns)+2)
	for i := range table.Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, payload[i])
	}
	placeholders[len(table.Columns)] = fmt.Sprintf("$%d", len(table.Columns)+1)
	placeholders[len(table.Columns)+1] = fmt.Sprintf("$%d", len(table.Columns)+2)
	args = append(args, from, to)

	query := fmt.Sprintf(`INSERT INTO %s (%s, transaction_from, transaction_to) VALUES (%s) RETURNING id`,
		table.Name, cols, strings.Join(placeholders, ", "))

	var id int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeTransient, table.Name, "insert row")
	}
	return id, nil
}

func liveRow(ctx context.Context, tx *sql.Tx, kind domain.Kind, key string, at time.Time) (bool, error) {
	table := tables[kind]
	n, _ := payloadFields(kind)
	if n == 0 {
		n = 1
	}
	fields := strings.Split(key, keySeparator)

	var whereCols []string
	args := []any{at, at}
	for i := 0; i < n; i++ {
		args = append(args, fields[i])
		whereCols = append(whereCols, fmt.Sprintf("%s = $%d", table.Columns[i], len(args)))
	}
	query := fmt.Sprintf(`SELECT id FROM %s WHERE transaction_from <= $1 AND transaction_to >= $2 AND %s LIMIT 1`,
		table.Name, strings.Join(whereCols, " AND "))

	var id int64
	err := tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeTransient, table.Name, "live row lookup")
	}
	return true, nil
}

func closeLiveRow(ctx context.Context, tx *sql.Tx, table tableInfo, key string, closeAt, at time.Time) (int64, bool, error) {
	n := len(table.Columns)
	fields := strings.Split(key, keySeparator)

	var whereCols []string
	args := []any{at, at}
	for i := 0; i < n; i++ {
		args = append(args, fields[i])
		whereCols = append(whereCols, fmt.Sprintf("%s = $%d", table.Columns[i], len(args)))
	}
	args = append(args, closeAt)
	query := fmt.Sprintf(`UPDATE %s SET transaction_to = $%d WHERE transaction_from <= $1 AND transaction_to >= $2 AND %s RETURNING id`,
		table.Name, len(args), strings.Join(whereCols, " AND "))

	var id int64
	err := tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperrors.Wrap(err, apperrors.CodeTransient, table.Name, "close live row")
	}
	return id, true, nil
}

// invalidateReferencing closes every live row of step.Kind whose payload
// references removedPayload at step.AtIndex, mirroring spec.md §4.1's
// cascade: "set transaction_to = occurred_time - ε on rows that reference X
// and are currently live."
func invalidateReferencing(ctx context.Context, tx *sql.Tx, step cascadeStep, removedPayload [3]string, closeAt, at time.Time) error {
	table := tables[step.Kind]

	var whereCols []string
	args := []any{at, at}
	for i, col := range step.AtIndex {
		args = append(args, removedPayload[i])
		whereCols = append(whereCols, fmt.Sprintf("%s = $%d", table.Columns[col], len(args)))
	}
	args = append(args, closeAt)
	query := fmt.Sprintf(`UPDATE %s SET transaction_to = $%d WHERE transaction_from <= $1 AND transaction_to >= $2 AND %s`,
		table.Name, len(args), strings.Join(whereCols, " AND "))

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, apperrors.CodeTransient, table.Name, "invalidate referencing rows")
	}
	return nil
}

func insertAudit(ctx context.Context, tx *sql.Tx, event domain.Event, rowID int64) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (event_id, kind, row_id, hash_code, action, occurred_time) VALUES ($1, $2, $3, $4, $5, $6)`,
		auditTable), event.EventID, string(event.Kind), rowID, event.HashCode, string(event.Action), event.Occurred)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeTransient, event.EventID.String(), "insert audit row")
	}
	return nil
}

// IsLive implements Store.IsLive against the live database, outside any
// write transaction.
func (s *PostgresStore) IsLive(ctx context.Context, kind domain.Kind, key string, at time.Time) (bool, error) {
	table, ok := tables[kind]
	if !ok {
		return false, apperrors.New(apperrors.CodeValidation, string(kind), "no table registered for kind")
	}
	n := len(table.Columns)
	fields := strings.Split(key, keySeparator)

	var whereCols []string
	args := []any{at, at}
	for i := 0; i < n && i < len(fields); i++ {
		args = append(args, fields[i])
		whereCols = append(whereCols, fmt.Sprintf("%s = $%d", table.Columns[i], len(args)))
	}
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE transaction_from <= $1 AND transaction_to >= $2 AND %s LIMIT 1`,
		table.Name, strings.Join(whereCols, " AND "))

	var ignored int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&ignored)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeTransient, table.Name, "is-live lookup")
	}
	return true, nil
}

// ListLive implements Store.ListLive against the live database.
func (s *PostgresStore) ListLive(ctx context.Context, kind domain.Kind, at time.Time) ([]string, error) {
	table, ok := tables[kind]
	if !ok {
		return nil, apperrors.New(apperrors.CodeValidation, string(kind), "no table registered for kind")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE transaction_from <= $1 AND transaction_to >= $1`,
		strings.Join(table.Columns, ", "), table.Name)

	rows, err := s.db.QueryContext(ctx, query, at)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeTransient, table.Name, "list-live query")
	}
	defer rows.Close()

	var keys []string
	scanArgs := make([]any, len(table.Columns))
	values := make([]string, len(table.Columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeTransient, table.Name, "scan list-live row")
		}
		keys = append(keys, RelationKey(values...))
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeTransient, table.Name, "iterate list-live rows")
	}
	return keys, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
