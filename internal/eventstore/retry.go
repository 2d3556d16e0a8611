package eventstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
)

const defaultMaxDeadlockRetries = 3

// isSerializationFailure reports whether err is a Postgres class-40
// "transaction rollback" error (serialization failure, deadlock detected),
// per spec.md §5's deadlock-class retry requirement.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.HasPrefix(string(pqErr.Code), "40")
	}
	return false
}

// RunInTxWithRetry runs fn via RunInTx, retrying class-40 serialization
// failures up to maxRetries times with jittered exponential backoff.
// Non-retryable errors (validation, not-found, conflict) return
// immediately. Grounded in github.com/cenkalti/backoff/v4's standard
// retry-with-backoff shape; the teacher carries this dependency indirectly
// but has no call site of its own, so this is the one place it is promoted
// to direct use.
func (s *PostgresStore) RunInTxWithRetry(ctx context.Context, maxRetries int, fn func(tx Tx) error) error {
	if maxRetries <= 0 {
		maxRetries = defaultMaxDeadlockRetries
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond
	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxRetries)), ctx)

	op := func() error {
		err := s.RunInTx(ctx, fn)
		if err == nil {
			return nil
		}
		if isSerializationFailure(unwrapCause(err)) {
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, bounded); err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		return err
	}
	return nil
}

// unwrapCause walks an *apperrors.Error (or any wrapped error) down to its
// underlying cause, since the pq.Error class check needs the original
// driver error, not the apperrors.Error wrapping it.
func unwrapCause(err error) error {
	for {
		u := errors.Unwrap(err)
		if u == nil {
			return err
		}
		err = u
	}
}
