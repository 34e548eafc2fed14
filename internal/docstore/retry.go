package docstore

import (
	"context"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// Contention backoff bounds.
const (
	retryInitialInterval = 5 * time.Millisecond
	retryMaxInterval     = 50 * time.Millisecond
)

// Retry runs attempt up to maxAttempts times while retryable reports true for
// its error, sleeping a jittered exponential backoff between tries. Errors
// retryable rejects are returned as is; exhaustion yields ErrTransactionAborted.
func Retry(ctx context.Context, maxAttempts int, attempt func() error, retryable func(error) bool) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = retryInitialInterval
	exp.Multiplier = 2
	exp.MaxInterval = retryMaxInterval
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(maxAttempts-1)), ctx)
	err := backoff.Retry(func() error {
		err := attempt()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	if err != nil && retryable(err) {
		return fmt.Errorf("%w: %d attempts: %v", ErrTransactionAborted, maxAttempts, err)
	}
	return err
}

// WriteGuard tracks the reads-before-writes rule inside a transaction.
type WriteGuard struct {
	wrote bool
}

// Read returns ErrReadAfterWrite once any write has been recorded.
func (g *WriteGuard) Read() error {
	if g.wrote {
		return ErrReadAfterWrite
	}
	return nil
}

// Wrote records a write.
func (g *WriteGuard) Wrote() { g.wrote = true }
