package docstore

import (
	"context"
	"errors"
	"time"
)

// Bounded wraps a Store so every call runs under a deadline. A call that
// runs out of time fails with ErrStoreUnavailable.
type Bounded struct {
	inner   Store
	timeout time.Duration
}

// WithTimeout bounds every call on s by d. A non-positive d returns s unchanged.
func WithTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return &Bounded{inner: s, timeout: d}
}

// Unwrap returns the wrapped store.
func (b *Bounded) Unwrap() Store { return b.inner }

func (b *Bounded) bound(ctx context.Context, call func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	err := call(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &timeoutError{cause: err}
	}
	return err
}

func (b *Bounded) Get(ctx context.Context, collection, key string, dst any) error {
	return b.bound(ctx, func(ctx context.Context) error { return b.inner.Get(ctx, collection, key, dst) })
}

func (b *Bounded) Set(ctx context.Context, collection, key string, doc any) error {
	return b.bound(ctx, func(ctx context.Context) error { return b.inner.Set(ctx, collection, key, doc) })
}

func (b *Bounded) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	return b.bound(ctx, func(ctx context.Context) error { return b.inner.Update(ctx, collection, key, fields) })
}

func (b *Bounded) Delete(ctx context.Context, collection, key string) error {
	return b.bound(ctx, func(ctx context.Context) error { return b.inner.Delete(ctx, collection, key) })
}

func (b *Bounded) Query(ctx context.Context, collection string, where ...Where) ([]Snapshot, error) {
	var out []Snapshot
	err := b.bound(ctx, func(ctx context.Context) error {
		var err error
		out, err = b.inner.Query(ctx, collection, where...)
		return err
	})
	return out, err
}

// RunTransaction bounds the whole transaction, retries included.
func (b *Bounded) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return b.bound(ctx, func(ctx context.Context) error { return b.inner.RunTransaction(ctx, fn) })
}

func (b *Bounded) Close() error { return b.inner.Close() }

// HealthPing delegates to the wrapped store when it can ping, and otherwise
// reads a key that is never written.
func (b *Bounded) HealthPing(ctx context.Context) error {
	if p, ok := b.inner.(interface{ HealthPing(context.Context) error }); ok {
		return p.HealthPing(ctx)
	}
	var v struct{}
	err := b.inner.Get(ctx, "__health__", "__health_check__", &v)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

type timeoutError struct{ cause error }

func (e *timeoutError) Error() string { return "store call timed out: " + e.cause.Error() }

func (e *timeoutError) Unwrap() []error { return []error{ErrStoreUnavailable, e.cause} }
