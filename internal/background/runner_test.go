package background

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchRunsOnlyOnDispatch(t *testing.T) {
	r := NewRunner(zerolog.Nop(), time.Second)
	var ran atomic.Int32

	b := r.NewBatch(context.Background())
	b.Add("a", "k", func(context.Context) error { ran.Add(1); return nil })
	b.Add("b", "k", func(context.Context) error { ran.Add(1); return nil })
	assert.Equal(t, []string{"a", "b"}, b.Names())

	require.NoError(t, r.Wait(context.Background()))
	assert.Zero(t, ran.Load())

	b.Dispatch()
	b.Dispatch()
	require.NoError(t, r.Wait(context.Background()))
	assert.Equal(t, int32(2), ran.Load())
}

func TestTasksAreIsolated(t *testing.T) {
	var buf bytes.Buffer
	r := NewRunner(zerolog.New(&buf), time.Second)
	var ok atomic.Bool

	b := r.NewBatch(context.Background())
	b.Add("explodes", "k1", func(context.Context) error { panic("boom") })
	b.Add("fails", "k1", func(context.Context) error { return errors.New("nope") })
	b.Add("works", "k1", func(context.Context) error { ok.Store(true); return nil })
	b.Dispatch()
	require.NoError(t, r.Wait(context.Background()))

	assert.True(t, ok.Load())
	assert.Contains(t, buf.String(), "background task panicked")
	assert.Contains(t, buf.String(), "background task failed")
	assert.Contains(t, buf.String(), `"entity_key":"k1"`)
}

func TestTasksOutliveRequestContext(t *testing.T) {
	r := NewRunner(zerolog.Nop(), time.Second)
	reqCtx, cancel := context.WithCancel(context.Background())

	var sawErr atomic.Value
	b := r.NewBatch(reqCtx)
	b.Add("slow", "k", func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		sawErr.Store(fmt.Sprint(ctx.Err()))
		return nil
	})
	b.Dispatch()
	cancel()
	require.NoError(t, r.Wait(context.Background()))
	assert.Equal(t, "<nil>", sawErr.Load())
}

func TestTaskTimeout(t *testing.T) {
	r := NewRunner(zerolog.Nop(), 10*time.Millisecond)
	var deadline atomic.Bool
	r.Go(context.Background(), Task{Name: "stuck", Run: func(ctx context.Context) error {
		<-ctx.Done()
		deadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	}})
	require.NoError(t, r.Wait(context.Background()))
	assert.True(t, deadline.Load())
}

func TestNilBatchDispatch(t *testing.T) {
	var b *Batch
	assert.NotPanics(t, b.Dispatch)
	assert.Nil(t, b.Names())
}
