// Package background runs follow-up work after a response has been sent.
// Tasks are detached from the request context, bounded by a timeout, and
// isolated from each other: one failing or panicking task affects nothing else.
package background

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/villetakanen/pelilauta-17-sub000/internal/metrics"
)

// Task is one unit of background work tied to an entity.
type Task struct {
	Name      string
	EntityKey string
	Run       func(ctx context.Context) error
}

// Runner executes tasks on their own goroutines.
type Runner struct {
	log     zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewRunner(log zerolog.Logger, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{log: log, timeout: timeout}
}

// Go starts task detached from ctx's cancellation; ctx values are kept.
func (r *Runner) Go(ctx context.Context, task Task) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		r.run(taskCtx, task)
	}()
}

func (r *Runner) run(ctx context.Context, task Task) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			metrics.BackgroundTasks.WithLabelValues(task.Name, metrics.ResultPanic).Inc()
			r.log.Error().
				Str("task", task.Name).
				Str("entity_key", task.EntityKey).
				Str("panic", fmt.Sprint(rec)).
				Bytes("stack", debug.Stack()).
				Msg("background task panicked")
		}
	}()

	err := task.Run(ctx)
	metrics.BackgroundTaskDuration.WithLabelValues(task.Name).Observe(time.Since(start).Seconds())
	metrics.BackgroundTasks.WithLabelValues(task.Name, metrics.Result(err)).Inc()
	if err != nil {
		r.log.Error().Err(err).Stack().
			Str("task", task.Name).
			Str("entity_key", task.EntityKey).
			Dur("elapsed", time.Since(start)).
			Msg("background task failed")
		return
	}
	r.log.Debug().
		Str("task", task.Name).
		Str("entity_key", task.EntityKey).
		Dur("elapsed", time.Since(start)).
		Msg("background task done")
}

// Wait blocks until every started task has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
