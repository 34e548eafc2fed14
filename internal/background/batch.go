package background

import (
	"context"
	"sync"
)

// Batch collects the follow-up tasks of one mutating call. Nothing runs until
// Dispatch, which the caller invokes after the response is on the wire.
type Batch struct {
	runner *Runner
	ctx    context.Context
	tasks  []Task
	once   sync.Once
}

// NewBatch starts an empty batch whose tasks inherit ctx's values.
func (r *Runner) NewBatch(ctx context.Context) *Batch {
	return &Batch{runner: r, ctx: ctx}
}

// Add queues a task.
func (b *Batch) Add(name, entityKey string, run func(ctx context.Context) error) {
	b.tasks = append(b.tasks, Task{Name: name, EntityKey: entityKey, Run: run})
}

// Names lists queued task names in order.
func (b *Batch) Names() []string {
	if b == nil {
		return nil
	}
	out := make([]string, len(b.tasks))
	for i, t := range b.tasks {
		out[i] = t.Name
	}
	return out
}

// Dispatch starts every queued task concurrently. Later calls do nothing.
// A nil batch is a no-op.
func (b *Batch) Dispatch() {
	if b == nil {
		return
	}
	b.once.Do(func() {
		for _, t := range b.tasks {
			b.runner.Go(b.ctx, t)
		}
	})
}
