package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/dusk-indust/coordinate/internal/task"
	"golang.org/x/sync/errgroup"
)

// Parallel dispatches all subtasks concurrently and waits for every one of
// them. When a subtask depends on another subtask of the same task, its
// dispatch waits until the dependency has finished.
type Parallel struct {
	overhead time.Duration
	limit    int
}

func (p *Parallel) Name() string { return "parallel" }

func (p *Parallel) Description() string {
	return "dispatches every subtask concurrently and waits for all of them"
}

func (p *Parallel) SupportedTypes() []task.Type {
	return []task.Type{task.TypeParallel, task.TypeDistributed, task.TypeCompetitive, task.TypeSwarm}
}

func (p *Parallel) CanHandle(t *task.Task) bool { return supports(p.SupportedTypes(), t) }

// EstimateDuration is the longest subtask plus a fixed overhead.
func (p *Parallel) EstimateDuration(t *task.Task) time.Duration {
	var longest time.Duration
	for _, d := range t.Durations() {
		longest = max(longest, d)
	}
	return longest + p.overhead
}

// Execute launches subtasks in dependency order so that, under a concurrency
// limit, every goroutine holding a slot either has its dependencies finished
// or waits on one that already holds a slot.
func (p *Parallel) Execute(ctx context.Context, plan Plan, d Dispatcher) error {
	order, err := plan.Task.TopologicalOrder()
	if err != nil {
		return fmt.Errorf("parallel: %w", err)
	}

	done := make(map[string]chan struct{}, len(order))
	for _, st := range order {
		done[st.ID] = make(chan struct{})
	}

	g, gctx := errgroup.WithContext(ctx)
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}

	for _, st := range order {
		g.Go(func() error {
			defer close(done[st.ID])

			for _, dep := range st.Dependencies {
				ch, ok := done[dep]
				if !ok {
					continue
				}
				select {
				case <-ch:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return d.Dispatch(gctx, st)
		})
	}

	return g.Wait()
}
