package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/dusk-indust/coordinate/internal/task"
)

// Sequential dispatches subtasks one at a time in list order.
type Sequential struct {
	overhead time.Duration
}

func (s *Sequential) Name() string { return "sequential" }

func (s *Sequential) Description() string {
	return "dispatches subtasks one at a time in the order they were listed"
}

func (s *Sequential) SupportedTypes() []task.Type { return []task.Type{task.TypeSequential} }

func (s *Sequential) CanHandle(t *task.Task) bool { return supports(s.SupportedTypes(), t) }

// EstimateDuration is the sum of subtask durations plus a per-subtask
// overhead.
func (s *Sequential) EstimateDuration(t *task.Task) time.Duration {
	return sum(t) + time.Duration(len(t.Subtasks))*s.overhead
}

func (s *Sequential) Execute(ctx context.Context, plan Plan, d Dispatcher) error {
	return runInOrder(ctx, plan.Task.Subtasks, d, false)
}

// Hierarchical dispatches subtasks one at a time so that every subtask runs
// after the subtasks it depends on.
type Hierarchical struct {
	factor float64
}

func (h *Hierarchical) Name() string { return "hierarchical" }

func (h *Hierarchical) Description() string {
	return "dispatches subtasks serially in dependency order"
}

func (h *Hierarchical) SupportedTypes() []task.Type { return []task.Type{task.TypeHierarchical} }

// CanHandle additionally requires the dependency graph to be acyclic.
func (h *Hierarchical) CanHandle(t *task.Task) bool {
	if !supports(h.SupportedTypes(), t) {
		return false
	}
	_, err := t.TopologicalOrder()
	return err == nil
}

// EstimateDuration scales the summed durations by the hierarchy factor.
func (h *Hierarchical) EstimateDuration(t *task.Task) time.Duration {
	return scale(sum(t), h.factor)
}

func (h *Hierarchical) Execute(ctx context.Context, plan Plan, d Dispatcher) error {
	order, err := plan.Task.TopologicalOrder()
	if err != nil {
		return fmt.Errorf("hierarchical: %w", err)
	}
	return runInOrder(ctx, order, d, false)
}

// Collaborative runs subtasks in list order and tells the other participants
// about each one before it is dispatched.
type Collaborative struct {
	factor float64
}

func (c *Collaborative) Name() string { return "collaborative" }

func (c *Collaborative) Description() string {
	return "dispatches subtasks in order and shares each one with the other participants"
}

func (c *Collaborative) SupportedTypes() []task.Type { return []task.Type{task.TypeCollaborative} }

func (c *Collaborative) CanHandle(t *task.Task) bool { return supports(c.SupportedTypes(), t) }

// EstimateDuration scales the summed durations by the collaboration factor.
func (c *Collaborative) EstimateDuration(t *task.Task) time.Duration {
	return scale(sum(t), c.factor)
}

func (c *Collaborative) Execute(ctx context.Context, plan Plan, d Dispatcher) error {
	return runInOrder(ctx, plan.Task.Subtasks, d, true)
}
