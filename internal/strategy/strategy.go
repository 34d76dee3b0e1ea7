// Package strategy implements the coordination disciplines a task can be run
// under. Each strategy estimates a task's duration and drives the dispatch of
// its subtasks through a Dispatcher supplied by the coordinator.
package strategy

import (
	"context"
	"math"
	"time"

	"github.com/dusk-indust/coordinate/internal/task"
)

// Estimator describes a strategy and predicts how long it needs for a task.
type Estimator interface {
	// Name is the stable identifier of the strategy.
	Name() string

	// Description is a human-readable summary.
	Description() string

	// SupportedTypes lists the task types the strategy is meant for.
	SupportedTypes() []task.Type

	// CanHandle reports whether the strategy can run t.
	CanHandle(t *task.Task) bool

	// EstimateDuration predicts the wall-clock time needed for t.
	EstimateDuration(t *task.Task) time.Duration
}

// Strategy is an Estimator that can also execute a plan.
type Strategy interface {
	Estimator

	// Execute dispatches every subtask of plan in the strategy's order and
	// returns once all dispatches have finished. A subtask failure is the
	// dispatcher's concern; Execute only returns early when ctx is done.
	Execute(ctx context.Context, plan Plan, d Dispatcher) error
}

// Plan is the input to Execute: the task and the agent assigned to each
// subtask.
type Plan struct {
	Task       *task.Task
	Assignment map[string]string
}

// Dispatcher runs individual subtasks on behalf of a strategy.
type Dispatcher interface {
	// Dispatch invokes the assigned agent for st and records its output.
	// It returns an error only when the run must stop.
	Dispatch(ctx context.Context, st task.SubTask) error

	// Announce tells the other participants that st is about to run.
	Announce(ctx context.Context, st task.SubTask) error
}

// DispatcherFuncs adapts plain functions to a Dispatcher. A nil AnnounceFunc
// is a no-op.
type DispatcherFuncs struct {
	DispatchFunc func(ctx context.Context, st task.SubTask) error
	AnnounceFunc func(ctx context.Context, st task.SubTask) error
}

// Dispatch calls DispatchFunc.
func (d DispatcherFuncs) Dispatch(ctx context.Context, st task.SubTask) error {
	return d.DispatchFunc(ctx, st)
}

// Announce calls AnnounceFunc when set.
func (d DispatcherFuncs) Announce(ctx context.Context, st task.SubTask) error {
	if d.AnnounceFunc == nil {
		return nil
	}
	return d.AnnounceFunc(ctx, st)
}

// Config holds the tunable constants of the duration estimators and the
// parallel fan-out limit.
type Config struct {
	// ParallelOverhead is added once to the longest subtask.
	ParallelOverhead time.Duration

	// SequentialOverhead is added per subtask.
	SequentialOverhead time.Duration

	// HierarchicalFactor scales the summed durations.
	HierarchicalFactor float64

	// CollaborativeFactor scales the summed durations.
	CollaborativeFactor float64

	// MaxParallel caps concurrent dispatches. Zero or negative means no cap.
	MaxParallel int
}

// DefaultConfig returns the stock estimator constants.
func DefaultConfig() Config {
	return Config{
		ParallelOverhead:    time.Second,
		SequentialOverhead:  500 * time.Millisecond,
		HierarchicalFactor:  1.2,
		CollaborativeFactor: 0.8,
	}
}

// Set is the collection of strategies available to a coordinator.
type Set struct {
	parallel      *Parallel
	sequential    *Sequential
	hierarchical  *Hierarchical
	collaborative *Collaborative
}

// NewSet builds every strategy from cfg.
func NewSet(cfg Config) *Set {
	return &Set{
		parallel:      &Parallel{overhead: cfg.ParallelOverhead, limit: cfg.MaxParallel},
		sequential:    &Sequential{overhead: cfg.SequentialOverhead},
		hierarchical:  &Hierarchical{factor: cfg.HierarchicalFactor},
		collaborative: &Collaborative{factor: cfg.CollaborativeFactor},
	}
}

// Select returns the strategy for a task type. Types without a dedicated
// strategy run concurrently under Parallel.
func (s *Set) Select(t task.Type) Strategy {
	switch t {
	case task.TypeSequential:
		return s.sequential
	case task.TypeHierarchical:
		return s.hierarchical
	case task.TypeCollaborative:
		return s.collaborative
	default:
		return s.parallel
	}
}

// All returns every strategy in a stable order.
func (s *Set) All() []Strategy {
	return []Strategy{s.parallel, s.sequential, s.hierarchical, s.collaborative}
}

func supports(types []task.Type, t *task.Task) bool {
	if t == nil {
		return false
	}
	for _, typ := range types {
		if t.Type == typ {
			return true
		}
	}
	return false
}

func sum(t *task.Task) time.Duration {
	var total time.Duration
	for _, d := range t.Durations() {
		total += d
	}
	return total
}

func scale(d time.Duration, factor float64) time.Duration {
	return time.Duration(math.Round(float64(d) * factor))
}

// runInOrder dispatches subtasks one at a time, announcing each first when
// announce is set.
func runInOrder(ctx context.Context, subtasks []task.SubTask, d Dispatcher, announce bool) error {
	for _, st := range subtasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if announce {
			if err := d.Announce(ctx, st); err != nil {
				return err
			}
		}
		if err := d.Dispatch(ctx, st); err != nil {
			return err
		}
	}
	return nil
}
