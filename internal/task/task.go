// Package task defines the immutable description of a coordination task and
// its subtasks, plus the dependency ordering used by hierarchical execution.
package task

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Type selects the coordination discipline for a task.
type Type string

const (
	TypeParallel      Type = "parallel"
	TypeSequential    Type = "sequential"
	TypeHierarchical  Type = "hierarchical"
	TypeCollaborative Type = "collaborative"
	TypeCompetitive   Type = "competitive"
	TypeDistributed   Type = "distributed"
	TypeSwarm         Type = "swarm"
)

// Types lists every known task type.
var Types = []Type{
	TypeParallel, TypeSequential, TypeHierarchical, TypeCollaborative,
	TypeCompetitive, TypeDistributed, TypeSwarm,
}

// Valid reports whether t is one of the known task types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// ConstraintType classifies a Constraint.
type ConstraintType string

const (
	ConstraintResource ConstraintType = "resource"
	ConstraintTime     ConstraintType = "time"
	ConstraintQuality  ConstraintType = "quality"
)

// Constraint narrows how a task may be executed. For resource constraints
// Limit caps the number of participating agents.
type Constraint struct {
	Type        ConstraintType `json:"type" yaml:"type"`
	Limit       int            `json:"limit,omitempty" yaml:"limit,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
}

// SubTask is the smallest schedulable unit. It is created once at submission
// and never mutated.
type SubTask struct {
	ID                string        `json:"id" yaml:"id"`
	Description       string        `json:"description" yaml:"description"`
	AssignedAgent     string        `json:"assignedAgent,omitempty" yaml:"assignedAgent,omitempty"`
	Dependencies      []string      `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	EstimatedDuration time.Duration `json:"estimatedDuration" yaml:"estimatedDuration"`
	Priority          int           `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Task is a unit of work decomposed into subtasks.
type Task struct {
	ID                   string       `json:"id" yaml:"id"`
	Type                 Type         `json:"type" yaml:"type"`
	Description          string       `json:"description" yaml:"description"`
	RequiredCapabilities []string     `json:"requiredCapabilities,omitempty" yaml:"requiredCapabilities,omitempty"`
	Subtasks             []SubTask    `json:"subtasks" yaml:"subtasks"`
	Deadline             *time.Time   `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	Priority             int          `json:"priority,omitempty" yaml:"priority,omitempty"`
	Constraints          []Constraint `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("task: invalid")

// Validate checks structural invariants that do not depend on execution:
// a non-empty id and unique, non-empty subtask ids. Dependency cycles are
// detected later by TopologicalOrder.
func (t *Task) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil task", ErrInvalid)
	}
	if t.ID == "" {
		return fmt.Errorf("%w: empty task id", ErrInvalid)
	}
	seen := make(map[string]bool, len(t.Subtasks))
	for i, st := range t.Subtasks {
		if st.ID == "" {
			return fmt.Errorf("%w: subtask %d has empty id", ErrInvalid, i)
		}
		if seen[st.ID] {
			return fmt.Errorf("%w: duplicate subtask id %q", ErrInvalid, st.ID)
		}
		seen[st.ID] = true
	}
	return nil
}

// Clone returns a deep copy of t that shares no slices, maps or pointers
// with it.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.RequiredCapabilities = slices.Clone(t.RequiredCapabilities)
	c.Constraints = slices.Clone(t.Constraints)
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	if t.Subtasks != nil {
		c.Subtasks = make([]SubTask, len(t.Subtasks))
		for i, st := range t.Subtasks {
			st.Dependencies = slices.Clone(st.Dependencies)
			c.Subtasks[i] = st
		}
	}
	return &c
}

// Subtask returns the subtask with the given id.
func (t *Task) Subtask(id string) (SubTask, bool) {
	for _, st := range t.Subtasks {
		if st.ID == id {
			return st, true
		}
	}
	return SubTask{}, false
}

// ResourceLimit returns the tightest positive limit among resource
// constraints, or 0 when there is none.
func (t *Task) ResourceLimit() int {
	limit := 0
	for _, c := range t.Constraints {
		if c.Type != ConstraintResource || c.Limit <= 0 {
			continue
		}
		if limit == 0 || c.Limit < limit {
			limit = c.Limit
		}
	}
	return limit
}

// Durations returns the estimated duration of every subtask in list order.
func (t *Task) Durations() []time.Duration {
	out := make([]time.Duration, len(t.Subtasks))
	for i, st := range t.Subtasks {
		out[i] = st.EstimatedDuration
	}
	return out
}
