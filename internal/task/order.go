package task

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycle is returned when subtask dependencies form a cycle.
var ErrCycle = errors.New("task: dependency cycle")

// TopologicalOrder returns the subtasks ordered so that every subtask comes
// after the dependencies it lists. The walk is depth-first in list order:
// each subtask is appended once all of its unvisited dependencies have been
// appended. Dependency ids that do not name a subtask of this task are
// treated as already satisfied.
func (t *Task) TopologicalOrder() ([]SubTask, error) {
	byID := make(map[string]SubTask, len(t.Subtasks))
	for _, st := range t.Subtasks {
		byID[st.ID] = st
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(t.Subtasks))
	order := make([]SubTask, 0, len(t.Subtasks))

	var visit func(st SubTask, path []string) error
	visit = func(st SubTask, path []string) error {
		switch state[st.ID] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s -> %s", ErrCycle, strings.Join(path, " -> "), st.ID)
		}
		state[st.ID] = visiting
		for _, dep := range st.Dependencies {
			next, ok := byID[dep]
			if !ok {
				continue
			}
			if err := visit(next, append(path, st.ID)); err != nil {
				return err
			}
		}
		state[st.ID] = done
		order = append(order, st)
		return nil
	}

	for _, st := range t.Subtasks {
		if err := visit(st, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// MissingDependencies returns, per subtask id, the dependency ids that do not
// reference a subtask of this task. Subtasks with none are omitted.
func (t *Task) MissingDependencies() map[string][]string {
	ids := make(map[string]bool, len(t.Subtasks))
	for _, st := range t.Subtasks {
		ids[st.ID] = true
	}
	out := make(map[string][]string)
	for _, st := range t.Subtasks {
		for _, dep := range st.Dependencies {
			if !ids[dep] {
				out[st.ID] = append(out[st.ID], dep)
			}
		}
	}
	return out
}
