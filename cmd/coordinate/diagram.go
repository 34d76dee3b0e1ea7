package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/dusk-indust/coordinate/internal/coordinator"
	"github.com/dusk-indust/coordinate/internal/export"
	"github.com/dusk-indust/coordinate/internal/task"
)

// diagram prints a task's dependency graph as Mermaid. With -agents N the
// subtasks are grouped by the assignment the coordinator would plan over N
// echo agents; otherwise only pre-assigned subtasks are grouped.
func (a *app) diagram(args []string) error {
	fs := flag.NewFlagSet("diagram", flag.ContinueOnError)
	n := fs.Int("agents", 0, "plan the assignment over this many agents")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: coordinate diagram [-agents N] <task.yml>")
	}

	t, err := task.Load(fs.Arg(0))
	if err != nil {
		return err
	}

	assignment := make(map[string]string)
	if *n > 0 {
		ids := make([]string, *n)
		for i := range ids {
			ids[i] = fmt.Sprintf("echo-%d", i+1)
		}
		assignment = coordinator.Assign(t, ids)
	} else {
		for _, st := range t.Subtasks {
			if st.AssignedAgent != "" {
				assignment[st.ID] = st.AssignedAgent
			}
		}
	}

	fmt.Fprint(a.stdout, export.GenerateMermaid(t, assignment, nil))
	return nil
}
