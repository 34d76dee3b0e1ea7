package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dusk-indust/coordinate/internal/task"
)

// GenerateMermaid produces a Mermaid graph TD diagram of a task. Subtasks
// are grouped into one subgraph per assigned agent; unassigned subtasks sit
// at the top level. Every in-task dependency becomes an arrow from the
// dependency to its dependent. Subtasks in completed are styled "done".
func GenerateMermaid(t *task.Task, assignment map[string]string, completed map[string]bool) string {
	// Node ids follow task list order so the output is stable.
	nodeIDs := make(map[string]string, len(t.Subtasks))
	for i, st := range t.Subtasks {
		nodeIDs[st.ID] = fmt.Sprintf("N%d", i)
	}

	byAgent := make(map[string][]task.SubTask)
	var unassigned []task.SubTask
	for _, st := range t.Subtasks {
		agentID := assignment[st.ID]
		if agentID == "" {
			unassigned = append(unassigned, st)
			continue
		}
		byAgent[agentID] = append(byAgent[agentID], st)
	}
	agents := make([]string, 0, len(byAgent))
	for id := range byAgent {
		agents = append(agents, id)
	}
	sort.Strings(agents)

	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for i, agentID := range agents {
		fmt.Fprintf(&sb, "  subgraph A%d[\"%s\"]\n", i, label(agentID))
		for _, st := range byAgent[agentID] {
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", nodeIDs[st.ID], nodeLabel(st))
		}
		sb.WriteString("  end\n")
	}
	for _, st := range unassigned {
		fmt.Fprintf(&sb, "  %s[\"%s\"]\n", nodeIDs[st.ID], nodeLabel(st))
	}

	for _, st := range t.Subtasks {
		for _, dep := range st.Dependencies {
			src, ok := nodeIDs[dep]
			if !ok {
				continue
			}
			fmt.Fprintf(&sb, "  %s --> %s\n", src, nodeIDs[st.ID])
		}
	}

	var done []string
	for _, st := range t.Subtasks {
		if completed[st.ID] {
			done = append(done, nodeIDs[st.ID])
		}
	}
	if len(done) > 0 {
		sb.WriteString("  classDef done fill:#d4edda,stroke:#28a745\n")
		fmt.Fprintf(&sb, "  class %s done\n", strings.Join(done, ","))
	}

	return sb.String()
}

// nodeLabel shows the subtask id and, when present, a shortened description.
func nodeLabel(st task.SubTask) string {
	if st.Description == "" {
		return label(st.ID)
	}
	return label(st.ID) + ": " + label(truncate(st.Description, 40))
}

// label escapes text for a quoted Mermaid label.
func label(s string) string {
	return strings.NewReplacer(`"`, "#quot;", "\n", " ").Replace(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
