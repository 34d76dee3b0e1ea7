package coordinator

import (
	"sort"
	"time"

	"github.com/dusk-indust/coordinate/internal/conflict"
	"github.com/dusk-indust/coordinate/internal/session"
)

// noConflictDescription is returned by ResolveConflicts when nothing was
// detected.
const noConflictDescription = "No conflicts detected"

// ResolveConflicts detects conflicts in a session and resolves the first
// one. The conflict and its resolution are recorded on the session and any
// reassignment the resolution proposes is applied. Without conflicts it
// returns a negotiated no-op resolution and records nothing.
func (c *Coordinator) ResolveConflicts(sessionID string) (session.Resolution, error) {
	e, err := c.entry(sessionID)
	if err != nil {
		return session.Resolution{}, err
	}
	s := e.session
	view := c.view(s.Snapshot())

	conflicts := c.resolver.Detect(view)
	if len(conflicts) == 0 {
		return session.Resolution{
			Kind:        session.ResolutionNegotiated,
			Description: noConflictDescription,
			ResolverID:  conflict.ResolverID,
			Timestamp:   time.Now(),
		}, nil
	}

	first := conflicts[0]
	res := c.resolver.Resolve(first, view)
	s.AddConflict(first)
	s.AddResolution(res)
	if len(res.Reassignments) > 0 {
		s.Reassign(res.Reassignments)
	}
	c.resolver.PreventFutureConflicts(first)

	c.logger.Info("conflict resolved", "session", sessionID, "type", first.Type,
		"kind", res.Kind, "pending", len(conflicts)-1)
	return res, nil
}

// DetectConflicts returns the conflicts currently present in a session
// without resolving or recording them.
func (c *Coordinator) DetectConflicts(sessionID string) ([]session.Conflict, error) {
	e, err := c.entry(sessionID)
	if err != nil {
		return nil, err
	}
	return c.resolver.Detect(c.view(e.session.Snapshot())), nil
}

// Optimize returns a snapshot of the session with a rebalanced assignment.
// The session itself is not modified. Task structure is left unchanged.
func (c *Coordinator) Optimize(sessionID string) (session.Snapshot, error) {
	e, err := c.entry(sessionID)
	if err != nil {
		return session.Snapshot{}, err
	}
	snap := e.session.Snapshot()
	snap.Assignment = Rebalance(snap, c.opts.RebalanceThreshold)
	return snap, nil
}

// Rebalance makes a single pass over the participants in ascending id order
// and moves one subtask from every agent whose load exceeds threshold times
// the even-split average to the currently least-loaded participant. The
// moved subtask is the overloaded agent's last one in task list order. An
// assignment with no overloaded agent is returned unchanged.
func Rebalance(snap session.Snapshot, threshold float64) map[string]string {
	out := make(map[string]string, len(snap.Assignment))
	for k, v := range snap.Assignment {
		out[k] = v
	}
	if len(snap.Agents) < 2 || len(out) == 0 {
		return out
	}

	load := snap.AgentLoad()
	avg := float64(len(out)) / float64(len(snap.Agents))
	agents := append([]string(nil), snap.Agents...)
	sort.Strings(agents)

	for _, id := range agents {
		if float64(load[id]) <= threshold*avg {
			continue
		}
		target := leastLoaded(agents, load)
		if target == id {
			continue
		}
		moved := lastSubtaskOf(snap, out, id)
		if moved == "" {
			continue
		}
		out[moved] = target
		load[id]--
		load[target]++
	}
	return out
}

func leastLoaded(agents []string, load map[string]int) string {
	best := agents[0]
	for _, id := range agents[1:] {
		if load[id] < load[best] {
			best = id
		}
	}
	return best
}

func lastSubtaskOf(snap session.Snapshot, assignment map[string]string, agentID string) string {
	for i := len(snap.Task.Subtasks) - 1; i >= 0; i-- {
		if id := snap.Task.Subtasks[i].ID; assignment[id] == agentID {
			return id
		}
	}
	return ""
}

// view gathers what the resolver needs about a session's participants.
func (c *Coordinator) view(snap session.Snapshot) conflict.View {
	caps := c.registry.Capabilities()
	capacity := make(map[string]int, len(snap.Agents))
	for _, id := range snap.Agents {
		if n, ok := c.resources.Capacity(id); ok {
			capacity[id] = n
		}
	}
	return conflict.View{Session: snap, Capabilities: caps, Capacity: capacity}
}
