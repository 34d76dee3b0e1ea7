// Package conflict detects anomalies in a session's assignment and proposes
// how to settle them.
package conflict

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dusk-indust/coordinate/internal/logging"
	"github.com/dusk-indust/coordinate/internal/session"
	"github.com/google/uuid"
)

// ResolverID identifies resolutions produced by this package.
const ResolverID = "conflict-resolver"

// View is everything detection looks at: the session state plus what the
// registry and resource manager know about the participants.
type View struct {
	Session session.Snapshot

	// Capabilities maps registered agent ids to their declared capabilities.
	// A participant missing from the map is treated as gone.
	Capabilities map[string][]string

	// Capacity maps agent ids to their resource capacity. Zero or absent
	// means unbounded.
	Capacity map[string]int
}

// Resolver detects and resolves conflicts. It is safe for concurrent use.
type Resolver struct {
	threshold float64
	logger    logging.Logger

	mu        sync.Mutex
	prevented map[session.ConflictType]struct{}
}

// NewResolver creates a Resolver. An agent whose load exceeds threshold times
// the even-split average is considered overloaded; non-positive thresholds
// fall back to 1.5.
func NewResolver(threshold float64, logger logging.Logger) *Resolver {
	if threshold <= 0 {
		threshold = 1.5
	}
	return &Resolver{
		threshold: threshold,
		logger:    logging.Component(logger, "conflict"),
		prevented: make(map[session.ConflictType]struct{}),
	}
}

// Detect returns the conflicts present in v, ordered capability, dependency,
// resource, then priority; within each kind in subtask list or agent id
// order.
func (r *Resolver) Detect(v View) []session.Conflict {
	var out []session.Conflict
	out = append(out, r.capability(v)...)
	out = append(out, r.dependency(v)...)
	out = append(out, r.resource(v)...)
	out = append(out, r.priority(v)...)
	if len(out) > 0 {
		r.logger.Debug("conflicts detected", "session", v.Session.ID, "count", len(out))
	}
	return out
}

// Resolve settles c. Dependency and resource resolutions may carry
// reassignments for the caller to apply.
func (r *Resolver) Resolve(c session.Conflict, v View) session.Resolution {
	res := session.Resolution{
		ConflictID: c.ID,
		ResolverID: ResolverID,
		Timestamp:  time.Now(),
	}

	switch c.Type {
	case session.ConflictResource:
		res.Kind = session.ResolutionPrioritized
		res.Description = "prioritized: " + c.Description
		if moves := r.shedLoad(c, v); len(moves) > 0 {
			res.Reassignments = moves
			res.Description = fmt.Sprintf("prioritized: moved %s", describeMoves(moves))
		}
	case session.ConflictPriority:
		res.Kind = session.ResolutionPrioritized
		res.Description = fmt.Sprintf("prioritized: subtasks run in ascending id order (%s)", strings.Join(c.Subtasks, ", "))
	case session.ConflictDependency:
		res.Kind = session.ResolutionReassigned
		res.Description = "reassigned: " + c.Description
		if moves := colocate(c, v); len(moves) > 0 {
			res.Reassignments = moves
			res.Description = fmt.Sprintf("reassigned: moved %s", describeMoves(moves))
		}
	case session.ConflictCapability:
		res.Kind = session.ResolutionEscalated
		res.Description = "escalated: " + c.Description
	default:
		res.Kind = session.ResolutionNegotiated
		res.Description = "negotiated: " + c.Description
	}

	r.logger.Info("conflict resolved", "session", v.Session.ID, "conflict", c.ID, "type", c.Type, "kind", res.Kind)
	return res
}

// PreventFutureConflicts records c's type in the prevention set.
func (r *Resolver) PreventFutureConflicts(c session.Conflict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prevented[c.Type] = struct{}{}
}

// Prevented returns the recorded conflict types in ascending order.
func (r *Resolver) Prevented() []session.ConflictType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.ConflictType, 0, len(r.prevented))
	for t := range r.prevented {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Resolver) capability(v View) []session.Conflict {
	var out []session.Conflict
	required := v.Session.Task.RequiredCapabilities
	for _, st := range v.Session.Task.Subtasks {
		agentID, ok := v.Session.Assignment[st.ID]
		if !ok {
			continue
		}
		caps, registered := v.Capabilities[agentID]
		if !registered {
			out = append(out, newConflict(session.ConflictCapability, session.SeverityCritical,
				fmt.Sprintf("subtask %s is assigned to unregistered agent %s", st.ID, agentID),
				[]string{agentID}, []string{st.ID}))
			continue
		}
		if missing := missingCaps(caps, required); len(missing) > 0 {
			out = append(out, newConflict(session.ConflictCapability, session.SeverityHigh,
				fmt.Sprintf("agent %s lacks %s for subtask %s", agentID, strings.Join(missing, ", "), st.ID),
				[]string{agentID}, []string{st.ID}))
		}
	}
	return out
}

func (r *Resolver) dependency(v View) []session.Conflict {
	var out []session.Conflict
	t := v.Session.Task
	for _, st := range t.Subtasks {
		for _, dep := range st.Dependencies {
			if _, ok := t.Subtask(dep); !ok {
				out = append(out, newConflict(session.ConflictDependency, session.SeverityMedium,
					fmt.Sprintf("subtask %s depends on missing subtask %s", st.ID, dep),
					agentsOf(v, st.ID), []string{st.ID}))
				continue
			}
			a, b := v.Session.Assignment[st.ID], v.Session.Assignment[dep]
			if a == "" || b == "" || a == b {
				continue
			}
			out = append(out, newConflict(session.ConflictDependency, session.SeverityLow,
				fmt.Sprintf("subtask %s on %s waits for %s on %s", st.ID, a, dep, b),
				sortedPair(a, b), []string{st.ID, dep}))
		}
	}
	return out
}

func (r *Resolver) resource(v View) []session.Conflict {
	snap := v.Session
	if len(snap.Agents) == 0 || len(snap.Assignment) == 0 {
		return nil
	}
	load := snap.AgentLoad()
	avg := float64(len(snap.Assignment)) / float64(len(snap.Agents))

	var out []session.Conflict
	for _, id := range sortedIDs(load) {
		n := load[id]
		if c := v.Capacity[id]; c > 0 && n > c {
			out = append(out, newConflict(session.ConflictResource, session.SeverityHigh,
				fmt.Sprintf("agent %s holds %d subtasks, capacity %d", id, n, c),
				[]string{id}, subtasksOf(snap, id)))
			continue
		}
		if float64(n) > r.threshold*avg {
			out = append(out, newConflict(session.ConflictResource, session.SeverityMedium,
				fmt.Sprintf("agent %s holds %d subtasks, average %.2f", id, n, avg),
				[]string{id}, subtasksOf(snap, id)))
		}
	}
	return out
}

// priority flags pairs of agents that wait on each other through subtasks of
// equal priority.
func (r *Resolver) priority(v View) []session.Conflict {
	t := v.Session.Task
	type edge struct {
		from, to string
		priority int
	}
	edges := make(map[edge][]string)
	var order []edge
	for _, st := range t.Subtasks {
		for _, dep := range st.Dependencies {
			a, b := v.Session.Assignment[st.ID], v.Session.Assignment[dep]
			if a == "" || b == "" || a == b {
				continue
			}
			e := edge{from: a, to: b, priority: st.Priority}
			if _, seen := edges[e]; !seen {
				order = append(order, e)
			}
			edges[e] = append(edges[e], st.ID)
		}
	}

	var out []session.Conflict
	for _, e := range order {
		if e.from > e.to {
			continue
		}
		back, ok := edges[edge{from: e.to, to: e.from, priority: e.priority}]
		if !ok {
			continue
		}
		subtasks := append(append([]string(nil), edges[e]...), back...)
		sort.Strings(subtasks)
		out = append(out, newConflict(session.ConflictPriority, session.SeverityMedium,
			fmt.Sprintf("agents %s and %s wait on each other at priority %d", e.from, e.to, e.priority),
			[]string{e.from, e.to}, subtasks))
	}
	return out
}

// shedLoad moves the lowest-priority subtask of the overloaded agent to the
// least-loaded participant.
func (r *Resolver) shedLoad(c session.Conflict, v View) map[string]string {
	if len(c.Agents) != 1 || len(c.Subtasks) == 0 {
		return nil
	}
	from := c.Agents[0]
	load := v.Session.AgentLoad()
	target := ""
	for _, id := range sortedIDs(load) {
		if id == from {
			continue
		}
		if _, ok := v.Capabilities[id]; !ok && v.Capabilities != nil {
			continue
		}
		if target == "" || load[id] < load[target] {
			target = id
		}
	}
	if target == "" || load[target]+1 >= load[from] {
		return nil
	}

	pick := ""
	pickPriority := 0
	for _, id := range c.Subtasks {
		st, ok := v.Session.Task.Subtask(id)
		if !ok {
			continue
		}
		if pick == "" || st.Priority < pickPriority {
			pick, pickPriority = id, st.Priority
		}
	}
	if pick == "" {
		return nil
	}
	return map[string]string{pick: target}
}

// colocate moves a dependent subtask onto the agent holding its dependency.
func colocate(c session.Conflict, v View) map[string]string {
	if len(c.Subtasks) != 2 {
		return nil
	}
	dependent, dep := c.Subtasks[0], c.Subtasks[1]
	target, ok := v.Session.Assignment[dep]
	if !ok || v.Session.Assignment[dependent] == target {
		return nil
	}
	return map[string]string{dependent: target}
}

func newConflict(t session.ConflictType, sev session.Severity, desc string, agents, subtasks []string) session.Conflict {
	return session.Conflict{
		ID:          uuid.NewString(),
		Type:        t,
		Description: desc,
		Agents:      agents,
		Subtasks:    subtasks,
		Severity:    sev,
		Timestamp:   time.Now(),
	}
}

func missingCaps(have, required []string) []string {
	set := make(map[string]struct{}, len(have))
	for _, c := range have {
		set[c] = struct{}{}
	}
	var missing []string
	for _, c := range required {
		if _, ok := set[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

func agentsOf(v View, subtaskID string) []string {
	if id, ok := v.Session.Assignment[subtaskID]; ok {
		return []string{id}
	}
	return nil
}

func subtasksOf(snap session.Snapshot, agentID string) []string {
	var out []string
	for _, st := range snap.Task.Subtasks {
		if snap.Assignment[st.ID] == agentID {
			out = append(out, st.ID)
		}
	}
	return out
}

func sortedPair(a, b string) []string {
	if a > b {
		a, b = b, a
	}
	return []string{a, b}
}

func sortedIDs(m map[string]int) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func describeMoves(moves map[string]string) string {
	keys := make([]string, 0, len(moves))
	for k := range moves {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " to " + moves[k]
	}
	return strings.Join(parts, ", ")
}
