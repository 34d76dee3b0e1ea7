package conflict

import (
	"testing"

	"github.com/dusk-indust/coordinate/internal/session"
	"github.com/dusk-indust/coordinate/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func view(t *task.Task, agents []string, assignment map[string]string) View {
	caps := make(map[string][]string, len(agents))
	for _, id := range agents {
		caps[id] = []string{"build"}
	}
	return View{
		Session: session.Snapshot{
			ID:         "s1",
			Task:       t,
			Agents:     agents,
			Assignment: assignment,
		},
		Capabilities: caps,
	}
}

func types(cs []session.Conflict) []session.ConflictType {
	out := make([]session.ConflictType, len(cs))
	for i, c := range cs {
		out[i] = c.Type
	}
	return out
}

func TestDetect_NoConflicts(t *testing.T) {
	tk := &task.Task{ID: "t", RequiredCapabilities: []string{"build"}, Subtasks: []task.SubTask{{ID: "a"}, {ID: "b"}}}
	v := view(tk, []string{"x", "y"}, map[string]string{"a": "x", "b": "y"})

	assert.Empty(t, NewResolver(0, nil).Detect(v))
}

func TestDetect_Capability(t *testing.T) {
	tk := &task.Task{ID: "t", RequiredCapabilities: []string{"build", "deploy"}, Subtasks: []task.SubTask{{ID: "a"}, {ID: "b"}}}
	v := view(tk, []string{"x", "y"}, map[string]string{"a": "x", "b": "gone"})

	cs := NewResolver(0, nil).Detect(v)
	require.Len(t, cs, 2)
	assert.Equal(t, session.ConflictCapability, cs[0].Type)
	assert.Equal(t, session.SeverityHigh, cs[0].Severity)
	assert.Contains(t, cs[0].Description, "deploy")
	assert.Equal(t, session.SeverityCritical, cs[1].Severity)
	assert.Equal(t, []string{"gone"}, cs[1].Agents)
}

func TestDetect_Dependency(t *testing.T) {
	tk := &task.Task{ID: "t", Subtasks: []task.SubTask{
		{ID: "a"},
		{ID: "b", Dependencies: []string{"a", "ghost"}},
	}}
	v := view(tk, []string{"x", "y"}, map[string]string{"a": "x", "b": "y"})

	cs := NewResolver(0, nil).Detect(v)
	require.Len(t, cs, 2)
	assert.Equal(t, []session.ConflictType{session.ConflictDependency, session.ConflictDependency}, types(cs))
	assert.Equal(t, session.SeverityLow, cs[0].Severity)
	assert.Equal(t, []string{"x", "y"}, cs[0].Agents)
	assert.Equal(t, []string{"b", "a"}, cs[0].Subtasks)
	assert.Contains(t, cs[1].Description, "ghost")
}

func TestDetect_ResourceOverload(t *testing.T) {
	tk := &task.Task{ID: "t", Subtasks: []task.SubTask{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}}
	v := view(tk, []string{"x", "y", "z"}, map[string]string{"a": "x", "b": "x", "c": "x", "d": "y"})

	cs := NewResolver(1.5, nil).Detect(v)
	require.Len(t, cs, 1)
	assert.Equal(t, session.ConflictResource, cs[0].Type)
	assert.Equal(t, []string{"x"}, cs[0].Agents)
	assert.Equal(t, []string{"a", "b", "c"}, cs[0].Subtasks)
}

func TestDetect_ResourceCapacity(t *testing.T) {
	tk := &task.Task{ID: "t", Subtasks: []task.SubTask{{ID: "a"}, {ID: "b"}}}
	v := view(tk, []string{"x", "y"}, map[string]string{"a": "x", "b": "y"})
	v.Capacity = map[string]int{"x": 1, "y": 0}
	assert.Empty(t, NewResolver(0, nil).Detect(v))

	v.Session.Assignment = map[string]string{"a": "x", "b": "x"}
	cs := NewResolver(10, nil).Detect(v)
	require.Len(t, cs, 1)
	assert.Equal(t, session.SeverityHigh, cs[0].Severity)
}

func TestDetect_PriorityDeadlock(t *testing.T) {
	tk := &task.Task{ID: "t", Subtasks: []task.SubTask{
		{ID: "a"},
		{ID: "b"},
		{ID: "c", Dependencies: []string{"b"}, Priority: 1},
		{ID: "d", Dependencies: []string{"a"}, Priority: 1},
	}}
	v := view(tk, []string{"x", "y"}, map[string]string{"a": "x", "c": "x", "b": "y", "d": "y"})

	cs := NewResolver(0, nil).Detect(v)
	require.Len(t, cs, 3)
	assert.Equal(t, []session.ConflictType{
		session.ConflictDependency, session.ConflictDependency, session.ConflictPriority,
	}, types(cs))
	assert.Equal(t, []string{"x", "y"}, cs[2].Agents)
	assert.Equal(t, []string{"c", "d"}, cs[2].Subtasks)
}

func TestResolve_KindMapping(t *testing.T) {
	r := NewResolver(0, nil)
	tk := &task.Task{ID: "t", Subtasks: []task.SubTask{{ID: "a"}}}
	v := view(tk, []string{"x"}, map[string]string{"a": "x"})

	tests := map[session.ConflictType]session.ResolutionKind{
		session.ConflictResource:      session.ResolutionPrioritized,
		session.ConflictPriority:      session.ResolutionPrioritized,
		session.ConflictDependency:    session.ResolutionReassigned,
		session.ConflictCapability:    session.ResolutionEscalated,
		session.ConflictCommunication: session.ResolutionNegotiated,
		session.ConflictGoal:          session.ResolutionNegotiated,
	}
	for typ, want := range tests {
		res := r.Resolve(session.Conflict{ID: "c1", Type: typ}, v)
		assert.Equal(t, want, res.Kind, string(typ))
		assert.Equal(t, "c1", res.ConflictID)
		assert.Equal(t, ResolverID, res.ResolverID)
	}
}

func TestResolve_ResourceShedsLowestPriority(t *testing.T) {
	tk := &task.Task{ID: "t", Subtasks: []task.SubTask{
		{ID: "a", Priority: 3}, {ID: "b", Priority: 1}, {ID: "c", Priority: 2}, {ID: "d"},
	}}
	v := view(tk, []string{"x", "y", "z"}, map[string]string{"a": "x", "b": "x", "c": "x", "d": "y"})
	r := NewResolver(0, nil)

	cs := r.Detect(v)
	require.Len(t, cs, 1)
	res := r.Resolve(cs[0], v)
	assert.Equal(t, map[string]string{"b": "z"}, res.Reassignments)
}

func TestResolve_DependencyColocates(t *testing.T) {
	tk := &task.Task{ID: "t", Subtasks: []task.SubTask{{ID: "a"}, {ID: "b", Dependencies: []string{"a"}}}}
	v := view(tk, []string{"x", "y"}, map[string]string{"a": "x", "b": "y"})
	r := NewResolver(0, nil)

	cs := r.Detect(v)
	require.Len(t, cs, 1)
	res := r.Resolve(cs[0], v)
	assert.Equal(t, session.ResolutionReassigned, res.Kind)
	assert.Equal(t, map[string]string{"b": "x"}, res.Reassignments)
}

func TestPreventFutureConflicts(t *testing.T) {
	r := NewResolver(0, nil)
	assert.Empty(t, r.Prevented())

	r.PreventFutureConflicts(session.Conflict{Type: session.ConflictResource})
	r.PreventFutureConflicts(session.Conflict{Type: session.ConflictDependency})
	r.PreventFutureConflicts(session.Conflict{Type: session.ConflictResource})

	assert.Equal(t, []session.ConflictType{session.ConflictDependency, session.ConflictResource}, r.Prevented())
}
