package session

import (
	"sync"
	"testing"

	"github.com/dusk-indust/coordinate/internal/agent"
	"github.com/dusk-indust/coordinate/internal/task"
	"github.com/dusk-indust/coordinate/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession() *Session {
	t := &task.Task{ID: "t1", Subtasks: []task.SubTask{{ID: "a"}, {ID: "b"}}}
	return New("s1", t, []string{"x", "y"})
}

func TestSession_Lifecycle(t *testing.T) {
	s := newTestSession()
	assert.Equal(t, StatusInitialized, s.Status())

	require.NoError(t, s.Transition(StatusPlanning))
	require.NoError(t, s.Transition(StatusExecuting))
	require.NoError(t, s.Transition(StatusCompleted))

	err := s.Transition(StatusExecuting)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.False(t, s.Fail(), "terminal sessions cannot fail")
}

func TestSession_InvalidTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusInitialized, StatusExecuting, false},
		{StatusInitialized, StatusFailed, true},
		{StatusPlanning, StatusCompleted, false},
		{StatusExecuting, StatusPaused, true},
		{StatusPaused, StatusExecuting, true},
		{StatusConflicted, StatusFailed, true},
		{StatusFailed, StatusPlanning, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestSession_FailFromExecuting(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Transition(StatusPlanning))
	require.NoError(t, s.Transition(StatusExecuting))

	assert.True(t, s.Fail())
	assert.False(t, s.Fail())
	assert.Equal(t, StatusFailed, s.Status())
}

func TestSession_ProgressIsMonotonicAndClamped(t *testing.T) {
	s := newTestSession()

	p, changed := s.SetProgress(0.5)
	assert.Equal(t, 0.5, p)
	assert.True(t, changed)

	p, changed = s.SetProgress(0.25)
	assert.Equal(t, 0.5, p)
	assert.False(t, changed)

	p, _ = s.SetProgress(3)
	assert.Equal(t, 1.0, p)
	assert.Equal(t, 1.0, s.Snapshot().Progress)
}

func TestSession_ProgressFrozenWhenTerminal(t *testing.T) {
	s := newTestSession()
	s.SetProgress(0.3)
	require.True(t, s.Fail())

	p, changed := s.SetProgress(0.9)
	assert.False(t, changed)
	assert.Equal(t, 0.3, p)
}

func TestSession_ResultsAreAppendOnly(t *testing.T) {
	s := newTestSession()

	assert.True(t, s.RecordResult("a", agent.Output{Confidence: 0.5}))
	assert.False(t, s.RecordResult("a", agent.Output{Confidence: 0.9}))

	snap := s.Snapshot()
	assert.Equal(t, 0.5, snap.Results["a"].Confidence)
}

func TestSession_SnapshotIsIsolated(t *testing.T) {
	s := newTestSession()
	s.SetAssignment(map[string]string{"a": "x", "b": "y"})

	snap := s.Snapshot()
	snap.Assignment["a"] = "y"
	snap.Agents[0] = "mutated"

	again := s.Snapshot()
	assert.Equal(t, "x", again.Assignment["a"])
	assert.Equal(t, []string{"x", "y"}, again.Agents)
}

func TestSession_Reassign(t *testing.T) {
	s := newTestSession()
	s.SetAssignment(map[string]string{"a": "x", "b": "x"})

	s.Reassign(map[string]string{"b": "y", "ghost": "y"})

	got, ok := s.AssignedAgent("b")
	require.True(t, ok)
	assert.Equal(t, "y", got)
	_, ok = s.AssignedAgent("ghost")
	assert.False(t, ok)
}

func TestSession_ConcurrentResultWrites(t *testing.T) {
	subtasks := make([]task.SubTask, 100)
	for i := range subtasks {
		subtasks[i] = task.SubTask{ID: string(rune('A' + i))}
	}
	s := New("s", &task.Task{ID: "t", Subtasks: subtasks}, []string{"x"})

	var wg sync.WaitGroup
	for i, st := range subtasks {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			s.RecordResult(id, agent.Output{})
			s.SetProgress(float64(i+1) / float64(len(subtasks)))
		}(i, st.ID)
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Len(t, snap.Results, 100)
	assert.Equal(t, 1.0, snap.Progress)
}

func TestSnapshot_AgentLoad(t *testing.T) {
	snap := Snapshot{
		Agents:     []string{"x", "y", "z"},
		Assignment: map[string]string{"a": "x", "b": "x", "c": "y"},
	}
	assert.Equal(t, map[string]int{"x": 2, "y": 1, "z": 0}, snap.AgentLoad())
}

func TestAggregate(t *testing.T) {
	outputs := map[string]agent.Output{
		"b": {Payload: value.Map{"v": value.Int(2)}, Confidence: 0.5, Reasoning: []string{"b1"}},
		"a": {Payload: value.Map{"v": value.Int(1)}, Confidence: 1.0, Reasoning: []string{"a1", "a2"}},
	}

	out := Aggregate("s1", outputs)

	assert.Equal(t, "s1", out.InputID)
	assert.InDelta(t, 0.75, out.Confidence, 1e-9)
	assert.Equal(t, []string{"a1", "a2", "b1"}, out.Reasoning)
	assert.ElementsMatch(t, []string{"subtask_a", "subtask_b"}, out.Payload.Keys())
}

func TestAggregate_EmptyHasZeroConfidence(t *testing.T) {
	out := Aggregate("s1", nil)
	assert.Equal(t, 0.0, out.Confidence)
	assert.Empty(t, out.Payload)
	assert.Empty(t, out.Reasoning)
}
