package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dusk-indust/coordinate/internal/agent"
	"github.com/dusk-indust/coordinate/internal/session"
	"github.com/dusk-indust/coordinate/internal/store"
	"github.com/dusk-indust/coordinate/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCoordinator(t *testing.T, opts ...Option) *Coordinator {
	t.Helper()
	c := New(opts...)
	t.Cleanup(c.Close)
	return c
}

// drain collects every event currently buffered on ch.
func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func independent(n int) []task.SubTask {
	out := make([]task.SubTask, n)
	for i := range out {
		out[i] = task.SubTask{ID: string(rune('a' + i)), Description: "step " + string(rune('a'+i))}
	}
	return out
}

func TestCoordinate_ParallelFanOut(t *testing.T) {
	c := newCoordinator(t)
	var calls atomic.Int32
	for _, id := range []string{"x", "y"} {
		c.RegisterAgent(agent.NewFuncAgent(id, []string{"work"}, func(_ context.Context, in agent.Input) (agent.Output, error) {
			calls.Add(1)
			return agent.Output{InputID: in.ID, Confidence: 0.5}, nil
		}))
	}

	snap, err := c.CreateSession(&task.Task{ID: "t", Type: task.TypeParallel, RequiredCapabilities: []string{"work"}, Subtasks: independent(5)})
	require.NoError(t, err)

	res, err := c.Coordinate(context.Background(), snap.ID)
	require.NoError(t, err)

	assert.Equal(t, int32(5), calls.Load())
	assert.True(t, res.Success)
	assert.Len(t, res.SubtaskResults, 5)
	assert.InDelta(t, 0.5, res.Output.Confidence, 1e-9)
	assert.Equal(t, map[string]float64{"x": 0.6, "y": 0.4}, res.Metrics.AgentUtilization)
}

func TestCoordinate_HierarchicalRunsDependencyFirst(t *testing.T) {
	c := newCoordinator(t)
	var (
		mu    sync.Mutex
		order []string
	)
	c.RegisterAgent(agent.NewFuncAgent("x", nil, func(_ context.Context, in agent.Input) (agent.Output, error) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, in.ID)
		return agent.Output{InputID: in.ID}, nil
	}))

	snap, err := c.CreateSession(&task.Task{ID: "t", Type: task.TypeHierarchical, Subtasks: []task.SubTask{
		{ID: "B", Dependencies: []string{"A"}},
		{ID: "A"},
	}})
	require.NoError(t, err)

	_, err = c.Coordinate(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, order)
}

func TestCoordinate_SequentialEchoScenario(t *testing.T) {
	c := newCoordinator(t)
	c.RegisterAgent(agent.NewEchoAgent("echo"))

	snap, err := c.CreateSession(&task.Task{ID: "t", Type: task.TypeSequential, Subtasks: []task.SubTask{
		{ID: "s1", Description: "first", EstimatedDuration: 10 * time.Second},
		{ID: "s2", Description: "second", EstimatedDuration: 20 * time.Second},
	}})
	require.NoError(t, err)

	res, err := c.Coordinate(context.Background(), snap.ID)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Len(t, res.SubtaskResults, 2)
	assert.Equal(t, 1.0, res.Metrics.Efficiency)
	assert.Equal(t, 1.0, res.Metrics.ResourceUtilization)
	assert.GreaterOrEqual(t, res.ExecutionTime, time.Duration(0))
	assert.Equal(t, 1.0, res.Output.Confidence)
	assert.ElementsMatch(t, []string{"subtask_s1", "subtask_s2"}, res.Output.Payload.Keys())

	final, err := c.Session(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, final.Status)
	assert.Equal(t, 1.0, final.Progress)

	stored, err := c.Result(snap.ID)
	require.NoError(t, err)
	assert.Same(t, res, stored)
}

func TestCoordinate_UnsatisfiableCapabilities(t *testing.T) {
	c := newCoordinator(t)
	c.RegisterAgent(agent.NewEchoAgent("x", "build"))

	snap, err := c.CreateSession(&task.Task{ID: "t", RequiredCapabilities: []string{"quantum"}, Subtasks: independent(1)})
	require.NoError(t, err)
	assert.Empty(t, snap.Agents)
	assert.Equal(t, session.StatusInitialized, snap.Status)

	res, err := c.Coordinate(context.Background(), snap.ID)
	assert.Nil(t, res)
	require.ErrorIs(t, err, ErrPlanning)
	var perr *PlanningError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, snap.ID, perr.SessionID)

	after, _ := c.Session(snap.ID)
	assert.Equal(t, session.StatusFailed, after.Status)
}

func TestCoordinate_DependencyCycleIsPlanningError(t *testing.T) {
	c := newCoordinator(t)
	c.RegisterAgent(agent.NewEchoAgent("x"))

	snap, err := c.CreateSession(&task.Task{ID: "t", Subtasks: []task.SubTask{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	}})
	require.NoError(t, err)

	_, err = c.Coordinate(context.Background(), snap.ID)
	require.ErrorIs(t, err, ErrPlanning)
	assert.ErrorIs(t, err, ErrDependencyViolation)
	assert.ErrorIs(t, err, task.ErrCycle)
}

func TestCoordinate_CapacityAdmission(t *testing.T) {
	c := newCoordinator(t, WithAgentCapacity(1))
	c.RegisterAgent(agent.NewEchoAgent("x"))

	snap, err := c.CreateSession(&task.Task{ID: "t", Subtasks: independent(2)})
	require.NoError(t, err)

	_, err = c.Coordinate(context.Background(), snap.ID)
	require.ErrorIs(t, err, ErrPlanning)
	assert.ErrorIs(t, err, ErrResourceAllocationFailed)
}

func TestRegisterAgentWithCapacity_OverridesDefault(t *testing.T) {
	c := newCoordinator(t, WithAgentCapacity(1))
	var during atomic.Value
	c.RegisterAgentWithCapacity(agent.NewFuncAgent("x", nil, func(_ context.Context, in agent.Input) (agent.Output, error) {
		during.Store(c.Utilization()["x"])
		return agent.Output{InputID: in.ID, Confidence: 1}, nil
	}), 4)

	snap, err := c.CreateSession(&task.Task{ID: "t", Subtasks: independent(2)})
	require.NoError(t, err)

	res, err := c.Coordinate(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0.5, during.Load())
	assert.Equal(t, map[string]float64{"x": 0}, c.Utilization())
}

func TestRegisterAgent_RepeatKeepsCapacity(t *testing.T) {
	c := newCoordinator(t)
	x := agent.NewEchoAgent("x")
	c.RegisterAgentWithCapacity(x, 1)
	c.RegisterAgent(x)

	snap, err := c.CreateSession(&task.Task{ID: "t", Subtasks: independent(2)})
	require.NoError(t, err)

	_, err = c.Coordinate(context.Background(), snap.ID)
	assert.ErrorIs(t, err, ErrResourceAllocationFailed)
}

func TestCoordinate_AgentFailureIsNotFatal(t *testing.T) {
	c := newCoordinator(t)
	c.RegisterAgent(agent.NewFuncAgent("x", nil, func(_ context.Context, in agent.Input) (agent.Output, error) {
		if in.ID == "b" {
			return agent.Output{}, errors.New("boom")
		}
		return agent.Output{InputID: in.ID, Confidence: 1}, nil
	}))

	snap, err := c.CreateSession(&task.Task{ID: "t", Type: task.TypeSequential, Subtasks: independent(2)})
	require.NoError(t, err)

	res, err := c.Coordinate(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.SubtaskResults, 1)
	assert.Equal(t, 0.5, res.Metrics.Efficiency)
}

func TestCoordinate_AgentTimeout(t *testing.T) {
	c := newCoordinator(t, WithAgentTimeout(10*time.Millisecond))
	c.RegisterAgent(agent.NewFuncAgent("x", nil, func(ctx context.Context, _ agent.Input) (agent.Output, error) {
		<-ctx.Done()
		return agent.Output{}, ctx.Err()
	}))

	snap, err := c.CreateSession(&task.Task{ID: "t", Subtasks: independent(1)})
	require.NoError(t, err)

	res, err := c.Coordinate(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.SubtaskResults)
	assert.Equal(t, 0.0, res.Output.Confidence)
}

func TestCoordinate_AgentTimeoutBoundsUncooperativeAgent(t *testing.T) {
	c := newCoordinator(t, WithAgentTimeout(20*time.Millisecond))
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	c.RegisterAgent(agent.NewFuncAgent("x", nil, func(_ context.Context, in agent.Input) (agent.Output, error) {
		<-release
		return agent.Output{InputID: in.ID, Confidence: 1}, nil
	}))

	snap, err := c.CreateSession(&task.Task{ID: "t", Subtasks: independent(1)})
	require.NoError(t, err)

	start := time.Now()
	res, err := c.Coordinate(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, res.SubtaskResults)

	after, err := c.Session(snap.ID)
	require.NoError(t, err)
	assert.Empty(t, after.Results)
}

func TestCoordinate_CanceledContextFailsSession(t *testing.T) {
	c := newCoordinator(t)
	c.RegisterAgent(agent.NewEchoAgent("x"))

	snap, err := c.CreateSession(&task.Task{ID: "t", Type: task.TypeSequential, Subtasks: independent(2)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := c.Coordinate(ctx, snap.ID)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.False(t, res.Success)
}

func TestCoordinate_SecondDriveIsBusy(t *testing.T) {
	c := newCoordinator(t)
	started := make(chan struct{})
	release := make(chan struct{})
	c.RegisterAgent(agent.NewFuncAgent("x", nil, func(_ context.Context, in agent.Input) (agent.Output, error) {
		close(started)
		<-release
		return agent.Output{InputID: in.ID}, nil
	}))

	snap, err := c.CreateSession(&task.Task{ID: "t", Subtasks: independent(1)})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Coordinate(context.Background(), snap.ID)
		done <- err
	}()
	<-started

	_, err = c.Coordinate(context.Background(), snap.ID)
	require.ErrorIs(t, err, ErrSessionBusy)

	close(release)
	require.NoError(t, <-done)

	_, err = c.Coordinate(context.Background(), snap.ID)
	require.ErrorIs(t, err, session.ErrInvalidTransition, "completed sessions cannot be driven again")
}

func TestUnregisterAgent_MidSessionFailsOnce(t *testing.T) {
	c := newCoordinator(t)
	started := make(chan struct{})
	release := make(chan struct{})
	c.RegisterAgent(agent.NewFuncAgent("solo", nil, func(_ context.Context, in agent.Input) (agent.Output, error) {
		close(started)
		<-release
		return agent.Output{InputID: in.ID, Confidence: 1}, nil
	}))

	snap, err := c.CreateSession(&task.Task{ID: "t", Subtasks: independent(1)})
	require.NoError(t, err)

	events, unsubscribe := c.Subscribe(128)
	defer unsubscribe()

	type outcome struct {
		res *session.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := c.Coordinate(context.Background(), snap.ID)
		done <- outcome{res, err}
	}()
	<-started

	current, _ := c.Session(snap.ID)
	require.Equal(t, session.StatusExecuting, current.Status)

	assert.True(t, c.UnregisterAgent("solo"))
	current, _ = c.Session(snap.ID)
	assert.Equal(t, session.StatusFailed, current.Status)

	close(release)
	out := <-done
	require.NoError(t, out.err)
	assert.False(t, out.res.Success)

	var failed, produced int
	for _, ev := range drain(events) {
		switch {
		case ev.Type == EventSessionChanged && ev.Status == session.StatusFailed:
			failed++
		case ev.Type == EventResultProduced:
			produced++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, produced)

	assert.False(t, c.UnregisterAgent("solo"))
}

func TestCoordinate_PublishesProgress(t *testing.T) {
	c := newCoordinator(t)
	c.RegisterAgent(agent.NewEchoAgent("x"))
	events, unsubscribe := c.Subscribe(0)
	defer unsubscribe()

	snap, err := c.CreateSession(&task.Task{ID: "t", Type: task.TypeSequential, Subtasks: independent(4)})
	require.NoError(t, err)
	_, err = c.Coordinate(context.Background(), snap.ID)
	require.NoError(t, err)

	var statuses []session.Status
	var progress []float64
	for _, ev := range drain(events) {
		if ev.Type != EventSessionChanged {
			continue
		}
		if ev.Status == session.StatusExecuting && ev.Progress > 0 {
			progress = append(progress, ev.Progress)
			continue
		}
		statuses = append(statuses, ev.Status)
	}
	assert.Equal(t, []float64{0.25, 0.5, 0.75, 1}, progress)
	assert.Equal(t, []session.Status{session.StatusPlanning, session.StatusExecuting, session.StatusCompleted}, statuses)
}

func TestCoordinate_CollaborativeAnnouncesToPeers(t *testing.T) {
	c := newCoordinator(t)
	var (
		mu       sync.Mutex
		received = map[string][]string{}
	)
	for _, id := range []string{"x", "y", "z"} {
		c.RegisterAgent(agent.NewEchoAgent(id).WithCommunicate(func(_ context.Context, peer string, msg agent.Message) (agent.Message, error) {
			mu.Lock()
			defer mu.Unlock()
			subtask, _ := msg.Payload["subtask_id"].AsString()
			received[msg.To] = append(received[msg.To], peer+":"+subtask)
			return agent.Message{}, nil
		}))
	}

	snap, err := c.CreateSession(&task.Task{ID: "t", Type: task.TypeCollaborative, Subtasks: independent(2)})
	require.NoError(t, err)
	res, err := c.Coordinate(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)

	// a runs on x, b runs on y; entries are sender:subtask.
	assert.Equal(t, []string{"y:b"}, received["x"])
	assert.Equal(t, []string{"x:a"}, received["y"])
	assert.Equal(t, []string{"x:a", "y:b"}, received["z"])
}

func TestCreateSession_ResourceLimitKeepsLowestIDs(t *testing.T) {
	c := newCoordinator(t)
	for _, id := range []string{"c", "a", "d", "b"} {
		c.RegisterAgent(agent.NewEchoAgent(id))
	}

	snap, err := c.CreateSession(&task.Task{
		ID:          "t",
		Subtasks:    independent(1),
		Constraints: []task.Constraint{{Type: task.ConstraintResource, Limit: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, snap.Agents)

	_, err = c.CreateSession(&task.Task{})
	assert.ErrorIs(t, err, task.ErrInvalid)
}

func TestCreateSession_CopiesTask(t *testing.T) {
	c := newCoordinator(t)
	c.RegisterAgent(agent.NewEchoAgent("x"))

	submitted := &task.Task{ID: "t", Type: task.TypeHierarchical, Subtasks: []task.SubTask{
		{ID: "a", Description: "first"},
		{ID: "b", Description: "second", Dependencies: []string{"a"}},
	}}
	snap, err := c.CreateSession(submitted)
	require.NoError(t, err)

	submitted.Subtasks[0].Description = "changed"
	submitted.Subtasks[1].Dependencies[0] = "b"
	submitted.Subtasks = append(submitted.Subtasks, task.SubTask{ID: "c"})
	snap.Task.Subtasks[0].ID = "mutated"

	live, err := c.Session(snap.ID)
	require.NoError(t, err)
	require.Len(t, live.Task.Subtasks, 2)
	assert.Equal(t, "a", live.Task.Subtasks[0].ID)
	assert.Equal(t, "first", live.Task.Subtasks[0].Description)
	assert.Equal(t, []string{"a"}, live.Task.Subtasks[1].Dependencies)

	res, err := c.Coordinate(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.SubtaskResults, 2)
}

func TestAssign_RoundRobinHonoursPreassignment(t *testing.T) {
	tk := &task.Task{ID: "t", Subtasks: []task.SubTask{
		{ID: "a"}, {ID: "b", AssignedAgent: "x"}, {ID: "c", AssignedAgent: "ghost"}, {ID: "d"},
	}}
	got := Assign(tk, []string{"x", "y"})
	assert.Equal(t, map[string]string{"a": "x", "b": "x", "c": "x", "d": "y"}, got)
	assert.Empty(t, Assign(tk, nil))
}

func TestResolveConflicts_NoConflictsIsIdempotent(t *testing.T) {
	c := newCoordinator(t)
	c.RegisterAgent(agent.NewEchoAgent("x"))
	snap, err := c.CreateSession(&task.Task{ID: "t", Subtasks: independent(2)})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := c.ResolveConflicts(snap.ID)
		require.NoError(t, err)
		assert.Equal(t, session.ResolutionNegotiated, res.Kind)
		assert.Equal(t, "No conflicts detected", res.Description)
	}
	after, _ := c.Session(snap.ID)
	assert.Empty(t, after.Resolutions)
}

func TestResolveConflicts_ColocatesCrossAgentDependency(t *testing.T) {
	c := newCoordinator(t)
	c.RegisterAgent(agent.NewEchoAgent("x"))
	c.RegisterAgent(agent.NewEchoAgent("y"))

	snap, err := c.CreateSession(&task.Task{ID: "t", Type: task.TypeHierarchical, Subtasks: []task.SubTask{
		{ID: "a"},
		{ID: "b", Dependencies: []string{"a"}},
	}})
	require.NoError(t, err)
	_, err = c.Coordinate(context.Background(), snap.ID)
	require.NoError(t, err)

	conflicts, err := c.DetectConflicts(snap.ID)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	res, err := c.ResolveConflicts(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ResolutionReassigned, res.Kind)

	after, _ := c.Session(snap.ID)
	assert.Equal(t, "x", after.Assignment["b"])
	assert.Len(t, after.Conflicts, 1)
	assert.Len(t, after.Resolutions, 1)
	assert.Equal(t, []session.ConflictType{session.ConflictDependency}, c.Resolver().Prevented())
}

func TestOptimize_WithinThresholdIsNoOp(t *testing.T) {
	c := newCoordinator(t)
	c.RegisterAgent(agent.NewEchoAgent("x"))
	c.RegisterAgent(agent.NewEchoAgent("y"))
	snap, err := c.CreateSession(&task.Task{ID: "t", Subtasks: independent(4)})
	require.NoError(t, err)
	_, err = c.Coordinate(context.Background(), snap.ID)
	require.NoError(t, err)

	before, _ := c.Session(snap.ID)
	optimized, err := c.Optimize(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Assignment, optimized.Assignment)
}

func TestOptimize_DoesNotMutateSession(t *testing.T) {
	c := newCoordinator(t)
	for _, id := range []string{"x", "y", "z"} {
		c.RegisterAgent(agent.NewEchoAgent(id))
	}
	subtasks := independent(4)
	for i := range subtasks {
		subtasks[i].AssignedAgent = "x"
	}
	snap, err := c.CreateSession(&task.Task{ID: "t", Subtasks: subtasks})
	require.NoError(t, err)
	_, err = c.Coordinate(context.Background(), snap.ID)
	require.NoError(t, err)

	optimized, err := c.Optimize(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "y", optimized.Assignment["d"])

	after, _ := c.Session(snap.ID)
	assert.Equal(t, "x", after.Assignment["d"])
}

func TestRebalance(t *testing.T) {
	tk := &task.Task{ID: "t", Subtasks: independent(6)}
	snap := session.Snapshot{
		Task:       tk,
		Agents:     []string{"x", "y", "z"},
		Assignment: map[string]string{"a": "x", "b": "x", "c": "x", "d": "x", "e": "y", "f": "y"},
	}

	got := Rebalance(snap, 1.5)
	assert.Equal(t, "z", got["d"], "last subtask of the overloaded agent moves to the idle one")
	assert.Equal(t, "x", got["c"])
	assert.Equal(t, "x", snap.Assignment["d"], "input is not modified")

	balanced := Rebalance(session.Snapshot{Task: tk, Agents: []string{"x"}, Assignment: map[string]string{"a": "x"}}, 1.5)
	assert.Equal(t, map[string]string{"a": "x"}, balanced)
}

func TestCleanup_ArchivesTerminalSessions(t *testing.T) {
	archive := store.NewMemStore()
	c := newCoordinator(t, WithArchive(archive))
	c.RegisterAgent(agent.NewEchoAgent("x"))

	snap, err := c.CreateSession(&task.Task{ID: "t", Subtasks: independent(1)})
	require.NoError(t, err)
	require.ErrorIs(t, c.Cleanup(context.Background(), snap.ID), ErrSessionActive)

	_, err = c.Coordinate(context.Background(), snap.ID)
	require.NoError(t, err)
	require.NoError(t, c.Cleanup(context.Background(), snap.ID))

	_, err = c.Session(snap.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, c.Sessions())

	rec, err := archive.Load(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, rec.Session.Status)
	require.NotNil(t, rec.Result)
	assert.True(t, rec.Result.Success)
}

func TestSessions_SortedByID(t *testing.T) {
	c := newCoordinator(t)
	for i := 0; i < 3; i++ {
		_, err := c.CreateSession(&task.Task{ID: "t"})
		require.NoError(t, err)
	}
	all := c.Sessions()
	require.Len(t, all, 3)
	assert.Less(t, all[0].ID, all[1].ID)
	assert.Less(t, all[1].ID, all[2].ID)

	_, err := c.Coordinate(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAgents_ListsRegistered(t *testing.T) {
	c := newCoordinator(t)
	c.RegisterAgent(agent.NewEchoAgent("b", "z", "a"))
	c.RegisterAgent(agent.NewEchoAgent("a"))

	agents := c.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, "a", agents[0].ID)
	assert.Equal(t, []string{"a", "z"}, agents[1].Capabilities)
}
