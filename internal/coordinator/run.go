package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dusk-indust/coordinate/internal/agent"
	"github.com/dusk-indust/coordinate/internal/session"
	"github.com/dusk-indust/coordinate/internal/strategy"
	"github.com/dusk-indust/coordinate/internal/task"
	"github.com/dusk-indust/coordinate/internal/value"
)

// Coordinate drives a session through planning and execution to a terminal
// state and returns its result. Planning failures fail the session and are
// returned as *PlanningError before any agent is invoked. Individual agent
// failures are logged and leave their subtask without output; the session
// still completes. Only one Coordinate call may run per session at a time;
// a concurrent call returns ErrSessionBusy.
func (c *Coordinator) Coordinate(ctx context.Context, sessionID string) (*session.Result, error) {
	e, err := c.entry(sessionID)
	if err != nil {
		return nil, err
	}
	if !e.drive.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, sessionID)
	}
	defer e.drive.Unlock()

	s := e.session
	start := time.Now()

	if err := c.transition(s, session.StatusPlanning); err != nil {
		return nil, fmt.Errorf("coordinator: coordinate %s: %w", sessionID, err)
	}

	plan, err := c.plan(s)
	if err != nil {
		c.fail(s)
		c.logger.Error("planning failed", "session", sessionID, "error", err)
		return nil, err
	}

	demand := loadOf(plan.Assignment)
	if err := c.resources.Allocate(demand); err != nil {
		c.fail(s)
		perr := &PlanningError{
			SessionID: sessionID,
			Reason:    "insufficient agent capacity",
			Err:       errors.Join(ErrResourceAllocationFailed, err),
		}
		c.logger.Error("planning failed", "session", sessionID, "error", perr)
		return nil, perr
	}
	defer c.resources.Release(demand)

	strat := c.strategies.Select(s.Task().Type)
	execErr := c.execute(ctx, s, strat, plan)

	return c.finish(e, start, execErr), execErr
}

// plan assigns every subtask to a participant and validates the result.
func (c *Coordinator) plan(s *session.Session) (strategy.Plan, error) {
	t := s.Task()
	snap := s.Snapshot()

	if len(snap.Agents) == 0 {
		return strategy.Plan{}, &PlanningError{SessionID: s.ID(), Reason: "no eligible agents"}
	}
	if _, err := t.TopologicalOrder(); err != nil {
		return strategy.Plan{}, &PlanningError{
			SessionID: s.ID(),
			Reason:    "dependency cycle",
			Err:       errors.Join(ErrDependencyViolation, err),
		}
	}

	assignment := Assign(t, snap.Agents)
	for _, st := range t.Subtasks {
		if _, ok := assignment[st.ID]; !ok {
			return strategy.Plan{}, &PlanningError{SessionID: s.ID(), SubtaskID: st.ID, Reason: "unassigned subtask"}
		}
	}
	s.SetAssignment(assignment)

	c.logger.Debug("session planned", "session", s.ID(), "assignment", assignment)
	return strategy.Plan{Task: t, Assignment: assignment}, nil
}

// Assign maps subtasks to agents round-robin by list index over agents,
// which must be in a deterministic order. A subtask pre-assigned to one of
// agents keeps that agent.
func Assign(t *task.Task, agents []string) map[string]string {
	assignment := make(map[string]string, len(t.Subtasks))
	if len(agents) == 0 {
		return assignment
	}
	member := make(map[string]bool, len(agents))
	for _, id := range agents {
		member[id] = true
	}
	for i, st := range t.Subtasks {
		if st.AssignedAgent != "" && member[st.AssignedAgent] {
			assignment[st.ID] = st.AssignedAgent
			continue
		}
		assignment[st.ID] = agents[i%len(agents)]
	}
	return assignment
}

func (c *Coordinator) execute(ctx context.Context, s *session.Session, strat strategy.Strategy, plan strategy.Plan) error {
	if err := c.transition(s, session.StatusExecuting); err != nil {
		// The session failed between planning and execution, typically
		// because a participant was unregistered.
		c.logger.Warn("session not executed", "session", s.ID(), "error", err)
		return nil
	}

	d := &dispatcher{c: c, s: s, total: len(plan.Task.Subtasks)}
	c.logger.Info("executing session", "session", s.ID(), "strategy", strat.Name(), "subtasks", d.total)
	if err := strat.Execute(ctx, plan, d); err != nil {
		c.fail(s)
		return fmt.Errorf("coordinator: execute %s: %w", s.ID(), err)
	}
	return nil
}

// finish completes the session when possible and builds its result.
func (c *Coordinator) finish(e *entry, start time.Time, execErr error) *session.Result {
	s := e.session
	if execErr == nil {
		if err := c.transition(s, session.StatusCompleted); err != nil {
			c.logger.Warn("session not completed", "session", s.ID(), "error", err)
		}
	}

	snap := s.Snapshot()
	elapsed := time.Since(start)
	out := session.Aggregate(snap.ID, snap.Results)
	res := &session.Result{
		SessionID:         snap.ID,
		Success:           snap.Status == session.StatusCompleted,
		Output:            &out,
		SubtaskResults:    snap.Results,
		ExecutionTime:     elapsed,
		ConflictsResolved: len(snap.Resolutions),
		Metrics:           c.metrics(snap, elapsed),
	}

	e.mu.Lock()
	e.result = res
	e.mu.Unlock()

	c.logger.Info("session finished", "session", snap.ID, "status", snap.Status,
		"results", len(snap.Results), "subtasks", len(snap.Task.Subtasks), "elapsed", elapsed)
	c.events.Publish(Event{
		Type:      EventResultProduced,
		SessionID: snap.ID,
		Status:    snap.Status,
		Progress:  snap.Progress,
		Result:    res,
	})
	return res
}

// metrics derives the session metrics from the final snapshot.
func (c *Coordinator) metrics(snap session.Snapshot, elapsed time.Duration) session.Metrics {
	total := len(snap.Task.Subtasks)
	efficiency := 1.0
	if total > 0 {
		efficiency = float64(len(snap.Results)) / float64(total)
	}

	perAgent := make(map[string]float64, len(snap.Agents))
	for id, n := range snap.AgentLoad() {
		if total == 0 {
			perAgent[id] = 0
			continue
		}
		perAgent[id] = float64(n) / float64(total)
	}

	return session.Metrics{
		Efficiency:             efficiency,
		CommunicationOverhead:  time.Duration(float64(elapsed) * c.opts.CommunicationOverheadRatio),
		ConflictResolutionTime: time.Duration(len(snap.Conflicts)) * c.opts.ConflictResolutionUnit,
		ResourceUtilization:    c.opts.ResourceUtilization(snap, efficiency),
		AgentUtilization:       perAgent,
	}
}

// dispatcher runs subtasks of one session on behalf of a strategy.
type dispatcher struct {
	c        *Coordinator
	s        *session.Session
	total    int
	finished atomic.Int64
}

// Dispatch invokes the assigned agent. Agent failures are logged and
// swallowed; only a done context stops the run.
func (d *dispatcher) Dispatch(ctx context.Context, st task.SubTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := d.c.logger.With("session", d.s.ID(), "subtask", st.ID)
	if d.s.Status().IsTerminal() {
		log.Debug("subtask skipped: session already terminal")
		return nil
	}

	if out, err := d.invoke(ctx, st); err != nil {
		log.Warn("subtask failed", "error", err)
	} else if !d.s.RecordResult(st.ID, out) {
		log.Warn("duplicate subtask output ignored")
	}

	n := d.finished.Add(1)
	if _, changed := d.s.SetProgress(float64(n) / float64(d.total)); changed {
		d.c.publishChange(d.s)
	}
	return ctx.Err()
}

func (d *dispatcher) invoke(ctx context.Context, st task.SubTask) (agent.Output, error) {
	agentID, ok := d.s.AssignedAgent(st.ID)
	if !ok {
		return agent.Output{}, fmt.Errorf("%w: subtask %s has no agent", ErrAgentInvocation, st.ID)
	}
	a, err := d.c.registry.Get(agentID)
	if err != nil {
		return agent.Output{}, fmt.Errorf("%w: %w", ErrAgentInvocation, err)
	}

	if timeout := d.c.opts.AgentTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	in := agent.Input{
		ID:   st.ID,
		Type: agent.InputTask,
		Payload: value.Map{
			"description": value.String(st.Description),
			"subtask_id":  value.String(st.ID),
			"session_id":  value.String(d.s.ID()),
		},
		Context: agent.ContextDistributed,
	}
	type reply struct {
		out agent.Output
		err error
	}
	// Buffered so an abandoned call can still finish and exit.
	done := make(chan reply, 1)
	go func() {
		out, err := a.Process(ctx, in)
		done <- reply{out, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return agent.Output{}, fmt.Errorf("%w: agent %s: %w", ErrAgentInvocation, agentID, r.err)
		}
		return r.out, nil
	case <-ctx.Done():
		return agent.Output{}, fmt.Errorf("%w: agent %s: %w", ErrAgentInvocation, agentID, ctx.Err())
	}
}

// Announce sends a coordination message from the subtask's agent to every
// other participant. Delivery failures are logged and do not stop the run.
func (d *dispatcher) Announce(ctx context.Context, st task.SubTask) error {
	from, _ := d.s.AssignedAgent(st.ID)
	snap := d.s.Snapshot()

	var peers []string
	for _, id := range snap.Agents {
		if id != from {
			peers = append(peers, id)
		}
	}
	if len(peers) == 0 {
		return nil
	}

	names := make([]value.Value, len(peers))
	for i, id := range peers {
		names[i] = value.String(id)
	}
	msg := agent.Message{
		From: from,
		Kind: agent.MessageCoordination,
		Payload: value.Map{
			"session_id":   value.String(d.s.ID()),
			"subtask_id":   value.String(st.ID),
			"description":  value.String(st.Description),
			"participants": value.List(names...),
		},
	}
	if err := d.c.network.Multicast(ctx, msg, peers); err != nil {
		d.c.logger.Warn("announcement failed", "session", d.s.ID(), "subtask", st.ID,
			"error", fmt.Errorf("%w: %w", ErrCommunicationFailed, err))
	}
	return ctx.Err()
}

// loadOf counts subtasks per agent in an assignment.
func loadOf(assignment map[string]string) map[string]int {
	load := make(map[string]int)
	for _, agentID := range assignment {
		load[agentID]++
	}
	return load
}
