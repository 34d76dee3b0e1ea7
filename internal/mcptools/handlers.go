package mcptools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dusk-indust/coordinate/internal/coordinator"
	"github.com/dusk-indust/coordinate/internal/logging"
	"github.com/dusk-indust/coordinate/internal/session"
	"github.com/dusk-indust/coordinate/internal/task"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CoordinatorService handles MCP tool calls against one coordinator.
type CoordinatorService struct {
	coord  *coordinator.Coordinator
	logger logging.Logger
}

// NewCoordinatorService creates a CoordinatorService over c.
func NewCoordinatorService(c *coordinator.Coordinator, logger logging.Logger) *CoordinatorService {
	return &CoordinatorService{coord: c, logger: logging.Component(logger, "mcp")}
}

// ListAgents returns the registered agents in ascending id order.
func (s *CoordinatorService) ListAgents(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ ListAgentsInput,
) (*mcp.CallToolResult, ListAgentsOutput, error) {
	infos := s.coord.Agents()
	out := ListAgentsOutput{Agents: make([]AgentSummary, len(infos))}
	for i, info := range infos {
		caps := info.Capabilities
		if caps == nil {
			caps = []string{}
		}
		out.Agents[i] = AgentSummary{ID: info.ID, Capabilities: caps}
	}
	return nil, out, nil
}

// SubmitTask creates a session for the task and, when asked, drives it to a
// terminal state before returning.
func (s *CoordinatorService) SubmitTask(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SubmitTaskInput,
) (*mcp.CallToolResult, SubmitTaskOutput, error) {
	t, err := toTask(input)
	if err != nil {
		return nil, SubmitTaskOutput{}, err
	}

	snap, err := s.coord.CreateSession(t)
	if err != nil {
		return nil, SubmitTaskOutput{}, err
	}
	out := SubmitTaskOutput{
		SessionID: snap.ID,
		Status:    string(snap.Status),
		Agents:    nonNil(snap.Agents),
	}
	if !input.Run {
		return nil, out, nil
	}

	res, err := s.coord.Coordinate(ctx, snap.ID)
	if res != nil {
		out.Result = summarize(res)
	}
	if latest, serr := s.coord.Session(snap.ID); serr == nil {
		out.Status = string(latest.Status)
	}
	if err != nil {
		// The session exists and carries the failure; report it instead of
		// failing the tool call.
		s.logger.Warn("submitted task failed", "session", snap.ID, "error", err)
		out.Message = err.Error()
	}
	return nil, out, nil
}

// GetSession reports the state of an active session and its last result.
func (s *CoordinatorService) GetSession(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, GetSessionOutput, error) {
	snap, err := s.coord.Session(input.SessionID)
	if err != nil {
		return nil, GetSessionOutput{}, err
	}

	completed := make([]string, 0, len(snap.Results))
	for id := range snap.Results {
		completed = append(completed, id)
	}
	sort.Strings(completed)

	out := GetSessionOutput{
		SessionID:   snap.ID,
		TaskID:      snap.Task.ID,
		Status:      string(snap.Status),
		Progress:    snap.Progress,
		Agents:      nonNil(snap.Agents),
		Assignment:  nonNilMap(snap.Assignment),
		Completed:   completed,
		Conflicts:   len(snap.Conflicts),
		Resolutions: len(snap.Resolutions),
	}
	if res, err := s.coord.Result(input.SessionID); err == nil && res != nil {
		out.Result = summarize(res)
	}
	return nil, out, nil
}

// ResolveConflicts resolves the first conflict detected in a session.
func (s *CoordinatorService) ResolveConflicts(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, ResolveConflictsOutput, error) {
	res, err := s.coord.ResolveConflicts(input.SessionID)
	if err != nil {
		return nil, ResolveConflictsOutput{}, err
	}
	return nil, ResolveConflictsOutput{
		ConflictID:    res.ConflictID,
		Kind:          string(res.Kind),
		Description:   res.Description,
		Reassignments: res.Reassignments,
	}, nil
}

// OptimizeSession proposes a rebalanced assignment without applying it.
func (s *CoordinatorService) OptimizeSession(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, OptimizeSessionOutput, error) {
	current, err := s.coord.Session(input.SessionID)
	if err != nil {
		return nil, OptimizeSessionOutput{}, err
	}
	proposed, err := s.coord.Optimize(input.SessionID)
	if err != nil {
		return nil, OptimizeSessionOutput{}, err
	}

	moved := make(map[string]string)
	for id, agentID := range proposed.Assignment {
		if current.Assignment[id] != agentID {
			moved[id] = agentID
		}
	}
	return nil, OptimizeSessionOutput{
		Assignment: nonNilMap(proposed.Assignment),
		Moved:      moved,
	}, nil
}

// CleanupSession removes a terminal session, archiving it when the
// coordinator has an archive.
func (s *CoordinatorService) CleanupSession(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, CleanupSessionOutput, error) {
	if err := s.coord.Cleanup(ctx, input.SessionID); err != nil {
		return nil, CleanupSessionOutput{}, err
	}
	return nil, CleanupSessionOutput{SessionID: input.SessionID, Removed: true}, nil
}

// toTask converts tool input to a task.
func toTask(input SubmitTaskInput) (*task.Task, error) {
	typ := task.Type(input.Type)
	if typ == "" {
		typ = task.TypeParallel
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown task type %q", input.Type)
	}

	t := &task.Task{
		ID:                   input.ID,
		Type:                 typ,
		Description:          input.Description,
		RequiredCapabilities: input.RequiredCapabilities,
		Priority:             input.Priority,
		Subtasks:             make([]task.SubTask, len(input.Subtasks)),
	}
	for i, st := range input.Subtasks {
		if st.EstimatedSeconds < 0 {
			return nil, fmt.Errorf("subtask %s: negative estimatedSeconds", st.ID)
		}
		t.Subtasks[i] = task.SubTask{
			ID:                st.ID,
			Description:       st.Description,
			AssignedAgent:     st.AssignedAgent,
			Dependencies:      st.Dependencies,
			EstimatedDuration: time.Duration(math.Round(st.EstimatedSeconds * float64(time.Second))),
			Priority:          st.Priority,
		}
	}
	if input.MaxAgents > 0 {
		t.Constraints = []task.Constraint{{Type: task.ConstraintResource, Limit: input.MaxAgents}}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// summarize flattens a result for the tool output schema.
func summarize(res *session.Result) *ResultSummary {
	out := &ResultSummary{
		Success:             res.Success,
		Outputs:             make(map[string]map[string]any, len(res.SubtaskResults)),
		ExecutionMillis:     res.ExecutionTime.Milliseconds(),
		ConflictsResolved:   res.ConflictsResolved,
		Efficiency:          res.Metrics.Efficiency,
		ResourceUtilization: res.Metrics.ResourceUtilization,
		AgentUtilization:    make(map[string]float64, len(res.Metrics.AgentUtilization)),
	}
	for id, o := range res.SubtaskResults {
		out.Outputs[id] = o.Payload.Any()
	}
	for id, u := range res.Metrics.AgentUtilization {
		out.AgentUtilization[id] = u
	}
	if res.Output != nil {
		out.Confidence = res.Output.Confidence
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
