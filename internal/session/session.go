package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dusk-indust/coordinate/internal/agent"
	"github.com/dusk-indust/coordinate/internal/task"
)

// ErrInvalidTransition is returned for a status change the state machine
// does not allow.
var ErrInvalidTransition = errors.New("session: invalid transition")

// Session is one execution instance of a task. All mutation goes through its
// methods, which serialize on a single mutex; readers take Snapshots.
type Session struct {
	mu sync.Mutex

	id         string
	task       *task.Task
	agents     []string
	startedAt  time.Time
	status     Status
	progress   float64
	assignment map[string]string
	results    map[string]agent.Output
	conflicts  []Conflict
	resolved   []Resolution
}

// Snapshot is a point-in-time copy of a Session. It is safe to read and
// mutate without affecting the session.
type Snapshot struct {
	ID          string                  `json:"id"`
	Task        *task.Task              `json:"task"`
	Agents      []string                `json:"participatingAgents"`
	StartedAt   time.Time               `json:"startedAt"`
	Status      Status                  `json:"status"`
	Progress    float64                 `json:"progress"`
	Assignment  map[string]string       `json:"assignment"`
	Results     map[string]agent.Output `json:"results"`
	Conflicts   []Conflict              `json:"conflicts"`
	Resolutions []Resolution            `json:"resolutions"`
}

// New creates a session in StatusInitialized. agents is copied.
func New(id string, t *task.Task, agents []string) *Session {
	return &Session{
		id:         id,
		task:       t,
		agents:     append([]string(nil), agents...),
		startedAt:  time.Now(),
		status:     StatusInitialized,
		assignment: make(map[string]string),
		results:    make(map[string]agent.Output),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Task returns the task this session executes. Tasks are immutable.
func (s *Session) Task() *task.Task { return s.task }

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// HasAgent reports whether id participates in the session.
func (s *Session) HasAgent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a == id {
			return true
		}
	}
	return false
}

// Transition moves the session to status to. Transitions out of a terminal
// state and transitions the state machine does not list are rejected.
func (s *Session) Transition(to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !CanTransition(s.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.status, to)
	}
	s.status = to
	return nil
}

// Fail moves a non-terminal session to StatusFailed and reports whether the
// status changed.
func (s *Session) Fail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.IsTerminal() {
		return false
	}
	s.status = StatusFailed
	return true
}

// SetAssignment replaces the subtask-to-agent assignment.
func (s *Session) SetAssignment(assignment map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignment = copyStrings(assignment)
}

// Reassign moves individual subtasks to new agents. Unknown subtask ids are
// ignored.
func (s *Session) Reassign(moves map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for subtaskID, agentID := range moves {
		if _, ok := s.task.Subtask(subtaskID); ok {
			s.assignment[subtaskID] = agentID
		}
	}
}

// AssignedAgent returns the agent assigned to a subtask.
func (s *Session) AssignedAgent(subtaskID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.assignment[subtaskID]
	return id, ok
}

// RecordResult stores the output for a subtask. Results are append-only: a
// second output for the same subtask is rejected and false is returned.
func (s *Session) RecordResult(subtaskID string, out agent.Output) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.results[subtaskID]; exists {
		return false
	}
	s.results[subtaskID] = out
	return true
}

// SetProgress raises progress to p, clamped to [0,1]. Progress never
// decreases and is frozen once the session is terminal. It returns the
// effective value and whether it changed.
func (s *Session) SetProgress(p float64) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.IsTerminal() {
		return s.progress, false
	}
	p = min(max(p, 0), 1)
	if p <= s.progress {
		return s.progress, false
	}
	s.progress = p
	return p, true
}

// AddConflict appends a detected conflict.
func (s *Session) AddConflict(c Conflict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = append(s.conflicts, c)
}

// AddResolution records a resolution.
func (s *Session) AddResolution(r Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = append(s.resolved, r)
}

// Snapshot returns a deep copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make(map[string]agent.Output, len(s.results))
	for k, v := range s.results {
		results[k] = v
	}
	conflicts := make([]Conflict, len(s.conflicts))
	copy(conflicts, s.conflicts)
	resolved := make([]Resolution, len(s.resolved))
	copy(resolved, s.resolved)

	return Snapshot{
		ID:          s.id,
		Task:        s.task.Clone(),
		Agents:      append([]string(nil), s.agents...),
		StartedAt:   s.startedAt,
		Status:      s.status,
		Progress:    s.progress,
		Assignment:  copyStrings(s.assignment),
		Results:     results,
		Conflicts:   conflicts,
		Resolutions: resolved,
	}
}

// AgentLoad counts assigned subtasks per participating agent. Agents with no
// subtasks are present with a zero count.
func (snap Snapshot) AgentLoad() map[string]int {
	load := make(map[string]int, len(snap.Agents))
	for _, id := range snap.Agents {
		load[id] = 0
	}
	for _, agentID := range snap.Assignment {
		load[agentID]++
	}
	return load
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
