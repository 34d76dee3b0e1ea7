// Package session holds the mutable state of one coordination run and the
// records derived from it: conflicts, resolutions, results and metrics.
package session

import (
	"sort"
	"time"

	"github.com/dusk-indust/coordinate/internal/agent"
	"github.com/dusk-indust/coordinate/internal/value"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusPlanning    Status = "planning"
	StatusExecuting   Status = "executing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"

	// StatusPaused and StatusConflicted are never set by the coordinator's
	// own loop; they exist for external control.
	StatusPaused     Status = "paused"
	StatusConflicted Status = "conflicted"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// transitions lists the allowed target states for each source state.
var transitions = map[Status][]Status{
	StatusInitialized: {StatusPlanning, StatusFailed},
	StatusPlanning:    {StatusExecuting, StatusFailed, StatusPaused, StatusConflicted},
	StatusExecuting:   {StatusCompleted, StatusFailed, StatusPaused, StatusConflicted},
	StatusPaused:      {StatusPlanning, StatusExecuting, StatusFailed},
	StatusConflicted:  {StatusPlanning, StatusExecuting, StatusFailed},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ConflictType classifies a detected conflict.
type ConflictType string

const (
	ConflictResource      ConflictType = "resource"
	ConflictPriority      ConflictType = "priority"
	ConflictDependency    ConflictType = "dependency"
	ConflictCapability    ConflictType = "capability"
	ConflictCommunication ConflictType = "communication"
	ConflictGoal          ConflictType = "goal"
)

// Severity grades a conflict.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Conflict is an anomaly detected between agents. Immutable once created.
type Conflict struct {
	ID          string       `json:"id"`
	Type        ConflictType `json:"type"`
	Description string       `json:"description"`
	Agents      []string     `json:"agents"`
	Subtasks    []string     `json:"subtasks,omitempty"`
	Severity    Severity     `json:"severity"`
	Timestamp   time.Time    `json:"timestamp"`
}

// ResolutionKind is the outcome of resolving a conflict.
type ResolutionKind string

const (
	ResolutionNegotiated  ResolutionKind = "negotiated"
	ResolutionArbitrated  ResolutionKind = "arbitrated"
	ResolutionPrioritized ResolutionKind = "prioritized"
	ResolutionReassigned  ResolutionKind = "reassigned"
	ResolutionEscalated   ResolutionKind = "escalated"
	ResolutionAbandoned   ResolutionKind = "abandoned"
)

// Resolution records how a conflict was settled. Reassignments, when
// present, maps subtask ids to the agent that should take them over.
type Resolution struct {
	ConflictID    string            `json:"conflictId"`
	Kind          ResolutionKind    `json:"kind"`
	Description   string            `json:"description"`
	ResolverID    string            `json:"resolverId"`
	Timestamp     time.Time         `json:"timestamp"`
	Reassignments map[string]string `json:"reassignments,omitempty"`
}

// Metrics are derived once when a session reaches a terminal state.
type Metrics struct {
	Efficiency             float64            `json:"efficiency"`
	CommunicationOverhead  time.Duration      `json:"communicationOverhead"`
	ConflictResolutionTime time.Duration      `json:"conflictResolutionTime"`
	ResourceUtilization    float64            `json:"resourceUtilization"`
	AgentUtilization       map[string]float64 `json:"agentUtilization"`
}

// Result is the terminal outcome of one coordination run. A successful
// result may still hold fewer subtask outputs than the task has subtasks.
type Result struct {
	SessionID         string                  `json:"sessionId"`
	Success           bool                    `json:"success"`
	Output            *agent.Output           `json:"output,omitempty"`
	SubtaskResults    map[string]agent.Output `json:"subtaskResults"`
	ExecutionTime     time.Duration           `json:"executionTime"`
	ConflictsResolved int                     `json:"conflictsResolved"`
	Metrics           Metrics                 `json:"metrics"`
}

// Aggregate merges subtask outputs into one output: payloads are keyed
// "subtask_<id>", confidences are averaged (0.0 when nothing was produced)
// and reasoning traces are concatenated in ascending subtask id order.
func Aggregate(sessionID string, outputs map[string]agent.Output) agent.Output {
	combined := make(value.Map, len(outputs))
	var (
		reasoning []string
		total     float64
	)
	ids := make([]string, 0, len(outputs))
	for id := range outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out := outputs[id]
		combined["subtask_"+id] = value.Object(out.Payload)
		total += out.Confidence
		reasoning = append(reasoning, out.Reasoning...)
	}

	confidence := 0.0
	if len(outputs) > 0 {
		confidence = total / float64(len(outputs))
	}

	return agent.Output{
		InputID:    sessionID,
		ResultType: "aggregated",
		Payload:    combined,
		Confidence: confidence,
		Reasoning:  reasoning,
	}
}
