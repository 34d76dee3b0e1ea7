// Package export renders sessions for consumers outside the coordinator: a
// JSON document of a session and its result, and a Mermaid diagram of a
// task's dependency graph.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/coordinate/internal/session"
)

// SessionExport is the top-level JSON export structure.
type SessionExport struct {
	SessionID  string           `json:"sessionId"`
	TaskID     string           `json:"taskId"`
	TaskType   string           `json:"taskType"`
	Status     string           `json:"status"`
	Success    bool             `json:"success"`
	ExportedAt string           `json:"exportedAt"`
	StartedAt  string           `json:"startedAt"`
	Agents     []string         `json:"agents"`
	Subtasks   []SubtaskExport  `json:"subtasks"`
	Metrics    *MetricsExport   `json:"metrics,omitempty"`
	Conflicts  []ConflictExport `json:"conflicts,omitempty"`
}

// SubtaskExport describes one subtask and what became of it.
type SubtaskExport struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	Agent        string   `json:"agent,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Completed    bool     `json:"completed"`
	ResultType   string   `json:"resultType,omitempty"`
	Confidence   float64  `json:"confidence,omitempty"`
	Output       any      `json:"output,omitempty"`
}

// MetricsExport is the flattened metrics of a result. Durations are in
// milliseconds.
type MetricsExport struct {
	ExecutionMillis          int64              `json:"executionMillis"`
	Efficiency               float64            `json:"efficiency"`
	CommunicationMillis      int64              `json:"communicationOverheadMillis"`
	ConflictResolutionMillis int64              `json:"conflictResolutionMillis"`
	ResourceUtilization      float64            `json:"resourceUtilization"`
	AgentUtilization         map[string]float64 `json:"agentUtilization"`
	ConflictsResolved        int                `json:"conflictsResolved"`
	AggregatedConfidence     float64            `json:"aggregatedConfidence"`
}

// ConflictExport pairs a conflict with its resolution, when there is one.
type ConflictExport struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Resolution  string `json:"resolution,omitempty"`
}

// ExportSession builds a SessionExport from a snapshot and, when the session
// was driven, its result.
func ExportSession(snap session.Snapshot, res *session.Result) *SessionExport {
	out := &SessionExport{
		SessionID:  snap.ID,
		Status:     string(snap.Status),
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		StartedAt:  snap.StartedAt.UTC().Format(time.RFC3339),
		Agents:     append([]string{}, snap.Agents...),
	}
	if snap.Task != nil {
		out.TaskID = snap.Task.ID
		out.TaskType = string(snap.Task.Type)
		for _, st := range snap.Task.Subtasks {
			se := SubtaskExport{
				ID:           st.ID,
				Description:  st.Description,
				Agent:        snap.Assignment[st.ID],
				Dependencies: st.Dependencies,
			}
			if o, ok := snap.Results[st.ID]; ok {
				se.Completed = true
				se.ResultType = o.ResultType
				se.Confidence = o.Confidence
				se.Output = o.Payload.Any()
			}
			out.Subtasks = append(out.Subtasks, se)
		}
	}

	resolved := make(map[string]string, len(snap.Resolutions))
	for _, r := range snap.Resolutions {
		resolved[r.ConflictID] = string(r.Kind)
	}
	for _, c := range snap.Conflicts {
		out.Conflicts = append(out.Conflicts, ConflictExport{
			ID:          c.ID,
			Type:        string(c.Type),
			Severity:    string(c.Severity),
			Description: c.Description,
			Resolution:  resolved[c.ID],
		})
	}

	if res != nil {
		out.Success = res.Success
		m := &MetricsExport{
			ExecutionMillis:          res.ExecutionTime.Milliseconds(),
			Efficiency:               res.Metrics.Efficiency,
			CommunicationMillis:      res.Metrics.CommunicationOverhead.Milliseconds(),
			ConflictResolutionMillis: res.Metrics.ConflictResolutionTime.Milliseconds(),
			ResourceUtilization:      res.Metrics.ResourceUtilization,
			AgentUtilization:         res.Metrics.AgentUtilization,
			ConflictsResolved:        res.ConflictsResolved,
		}
		if res.Output != nil {
			m.AggregatedConfidence = res.Output.Confidence
		}
		out.Metrics = m
	}
	return out
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	return nil
}
