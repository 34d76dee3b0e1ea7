package mcptools

// --- MCP Tool Types ---
// These structs define the JSON schema for each MCP tool's input and output.
// The MCP Go SDK generates the schemas from struct tags, so payloads are
// flattened to plain JSON types here.

// ListAgentsInput is the input for the list_agents MCP tool.
type ListAgentsInput struct{}

// AgentSummary describes one registered agent.
type AgentSummary struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities"`
}

// ListAgentsOutput is the result of the list_agents MCP tool.
type ListAgentsOutput struct {
	Agents []AgentSummary `json:"agents"`
}

// SubtaskInput describes one subtask of a submitted task.
type SubtaskInput struct {
	ID               string   `json:"id" jsonschema:"subtask id, unique within the task"`
	Description      string   `json:"description" jsonschema:"what the subtask asks of its agent"`
	AssignedAgent    string   `json:"assignedAgent,omitempty" jsonschema:"agent id to pin the subtask to"`
	Dependencies     []string `json:"dependencies,omitempty" jsonschema:"ids of subtasks that must finish first"`
	EstimatedSeconds float64  `json:"estimatedSeconds,omitempty" jsonschema:"estimated duration in seconds"`
	Priority         int      `json:"priority,omitempty" jsonschema:"higher runs first when resolving contention"`
}

// SubmitTaskInput is the input for the submit_task MCP tool.
type SubmitTaskInput struct {
	ID                   string         `json:"id" jsonschema:"task id"`
	Type                 string         `json:"type,omitempty" jsonschema:"parallel, sequential, hierarchical, collaborative, competitive, distributed or swarm (default: parallel)"`
	Description          string         `json:"description,omitempty" jsonschema:"task description"`
	RequiredCapabilities []string       `json:"requiredCapabilities,omitempty" jsonschema:"capabilities every participating agent must declare"`
	Subtasks             []SubtaskInput `json:"subtasks" jsonschema:"ordered subtasks"`
	Priority             int            `json:"priority,omitempty" jsonschema:"task priority"`
	MaxAgents            int            `json:"maxAgents,omitempty" jsonschema:"cap on participating agents (0: no cap)"`
	Run                  bool           `json:"run,omitempty" jsonschema:"drive the session to completion before returning"`
}

// SubmitTaskOutput is the result of the submit_task MCP tool.
type SubmitTaskOutput struct {
	SessionID string         `json:"sessionId"`
	Status    string         `json:"status"`
	Agents    []string       `json:"agents"`
	Result    *ResultSummary `json:"result,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// ResultSummary is the JSON-friendly form of a coordination result.
type ResultSummary struct {
	Success             bool                      `json:"success"`
	Outputs             map[string]map[string]any `json:"outputs"`
	Confidence          float64                   `json:"confidence"`
	ExecutionMillis     int64                     `json:"executionMillis"`
	ConflictsResolved   int                       `json:"conflictsResolved"`
	Efficiency          float64                   `json:"efficiency"`
	ResourceUtilization float64                   `json:"resourceUtilization"`
	AgentUtilization    map[string]float64        `json:"agentUtilization"`
}

// SessionInput identifies a session.
type SessionInput struct {
	SessionID string `json:"sessionId" jsonschema:"session id returned by submit_task"`
}

// GetSessionOutput is the result of the get_session MCP tool.
type GetSessionOutput struct {
	SessionID   string            `json:"sessionId"`
	TaskID      string            `json:"taskId"`
	Status      string            `json:"status"`
	Progress    float64           `json:"progress"`
	Agents      []string          `json:"agents"`
	Assignment  map[string]string `json:"assignment"`
	Completed   []string          `json:"completed"`
	Conflicts   int               `json:"conflicts"`
	Resolutions int               `json:"resolutions"`
	Result      *ResultSummary    `json:"result,omitempty"`
}

// ResolveConflictsOutput is the result of the resolve_conflicts MCP tool.
type ResolveConflictsOutput struct {
	ConflictID    string            `json:"conflictId,omitempty"`
	Kind          string            `json:"kind"`
	Description   string            `json:"description"`
	Reassignments map[string]string `json:"reassignments,omitempty"`
}

// OptimizeSessionOutput is the result of the optimize_session MCP tool.
type OptimizeSessionOutput struct {
	Assignment map[string]string `json:"assignment"`
	Moved      map[string]string `json:"moved"`
}

// CleanupSessionOutput is the result of the cleanup_session MCP tool.
type CleanupSessionOutput struct {
	SessionID string `json:"sessionId"`
	Removed   bool   `json:"removed"`
}
