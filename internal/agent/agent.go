package agent

import (
	"context"
	"time"

	"github.com/dusk-indust/coordinate/internal/value"
)

// Agent is the contract the coordinator consumes from an execution unit.
// Implementations must be safe for concurrent Process calls.
type Agent interface {
	// ID returns the agent's unique identifier.
	ID() string

	// Capabilities returns the capability names the agent declares. Order is
	// irrelevant.
	Capabilities() []string

	// Process handles one input and returns its output. It may fail.
	Process(ctx context.Context, in Input) (Output, error)
}

// Communicator is implemented by agents that accept peer messages.
type Communicator interface {
	Communicate(ctx context.Context, peer string, msg Message) (Message, error)
}

// Execution context descriptors carried on Input.Context.
const (
	ContextDistributed = "distributed"
	ContextLocal       = "local"
)

// Input types.
const (
	InputTask    = "task"
	InputMessage = "message"
)

// Input is a unit of work handed to an agent.
type Input struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Payload value.Map `json:"payload,omitempty"`
	Context string    `json:"context,omitempty"`
}

// Output is what an agent produced for an Input.
type Output struct {
	InputID    string    `json:"inputId"`
	ResultType string    `json:"resultType"`
	Payload    value.Map `json:"payload,omitempty"`
	Confidence float64   `json:"confidence"`
	Reasoning  []string  `json:"reasoning,omitempty"`
}

// Message kinds exchanged over the communication network.
const (
	MessageDirect       = "direct"
	MessageBroadcast    = "broadcast"
	MessageCoordination = "coordination"
)

// Message is a point-to-point or broadcast message between agents.
type Message struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	To      string    `json:"to,omitempty"`
	Kind    string    `json:"kind"`
	Payload value.Map `json:"payload,omitempty"`
	SentAt  time.Time `json:"sentAt"`
}

// HasCapabilities reports whether a declares every capability in required.
func HasCapabilities(a Agent, required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(a.Capabilities()))
	for _, c := range a.Capabilities() {
		have[c] = struct{}{}
	}
	for _, r := range required {
		if _, ok := have[r]; !ok {
			return false
		}
	}
	return true
}
