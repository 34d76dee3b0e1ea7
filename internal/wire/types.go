package wire

import (
	"encoding/json"

	"github.com/dusk-indust/coordinate/internal/agent"
)

// AgentCard describes a hosted agent. It is what discovery returns.
type AgentCard struct {
	ID           string   `json:"id"`
	Description  string   `json:"description,omitempty"`
	Capabilities []string `json:"capabilities"`
	Communicates bool     `json:"communicates"`
	Version      string   `json:"version,omitempty"`
}

// CardOf builds the card of a local agent.
func CardOf(a agent.Agent) AgentCard {
	_, communicates := a.(agent.Communicator)
	return AgentCard{
		ID:           a.ID(),
		Capabilities: append([]string(nil), a.Capabilities()...),
		Communicates: communicates,
	}
}

// ProcessParams are the params of agent/process.
type ProcessParams struct {
	Input agent.Input `json:"input"`
}

// CommunicateParams are the params of agent/communicate.
type CommunicateParams struct {
	Peer    string        `json:"peer"`
	Message agent.Message `json:"message"`
}

// StreamEvent is one event of an SSE stream. Data holds the event body as
// produced by the publisher.
type StreamEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`

	// Err is set if the stream encountered an error.
	Err error `json:"-"`
}
