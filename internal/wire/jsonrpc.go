// Package wire carries agents across process boundaries. A remote process
// serves an agent.Agent over JSON-RPC 2.0 on HTTP, and RemoteAgent turns such
// an endpoint back into a regular agent.Agent. Coordinator events are
// streamed to observers as Server-Sent Events.
package wire

import "encoding/json"

// JSONRPCVersion is the JSON-RPC protocol version.
const JSONRPCVersion = "2.0"

// JSONRPCRequest is a JSON-RPC 2.0 request envelope.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response envelope.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError is a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Standard JSON-RPC error codes.
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603

	// ErrCodeAgentFailed reports that the hosted agent returned an error.
	ErrCodeAgentFailed = -32001
	// ErrCodeNotCommunicator reports that the hosted agent takes no peer
	// messages.
	ErrCodeNotCommunicator = -32002
)

// Method names.
const (
	MethodCard        = "agent/card"
	MethodProcess     = "agent/process"
	MethodCommunicate = "agent/communicate"
)

// CardPath is the well-known path an agent card is served on.
const CardPath = "/.well-known/agent-card.json"
