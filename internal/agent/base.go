package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/dusk-indust/coordinate/internal/value"
)

// Compile-time interface checks.
var (
	_ Agent        = (*FuncAgent)(nil)
	_ Communicator = (*FuncAgent)(nil)
)

// ProcessFunc handles a single input on behalf of a FuncAgent.
type ProcessFunc func(ctx context.Context, in Input) (Output, error)

// CommunicateFunc handles a peer message on behalf of a FuncAgent.
type CommunicateFunc func(ctx context.Context, peer string, msg Message) (Message, error)

// FuncAgent adapts plain functions to the Agent contract. It is the building
// block for in-process agents and test doubles.
type FuncAgent struct {
	id          string
	caps        []string
	process     ProcessFunc
	communicate CommunicateFunc
}

// NewFuncAgent creates a FuncAgent with the given id, capabilities and
// process function.
func NewFuncAgent(id string, caps []string, process ProcessFunc) *FuncAgent {
	sorted := append([]string(nil), caps...)
	sort.Strings(sorted)
	return &FuncAgent{
		id:      id,
		caps:    sorted,
		process: process,
	}
}

// WithCommunicate sets the peer message handler and returns the agent.
func (f *FuncAgent) WithCommunicate(fn CommunicateFunc) *FuncAgent {
	f.communicate = fn
	return f
}

// ID returns the agent id.
func (f *FuncAgent) ID() string { return f.id }

// Capabilities returns the declared capabilities.
func (f *FuncAgent) Capabilities() []string { return f.caps }

// Process delegates to the configured ProcessFunc.
func (f *FuncAgent) Process(ctx context.Context, in Input) (Output, error) {
	if f.process == nil {
		return Output{}, fmt.Errorf("agent %q: no process function", f.id)
	}
	return f.process(ctx, in)
}

// Communicate delegates to the configured CommunicateFunc. Without one the
// message is acknowledged with an empty reply.
func (f *FuncAgent) Communicate(ctx context.Context, peer string, msg Message) (Message, error) {
	if f.communicate == nil {
		return Message{From: f.id, To: peer, Kind: msg.Kind}, nil
	}
	return f.communicate(ctx, peer, msg)
}

// NewEchoAgent returns an agent that echoes the input description back as
// its output with confidence 1.0.
func NewEchoAgent(id string, caps ...string) *FuncAgent {
	return NewFuncAgent(id, caps, func(_ context.Context, in Input) (Output, error) {
		desc := in.Payload["description"]
		text, _ := desc.AsString()
		return Output{
			InputID:    in.ID,
			ResultType: "echo",
			Payload:    value.Map{"echo": desc},
			Confidence: 1.0,
			Reasoning:  []string{fmt.Sprintf("%s echoed %q", id, text)},
		}, nil
	})
}
