package wire

import (
	"context"
	"fmt"
	"strings"

	"github.com/dusk-indust/coordinate/internal/agent"
)

// Compile-time interface checks.
var (
	_ agent.Agent        = (*RemoteAgent)(nil)
	_ agent.Communicator = (*RemoteAgent)(nil)
)

// RemoteAgent is an agent.Agent whose Process and Communicate calls are
// forwarded to a hosted agent.
type RemoteAgent struct {
	client   *Client
	endpoint string
	card     AgentCard
}

// Dial discovers the agent hosted at baseURL and returns an adapter for it.
func Dial(ctx context.Context, client *Client, baseURL string) (*RemoteAgent, error) {
	if client == nil {
		client = NewClient()
	}
	card, err := client.Discover(ctx, baseURL)
	if err != nil {
		return nil, err
	}
	return &RemoteAgent{
		client:   client,
		endpoint: strings.TrimRight(baseURL, "/") + "/",
		card:     *card,
	}, nil
}

// ID returns the id from the agent card.
func (r *RemoteAgent) ID() string { return r.card.ID }

// Capabilities returns the capabilities from the agent card.
func (r *RemoteAgent) Capabilities() []string { return r.card.Capabilities }

// Card returns the discovered agent card.
func (r *RemoteAgent) Card() AgentCard { return r.card }

// Endpoint returns the JSON-RPC endpoint the agent is called on.
func (r *RemoteAgent) Endpoint() string { return r.endpoint }

// Process forwards in to the hosted agent.
func (r *RemoteAgent) Process(ctx context.Context, in agent.Input) (agent.Output, error) {
	out, err := r.client.Process(ctx, r.endpoint, in)
	if err != nil {
		return agent.Output{}, fmt.Errorf("remote agent %s: %w", r.card.ID, err)
	}
	return out, nil
}

// Communicate forwards a peer message to the hosted agent.
func (r *RemoteAgent) Communicate(ctx context.Context, peer string, msg agent.Message) (agent.Message, error) {
	reply, err := r.client.Communicate(ctx, r.endpoint, peer, msg)
	if err != nil {
		return agent.Message{}, fmt.Errorf("remote agent %s: %w", r.card.ID, err)
	}
	return reply, nil
}
