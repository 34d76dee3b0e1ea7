// Package network routes messages between registered agents. Agents that
// implement agent.Communicator receive messages synchronously and may reply;
// all other agents receive them in a bounded inbox.
package network

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dusk-indust/coordinate/internal/agent"
	"github.com/dusk-indust/coordinate/internal/logging"
	"github.com/google/uuid"
)

var (
	// ErrUnknownAgent is returned when the sender or recipient is not
	// registered.
	ErrUnknownAgent = errors.New("network: unknown agent")

	// ErrInboxFull is returned when a recipient's inbox has no room.
	ErrInboxFull = errors.New("network: inbox full")
)

// DefaultInboxSize is used when New is given a non-positive size.
const DefaultInboxSize = 64

type endpoint struct {
	agent agent.Agent
	inbox chan agent.Message
}

// Network is a registry of reachable agents.
type Network struct {
	mu        sync.RWMutex
	endpoints map[string]*endpoint
	inboxSize int
	logger    logging.Logger
}

// New creates an empty Network.
func New(inboxSize int, logger logging.Logger) *Network {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	return &Network{
		endpoints: make(map[string]*endpoint),
		inboxSize: inboxSize,
		logger:    logging.Component(logger, "network"),
	}
}

// Register makes a reachable. Re-registering an id replaces the agent and
// keeps its inbox.
func (n *Network) Register(a agent.Agent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ep, ok := n.endpoints[a.ID()]; ok {
		ep.agent = a
		return
	}
	n.endpoints[a.ID()] = &endpoint{agent: a, inbox: make(chan agent.Message, n.inboxSize)}
}

// Unregister removes id and closes its inbox.
func (n *Network) Unregister(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ep, ok := n.endpoints[id]; ok {
		close(ep.inbox)
		delete(n.endpoints, id)
	}
}

// Peers returns the registered ids in ascending order.
func (n *Network) Peers() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]string, 0, len(n.endpoints))
	for id := range n.endpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Inbox returns the receive side of id's inbox. The channel is closed when
// the agent is unregistered.
func (n *Network) Inbox(id string) (<-chan agent.Message, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ep, ok := n.endpoints[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	return ep.inbox, nil
}

// Send delivers msg from msg.From to msg.To. Missing ids and timestamps are
// filled in. The reply is the zero Message when the recipient has no
// Communicator.
func (n *Network) Send(ctx context.Context, msg agent.Message) (agent.Message, error) {
	if msg.Kind == "" {
		msg.Kind = agent.MessageDirect
	}
	stamp(&msg)

	n.mu.RLock()
	_, fromOK := n.endpoints[msg.From]
	ep, toOK := n.endpoints[msg.To]
	n.mu.RUnlock()

	if !fromOK {
		return agent.Message{}, fmt.Errorf("%w: sender %s", ErrUnknownAgent, msg.From)
	}
	if !toOK {
		return agent.Message{}, fmt.Errorf("%w: recipient %s", ErrUnknownAgent, msg.To)
	}
	return n.deliver(ctx, ep, msg)
}

// Broadcast sends msg from msg.From to every other registered agent in
// ascending id order. Delivery continues past individual failures; the
// failures are joined into the returned error.
func (n *Network) Broadcast(ctx context.Context, msg agent.Message) error {
	return n.Multicast(ctx, msg, nil)
}

// Multicast is Broadcast restricted to the ids in to. A nil to means every
// registered agent.
func (n *Network) Multicast(ctx context.Context, msg agent.Message, to []string) error {
	if msg.Kind == "" {
		msg.Kind = agent.MessageBroadcast
	}
	if to == nil {
		to = n.Peers()
	}

	var errs []error
	for _, id := range to {
		if id == msg.From {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		m := msg
		m.To = id
		m.ID = ""
		if _, err := n.Send(ctx, m); err != nil {
			n.logger.Warn("delivery failed", "from", msg.From, "to", id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Network) deliver(ctx context.Context, ep *endpoint, msg agent.Message) (agent.Message, error) {
	if c, ok := ep.agent.(agent.Communicator); ok {
		reply, err := c.Communicate(ctx, msg.From, msg)
		if err != nil {
			return agent.Message{}, fmt.Errorf("network: deliver %s to %s: %w", msg.ID, msg.To, err)
		}
		return reply, nil
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.endpoints[msg.To] != ep {
		return agent.Message{}, fmt.Errorf("%w: recipient %s", ErrUnknownAgent, msg.To)
	}
	select {
	case ep.inbox <- msg:
		return agent.Message{}, nil
	default:
		return agent.Message{}, fmt.Errorf("%w: %s", ErrInboxFull, msg.To)
	}
}

func stamp(msg *agent.Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
}
