// Package coordinator drives multi-agent sessions: it selects eligible agents
// for a task, plans the subtask assignment, runs the task's strategy, and
// aggregates the agents' outputs into one result with metrics.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dusk-indust/coordinate/internal/agent"
	"github.com/dusk-indust/coordinate/internal/conflict"
	"github.com/dusk-indust/coordinate/internal/logging"
	"github.com/dusk-indust/coordinate/internal/network"
	"github.com/dusk-indust/coordinate/internal/resource"
	"github.com/dusk-indust/coordinate/internal/session"
	"github.com/dusk-indust/coordinate/internal/store"
	"github.com/dusk-indust/coordinate/internal/strategy"
	"github.com/dusk-indust/coordinate/internal/task"
	"github.com/google/uuid"
)

// entry is one row of the active-session table.
type entry struct {
	session *session.Session
	drive   sync.Mutex // held for the duration of Coordinate

	mu     sync.Mutex
	result *session.Result
}

func (e *entry) lastResult() *session.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// Coordinator owns the active sessions and the shared agent registry,
// network and resource manager.
type Coordinator struct {
	opts   Options
	logger logging.Logger

	registry   *agent.Registry
	network    *network.Network
	resources  *resource.Manager
	resolver   *conflict.Resolver
	strategies *strategy.Set
	events     *EventBus

	mu       sync.RWMutex
	sessions map[string]*entry
}

// New creates a Coordinator with DefaultOptions modified by opts.
func New(opts ...Option) *Coordinator {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = logging.NoOp{}
	}
	if o.ResourceUtilization == nil {
		o.ResourceUtilization = DefaultOptions().ResourceUtilization
	}

	return &Coordinator{
		opts:       o,
		logger:     logging.Component(o.Logger, "coordinator"),
		registry:   agent.NewRegistry(),
		network:    network.New(o.InboxSize, o.Logger),
		resources:  resource.NewManager(o.DefaultAgentCapacity, o.Logger),
		resolver:   conflict.NewResolver(o.RebalanceThreshold, o.Logger),
		strategies: strategy.NewSet(o.Strategy),
		events:     NewEventBus(),
		sessions:   make(map[string]*entry),
	}
}

// Network returns the communication network shared by registered agents.
func (c *Coordinator) Network() *network.Network { return c.network }

// Resolver returns the conflict resolver.
func (c *Coordinator) Resolver() *conflict.Resolver { return c.resolver }

// Strategies returns the strategy set used to run tasks.
func (c *Coordinator) Strategies() *strategy.Set { return c.strategies }

// RegisterAgent adds a to the registry, network and resource manager.
// Registering an id again replaces the agent and keeps its resource account.
func (c *Coordinator) RegisterAgent(a agent.Agent) {
	isNew := c.registry.Register(a)
	c.network.Register(a)
	c.resources.Register(a.ID())
	c.logger.Info("agent registered", "agent", a.ID(), "capabilities", a.Capabilities(), "new", isNew)
}

// RegisterAgentWithCapacity is RegisterAgent with a resource capacity for
// this agent instead of the default.
func (c *Coordinator) RegisterAgentWithCapacity(a agent.Agent, capacity int) {
	c.RegisterAgent(a)
	c.resources.RegisterWithCapacity(a.ID(), capacity)
}

// Utilization reports each agent's allocated share of its capacity.
func (c *Coordinator) Utilization() map[string]float64 {
	return c.resources.Utilization()
}

// UnregisterAgent removes id from the registry, network and resource
// manager. Every non-terminal session that includes the agent fails and
// emits one session.changed event. In-flight dispatches are left running.
// It reports whether the agent was registered.
func (c *Coordinator) UnregisterAgent(id string) bool {
	existed := c.registry.Unregister(id)
	c.network.Unregister(id)
	c.resources.Unregister(id)

	for _, e := range c.activeEntries() {
		s := e.session
		if !s.HasAgent(id) || !s.Fail() {
			continue
		}
		c.logger.Warn("session failed: participant unregistered", "session", s.ID(), "agent", id)
		c.publishChange(s)
	}
	if existed {
		c.logger.Info("agent unregistered", "agent", id)
	}
	return existed
}

// AgentInfo describes a registered agent.
type AgentInfo struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities"`
}

// Agents lists registered agents in ascending id order.
func (c *Coordinator) Agents() []AgentInfo {
	caps := c.registry.Capabilities()
	out := make([]AgentInfo, 0, len(caps))
	for _, id := range c.registry.IDs() {
		out = append(out, AgentInfo{ID: id, Capabilities: caps[id]})
	}
	return out
}

// CreateSession validates t and creates an initialized session whose
// participants are the registered agents declaring every required
// capability, in ascending id order, truncated to the task's resource limit.
// The session is created even when no agent qualifies.
func (c *Coordinator) CreateSession(t *task.Task) (session.Snapshot, error) {
	if err := t.Validate(); err != nil {
		return session.Snapshot{}, fmt.Errorf("coordinator: create session: %w", err)
	}

	agents := c.registry.Eligible(t.RequiredCapabilities)
	if limit := t.ResourceLimit(); limit > 0 && len(agents) > limit {
		agents = agents[:limit]
	}

	s := session.New(uuid.NewString(), t.Clone(), agents)
	c.mu.Lock()
	c.sessions[s.ID()] = &entry{session: s}
	c.mu.Unlock()

	c.logger.Info("session created", "session", s.ID(), "task", t.ID, "type", t.Type, "agents", agents)
	return s.Snapshot(), nil
}

// Session returns a snapshot of an active session.
func (c *Coordinator) Session(id string) (session.Snapshot, error) {
	e, err := c.entry(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return e.session.Snapshot(), nil
}

// Result returns the result of the last Coordinate call on a session, if
// any.
func (c *Coordinator) Result(id string) (*session.Result, error) {
	e, err := c.entry(id)
	if err != nil {
		return nil, err
	}
	return e.lastResult(), nil
}

// Sessions returns snapshots of every active session in ascending id order.
func (c *Coordinator) Sessions() []session.Snapshot {
	entries := c.activeEntries()
	out := make([]session.Snapshot, len(entries))
	for i, e := range entries {
		out[i] = e.session.Snapshot()
	}
	return out
}

// Cleanup removes a terminal session from the active table and, when an
// archive is configured, stores it there.
func (c *Coordinator) Cleanup(ctx context.Context, id string) error {
	e, err := c.entry(id)
	if err != nil {
		return err
	}
	snap := e.session.Snapshot()
	if !snap.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrSessionActive, id, snap.Status)
	}

	if c.opts.Archive != nil {
		rec := store.Record{Session: snap, Result: e.lastResult(), ArchivedAt: time.Now()}
		if err := c.opts.Archive.Save(ctx, rec); err != nil {
			return fmt.Errorf("coordinator: archive %s: %w", id, err)
		}
	}

	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()
	c.logger.Info("session cleaned up", "session", id, "archived", c.opts.Archive != nil)
	return nil
}

// Subscribe attaches to the event stream. Call the returned function to
// detach.
func (c *Coordinator) Subscribe(buffer int) (<-chan Event, func()) {
	return c.events.Subscribe(buffer)
}

// Close ends every event subscription.
func (c *Coordinator) Close() {
	c.events.Close()
}

func (c *Coordinator) entry(id string) (*entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e, nil
}

// activeEntries returns the session table in ascending id order.
func (c *Coordinator) activeEntries() []*entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*entry, len(ids))
	for i, id := range ids {
		out[i] = c.sessions[id]
	}
	return out
}

// transition changes a session's status and publishes the change.
func (c *Coordinator) transition(s *session.Session, to session.Status) error {
	if err := s.Transition(to); err != nil {
		return err
	}
	c.logger.Debug("session status changed", "session", s.ID(), "status", to)
	c.publishChange(s)
	return nil
}

// fail moves s to failed, publishing only if the status changed.
func (c *Coordinator) fail(s *session.Session) {
	if s.Fail() {
		c.publishChange(s)
	}
}

func (c *Coordinator) publishChange(s *session.Session) {
	snap := s.Snapshot()
	c.events.Publish(Event{
		Type:      EventSessionChanged,
		SessionID: snap.ID,
		Status:    snap.Status,
		Progress:  snap.Progress,
	})
}
