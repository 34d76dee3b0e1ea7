package agent

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned when an agent id is not registered.
var ErrNotFound = errors.New("agent: not found")

// Registry is the capability directory of registered agents. It is safe for
// concurrent use; readers never block each other.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]Agent),
	}
}

// Register adds a or replaces the agent registered under the same id.
// It reports whether the id was new.
func (r *Registry) Register(a Agent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.agents[a.ID()]
	r.agents[a.ID()] = a
	return !existed
}

// Unregister removes the agent with the given id and reports whether it was
// present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[id]; !ok {
		return false
	}
	delete(r.agents, id)
	return true
}

// Get returns the agent registered under id.
func (r *Registry) Get(id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// IDs returns all registered ids in ascending order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Eligible returns the ids of agents whose capabilities are a superset of
// required, in ascending id order.
func (r *Registry) Eligible(required []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, a := range r.agents {
		if HasCapabilities(a, required) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Capabilities returns a copy of the capability set declared by each agent,
// keyed by agent id.
func (r *Registry) Capabilities() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.agents))
	for id, a := range r.agents {
		caps := append([]string(nil), a.Capabilities()...)
		sort.Strings(caps)
		out[id] = caps
	}
	return out
}
