// Package resource tracks coarse per-agent capacity. A unit is one assigned
// subtask; a capacity of zero means the agent is unbounded.
package resource

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dusk-indust/coordinate/internal/logging"
)

var (
	// ErrUnknownAgent is returned for an agent that was never registered.
	ErrUnknownAgent = errors.New("resource: unknown agent")

	// ErrInsufficientCapacity is returned when an allocation would exceed an
	// agent's capacity.
	ErrInsufficientCapacity = errors.New("resource: insufficient capacity")
)

type account struct {
	capacity  int
	allocated int
}

// Manager holds capacity accounts keyed by agent id.
type Manager struct {
	mu              sync.RWMutex
	accounts        map[string]*account
	defaultCapacity int
	logger          logging.Logger
}

// NewManager creates a Manager. Agents registered without an explicit
// capacity get defaultCapacity.
func NewManager(defaultCapacity int, logger logging.Logger) *Manager {
	return &Manager{
		accounts:        make(map[string]*account),
		defaultCapacity: max(defaultCapacity, 0),
		logger:          logging.Component(logger, "resource"),
	}
}

// Register opens an account for id with the default capacity. An existing
// account is left untouched.
func (m *Manager) Register(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; ok {
		return
	}
	m.accounts[id] = &account{capacity: m.defaultCapacity}
}

// RegisterWithCapacity opens or resizes the account for id.
func (m *Manager) RegisterWithCapacity(id string, capacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.accounts[id]; ok {
		acc.capacity = max(capacity, 0)
		return
	}
	m.accounts[id] = &account{capacity: max(capacity, 0)}
}

// Unregister closes the account for id. Outstanding allocations are
// discarded.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
}

// Allocate reserves units for every agent in demand, or for none of them.
func (m *Manager) Allocate(demand map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range sortedKeys(demand) {
		acc, ok := m.accounts[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
		}
		if acc.capacity > 0 && acc.allocated+demand[id] > acc.capacity {
			return fmt.Errorf("%w: agent %s needs %d, has %d free",
				ErrInsufficientCapacity, id, demand[id], acc.capacity-acc.allocated)
		}
	}
	for id, units := range demand {
		m.accounts[id].allocated += units
	}
	m.logger.Debug("allocated", "demand", demand)
	return nil
}

// Release returns units previously allocated. Unknown agents are skipped and
// allocations never drop below zero.
func (m *Manager) Release(demand map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, units := range demand {
		if acc, ok := m.accounts[id]; ok {
			acc.allocated = max(acc.allocated-units, 0)
		}
	}
}

// CanAdmit reports whether demand would fit without allocating it.
func (m *Manager) CanAdmit(demand map[string]int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, units := range demand {
		acc, ok := m.accounts[id]
		if !ok {
			return false
		}
		if acc.capacity > 0 && acc.allocated+units > acc.capacity {
			return false
		}
	}
	return true
}

// Capacity returns the capacity of id and whether it is registered.
func (m *Manager) Capacity(id string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[id]
	if !ok {
		return 0, false
	}
	return acc.capacity, true
}

// Utilization returns allocated/capacity per agent. Unbounded agents report
// zero.
func (m *Manager) Utilization() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.accounts))
	for id, acc := range m.accounts {
		if acc.capacity == 0 {
			out[id] = 0
			continue
		}
		out[id] = float64(acc.allocated) / float64(acc.capacity)
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
