package coordinator

import (
	"sync"
	"time"

	"github.com/dusk-indust/coordinate/internal/session"
)

// EventType names a coordinator stream.
type EventType string

const (
	// EventSessionChanged fires on every status or progress change.
	EventSessionChanged EventType = "session.changed"

	// EventResultProduced fires once per Coordinate call that returns a
	// Result.
	EventResultProduced EventType = "result.produced"
)

// Event is one entry on the coordinator's event stream.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"sessionId"`
	Status    session.Status  `json:"status"`
	Progress  float64         `json:"progress"`
	Result    *session.Result `json:"result,omitempty"`
	Time      time.Time       `json:"time"`
}

// defaultEventBuffer is the per-subscriber channel size.
const defaultEventBuffer = 64

// EventBus fans events out to subscribers through buffered channels.
// Publishing never blocks: a subscriber whose buffer is full misses the event.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewEventBus creates an EventBus with no subscribers.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of subsequent events and a function that
// detaches it. buffer <= 0 selects the default size. Subscribing to a closed
// bus yields a closed channel.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers ev to every subscriber with room in its buffer.
func (b *EventBus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes every subscriber channel. Later publishes are dropped.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
