package events

import (
	"sync"

	"github.com/ahmedshikashaker/automaker/pkg/logx"
)

// DropCounter receives a count every time a subscriber's buffer is full
// and an event is dropped for it. Wired to the metrics recorder.
type DropCounter interface {
	EventDropped()
}

// Bus fans events out to subscribers over buffered channels. Emit never
// blocks: a subscriber whose buffer is full loses the event (counted and
// logged at Warn). Losing events for a slow observer is acceptable; the
// orchestration core must never stall on observation.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
	drops  DropCounter
	logger *logx.Logger
}

// NewBus creates an event bus. drops may be nil.
func NewBus(drops DropCounter) *Bus {
	return &Bus{
		subs:   make(map[int]chan Event),
		drops:  drops,
		logger: logx.NewLogger("events"),
	}
}

// Emit delivers the event to every subscriber without blocking.
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			if b.drops != nil {
				b.drops.EventDropped()
			}
			b.logger.Warn("subscriber %d buffer full, dropping %s event for feature %s", id, e.Type, e.FeatureID)
		}
	}
}

// Subscribe registers a new subscriber with the given buffer size and
// returns its channel plus an unsubscribe func. Unsubscribing closes the
// channel; calling the unsubscribe func twice is safe.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
	return ch, unsubscribe
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the bus down, closing every subscriber channel. Emit after
// Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
