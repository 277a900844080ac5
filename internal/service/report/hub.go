package report

import "sync"

const defaultHubBuffer = 8

// Hub fans alerts out to live listeners such as SSE streams. Slow listeners
// miss alerts rather than block the publisher.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Alert
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Alert)}
}

// Subscribe registers a listener. Call the returned func to detach; it closes
// the channel and is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Alert, func()) {
	ch := make(chan Alert, defaultHubBuffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers a to every listener with room in its buffer and returns how
// many received it.
func (h *Hub) Publish(a Alert) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, ch := range h.subs {
		select {
		case ch <- a:
			delivered++
		default:
		}
	}
	return delivered
}

// Listeners reports how many listeners are attached.
func (h *Hub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
