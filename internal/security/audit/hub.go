package audit

import (
	"encoding/json"
	"sync"
)

var jsonMarshal = json.Marshal

// Hub fans audit events out to live subscribers, partitioned by tenant. A
// subscriber only ever receives events of the tenant it subscribed with.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int64]map[chan Event]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{subs: make(map[int64]map[chan Event]struct{}), buffer: buffer}
}

// Subscribe registers a listener for tenantID. The returned cancel func
// unregisters it and closes the channel.
func (h *Hub) Subscribe(tenantID int64) (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	if h.subs[tenantID] == nil {
		h.subs[tenantID] = make(map[chan Event]struct{})
	}
	h.subs[tenantID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[tenantID], ch)
			if len(h.subs[tenantID]) == 0 {
				delete(h.subs, tenantID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to the tenant's subscribers. Slow subscribers miss
// events rather than block the request path.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[e.TenantID] {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of live listeners for tenantID.
func (h *Hub) Subscribers(tenantID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tenantID])
}
