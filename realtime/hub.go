// Package realtime broadcasts progression events to streaming consumers.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"cyberlevels/core"
	"cyberlevels/engine"
)

// Hub is a simple pub/sub for broadcasting events to channels.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]chan core.Event
	next int
}

func NewHub() *Hub { return &Hub{subs: map[int]chan core.Event{}} }

func (h *Hub) Subscribe(buffer int) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan core.Event, buffer)
	h.subs[id] = ch
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	h.mu.RLock()
	// copy to avoid holding lock during send
	receivers := make([]chan core.Event, 0, len(h.subs))
	for _, ch := range h.subs {
		receivers = append(receivers, ch)
	}
	h.mu.RUnlock()
	for _, ch := range receivers {
		select {
		case ch <- ev:
		default: /* drop if full */
		}
	}
}

// AttachBus forwards the given progression event types from the bus to this
// hub. Returns a detach func that removes every subscription.
func (h *Hub) AttachBus(bus *engine.EventBus, types ...core.EventType) func() {
	if len(types) == 0 {
		types = []core.EventType{
			core.EventExpGained,
			core.EventExpLost,
			core.EventLevelUp,
			core.EventLevelDown,
			core.EventRewardIssued,
		}
	}
	offs := make([]func(), 0, len(types))
	for _, typ := range types {
		offs = append(offs, bus.Subscribe(typ, h.Broadcast))
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
