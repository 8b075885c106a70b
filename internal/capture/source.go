// Package capture adapts external capture sources to the recording
// pipeline. The core never installs page hooks itself: a collector in the
// host page observes interactions and delivers normalized notifications
// here, over HTTP or in-process.
package capture

import (
	"sync"

	"github.com/NGWS-CD/forensic-final/internal/schema"
)

// Notification is one normalized observation from a capture source. Each
// notification corresponds to exactly one underlying occurrence.
type Notification struct {
	// Type is the canonical event type this observation maps to.
	Type schema.EventType

	// Target is the locator string of the affected element. Empty for
	// window-level events.
	Target string

	// Fields carries the raw payload fields: coordinates, key info,
	// values, modifier flags. Values are masked downstream by the
	// recorder before storage.
	Fields map[string]any
}

// Source delivers notifications to subscribers. Subscribe returns a cancel
// function that detaches the subscription; after cancel returns, the
// callback will not be invoked again.
type Source interface {
	Subscribe(fn func(Notification)) (cancel func())
}

// Hub is a fan-out Source. Publishers and subscribers may attach and detach
// at any time.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]func(Notification)
	next int
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]func(Notification))}
}

// Subscribe registers a callback for every published notification.
func (h *Hub) Subscribe(fn func(Notification)) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Publish delivers a notification to all current subscribers, in
// subscription order is not guaranteed.
func (h *Hub) Publish(n Notification) {
	h.mu.RLock()
	fns := make([]func(Notification), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(n)
	}
}
