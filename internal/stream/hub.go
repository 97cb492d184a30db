// Package stream keeps live order listings up to date. Every change to the
// orders table produces a signal; each subscription answers a signal by
// re-reading its full result set and delivering it as a snapshot.
package stream

import (
	"context"
	"sync"
)

// Hub fans change signals out to every registered listener. Signals are
// coalesced: a listener that has not consumed the previous one does not
// queue another.
type Hub struct {
	listeners map[chan struct{}]bool

	register   chan chan struct{}
	unregister chan chan struct{}
	broadcast  chan struct{}
	done       chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		listeners:  make(map[chan struct{}]bool),
		register:   make(chan chan struct{}),
		unregister: make(chan chan struct{}),
		broadcast:  make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case l := <-h.register:
			h.mu.Lock()
			h.listeners[l] = true
			h.mu.Unlock()

		case l := <-h.unregister:
			h.mu.Lock()
			delete(h.listeners, l)
			h.mu.Unlock()

		case <-h.broadcast:
			h.mu.RLock()
			for l := range h.listeners {
				select {
				case l <- struct{}{}:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Notify signals that orders changed. It never blocks.
func (h *Hub) Notify() {
	select {
	case h.broadcast <- struct{}{}:
	default:
	}
}

// Listeners returns the number of registered listeners.
func (h *Hub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// listen registers a signal channel. It returns nil when the hub or ctx has
// stopped.
func (h *Hub) listen(ctx context.Context) chan struct{} {
	l := make(chan struct{}, 1)
	select {
	case h.register <- l:
		return l
	case <-ctx.Done():
	case <-h.done:
	}
	return nil
}

func (h *Hub) forget(l chan struct{}) {
	select {
	case h.unregister <- l:
	case <-h.done:
	}
}
