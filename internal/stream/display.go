package stream

import (
	"context"
	"sync"
)

// Display is one screen showing a live order list. It has at most one active
// subscription; Watch replaces it.
type Display struct {
	obs    *Observer
	failed func(error)

	mu  sync.Mutex
	cur *watch
}

// watch is one subscription together with the goroutine forwarding it.
type watch struct {
	sub  *Subscription
	stop chan struct{}
	done chan struct{}
}

// NewDisplay returns a display that reports a terminal subscription error to
// failed. failed runs on the forwarding goroutine.
func NewDisplay(obs *Observer, failed func(error)) *Display {
	return &Display{obs: obs, failed: failed}
}

// Watch tears down the current subscription, if any, and starts one for q
// whose snapshots go to deliver. Once Watch returns, no snapshot of an earlier
// watch is delivered anymore, and deliver calls never overlap.
func (d *Display) Watch(ctx context.Context, q Query, deliver func(Snapshot)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()

	w := &watch{
		sub:  d.obs.Subscribe(ctx, q),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	d.cur = w
	go d.forward(w, deliver)
}

func (d *Display) forward(w *watch, deliver func(Snapshot)) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case snap, ok := <-w.sub.C():
			if !ok {
				if err := w.sub.Err(); err != nil && d.failed != nil {
					d.failed(err)
				}
				return
			}
			// A snapshot buffered before the stop is stale.
			select {
			case <-w.stop:
				return
			default:
			}
			deliver(snap)
		}
	}
}

// stopLocked cancels the current watch and waits for its forwarder, including
// a deliver call already in progress. d.mu must be held.
func (d *Display) stopLocked() {
	if d.cur == nil {
		return
	}
	close(d.cur.stop)
	d.cur.sub.Cancel()
	<-d.cur.done
	d.cur = nil
}

// Close cancels the active subscription and waits for delivery to stop.
func (d *Display) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}
