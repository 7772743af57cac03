// Package eventbus provides an in-process fan-out bus used to distribute
// simulation tick events to observers (metrics sinks, the MQTT publisher,
// tests) without coupling them to the simulation loop.
package eventbus

import "sync"

// Bus is a type-safe publish/subscribe bus for events of type T.
// Delivery is non-blocking: a slow subscriber drops events once its
// buffer is full rather than stalling the publisher.
type Bus[T any] struct {
	mu      sync.RWMutex
	subs    []chan T
	bufSize int
	closed  bool
}

// New creates a bus whose subscriber channels hold up to bufSize events.
func New[T any](bufSize int) *Bus[T] {
	if bufSize <= 0 {
		bufSize = 8
	}
	return &Bus[T]{bufSize: bufSize}
}

// Publish sends the event to all subscribers.
func (b *Bus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a subscriber and returns its channel. Subscribing
// to a closed bus returns an already-closed channel.
func (b *Bus[T]) Subscribe() <-chan T {
	ch := make(chan T, b.bufSize)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes all subscriber channels and rejects further publishes.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.mu.Unlock()
}
