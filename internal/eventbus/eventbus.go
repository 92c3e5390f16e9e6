// Package eventbus is a process-wide fan-out of session lifecycle events.
// Delivery is synchronous, in-process, at-most-once: events published with no
// subscribers are dropped. The bus is not session-scoped; subscribers filter
// by session id themselves.
package eventbus

import "sync"

// Event is one of QR, Ready, or Closed.
type Event interface{ isEvent() }

// QR carries an opaque pairing challenge for a session in SCANNING state.
type QR struct {
	SessionID string
	Challenge []byte
}

// Ready signals that a session connected, with its resolved identity.
type Ready struct {
	SessionID string
	JID       string
}

// Closed signals that a session's connection terminated. Reconnect is false
// only on permanent logout.
type Closed struct {
	SessionID string
	Reconnect bool
}

func (QR) isEvent()     {}
func (Ready) isEvent()  {}
func (Closed) isEvent() {}

// Bus fans events out to registered subscribers. One instance per process.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

func New() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn for every published event and returns an unsubscribe
// function. fn runs on the publisher's goroutine and must be quick.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers e synchronously to all current subscribers.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}
