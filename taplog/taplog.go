// Package taplog defines the captured-operation event and a buffered
// fan-out broker for distributing it to tap viewers.
package taplog

import (
	"sync"
	"time"

	"github.com/motoki-oss/docdb/wire"
)

// Event records one completed wire operation for observability. It has no
// role in the protocol itself; a Connection works identically whether or
// not anything is subscribed.
type Event struct {
	SessionID string
	Op        wire.Opcode
	Namespace string
	Rendered  string
	StartedAt time.Time
	Duration  time.Duration
	Err       string
	NPlus1    bool
}

// Broker is a buffered-channel fan-out: every Publish reaches every current
// subscriber, non-blocking — a full subscriber channel simply drops the
// event rather than stalling the publisher.
type Broker struct {
	buf  int
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// New creates a Broker whose subscriber channels are buffered to buf.
func New(buf int) *Broker {
	return &Broker{buf: buf, subs: make(map[chan Event]struct{})}
}

// Publish fans ev out to every current subscriber.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber too slow; drop rather than block the publisher.
		}
	}
}

// Subscribe returns a channel of future events and an unsubscribe func.
// The returned channel is closed once unsubscribe is called.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buf)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsub
}
