package eventbus

import (
	"log/slog"
	"sync"

	"github.com/gregghy/sec-projet/protocol"
)

// DefaultQueueSize is the per-subscriber queue depth used when Subscribe is
// called with a non-positive buffer.
const DefaultQueueSize = 64

// Subscriber receives published events on its channel until it unsubscribes
// or falls too far behind, at which point the channel is closed.
type Subscriber struct {
	ch     chan protocol.Event
	closed bool // guarded by the owning bus mutex
}

// Events returns the subscriber's receive channel. The channel is closed
// when the subscriber is removed from the bus.
func (s *Subscriber) Events() <-chan protocol.Event {
	return s.ch
}

// Bus is an in-process publish/subscribe fan-out of auction events.
type Bus struct {
	log *slog.Logger

	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

// New creates an empty bus.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		log:  log,
		subs: make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber with the given queue depth.
func (b *Bus) Subscribe(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultQueueSize
	}
	sub := &Subscriber{ch: make(chan protocol.Event, buffer)}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call more
// than once.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	b.remove(sub)
	b.mu.Unlock()
}

// Publish delivers an event to every subscriber in registration-independent
// order, FIFO per subscriber. It never blocks on a slow subscriber: one
// whose queue is full is dropped so a stalled connection cannot hold up the
// registry mutation that triggered the event.
func (b *Bus) Publish(ev protocol.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.log.Warn("dropping slow event subscriber",
				"event", string(ev.Kind), "auction_id", ev.AuctionID)
			b.remove(sub)
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// remove must be called with b.mu held.
func (b *Bus) remove(sub *Subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(b.subs, sub)
	close(sub.ch)
}
