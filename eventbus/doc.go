// Package eventbus fans auction mutation events out to all connected
// real-time subscribers.
//
// Delivery is best-effort and at-most-once: each subscriber owns a bounded
// queue, ordering is FIFO per subscriber, and a subscriber whose queue is
// full is disconnected rather than allowed to stall bid processing for
// everyone else. There is no replay or backlog; a reconnecting subscriber
// must re-fetch full state to resynchronize.
package eventbus
