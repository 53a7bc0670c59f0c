package client

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/gregghy/sec-projet/protocol"
)

// Reconciler keeps the client's view of the auction list consistent: a local
// one-second countdown makes the UI tick between pushes, and authoritative
// server events override the local guess whenever they disagree.
//
// The reconciler owns its snapshot collection outright; nothing else mutates
// it and there is no shared global timer state.
type Reconciler struct {
	log   *slog.Logger
	clock clockwork.Clock

	mu       sync.Mutex
	auctions map[string]protocol.Auction
}

// NewReconciler creates an empty reconciler. A nil clock selects the real
// one.
func NewReconciler(clock clockwork.Clock, log *slog.Logger) *Reconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		log:      log,
		clock:    clock,
		auctions: make(map[string]protocol.Auction),
	}
}

// Replace resynchronizes from a full server fetch. Fetched state is
// authoritative and wins over every local guess.
func (r *Reconciler) Replace(snapshot []protocol.Auction) {
	next := make(map[string]protocol.Auction, len(snapshot))
	for _, a := range snapshot {
		next[a.ID] = a
	}

	r.mu.Lock()
	r.auctions = next
	r.mu.Unlock()
}

// Tick advances the advisory local countdown by one second: every open
// auction loses one second clamped at zero and flips to closed at zero.
// Closed auctions are never decremented further or reopened.
func (r *Reconciler) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range r.auctions {
		if a.Status != protocol.StatusOpen {
			continue
		}
		if a.TimeRemaining > 0 {
			a.TimeRemaining--
		}
		if a.TimeRemaining <= 0 {
			a.TimeRemaining = 0
			a.Status = protocol.StatusClosed
		}
		r.auctions[id] = a
	}
}

// Apply merges an authoritative pushed event into the local view. It reports
// whether the event's auction was known; an unknown id (a CREATED for a
// listing we have not fetched, or a bid racing our initial fetch) means the
// caller should re-fetch.
func (r *Reconciler) Apply(ev protocol.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, known := r.auctions[ev.AuctionID]
	if !known {
		return false
	}

	switch ev.Kind {
	case protocol.EventNewBid:
		// The server accepted it, so it beats whatever we hold; the guard
		// only drops stale reordered frames.
		if ev.Amount > a.HighestBid {
			a.HighestBid = ev.Amount
			a.HighestBidder = ev.Bidder
		}
	case protocol.EventEnd:
		a.Status = protocol.StatusClosed
		a.TimeRemaining = 0
		if ev.Amount > 0 || ev.Bidder != "" {
			a.HighestBid = ev.Amount
			a.HighestBidder = ev.Bidder
		}
	case protocol.EventCreated:
		// Already known; the fetch that provided it was at least as fresh.
	}

	r.auctions[ev.AuctionID] = a
	return true
}

// Auction returns the local snapshot of one auction.
func (r *Reconciler) Auction(id string) (protocol.Auction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	return a, ok
}

// Auctions returns the local snapshots sorted by id.
func (r *Reconciler) Auctions() []protocol.Auction {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]protocol.Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Run drives Tick once per second until the context is cancelled. The tick
// schedule and event application run independently; neither blocks the
// other beyond the snapshot lock.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.Tick()
		}
	}
}
