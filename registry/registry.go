package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/gregghy/sec-projet/eventbus"
	"github.com/gregghy/sec-projet/protocol"
)

// record wraps an auction with its own lock so the bid check-and-set is a
// single atomic unit per auction without serializing unrelated auctions.
type record struct {
	mu sync.Mutex
	a  protocol.Auction
}

// Registry owns the canonical auction collection and user table. Mutations
// are write-through to the Store and published to the Bus under the record
// lock, so an accepted bid is persisted and announced before the next bid on
// the same auction is examined.
type Registry struct {
	store Store
	bus   *eventbus.Bus
	log   *slog.Logger

	mu       sync.RWMutex
	auctions map[string]*record

	usersMu sync.RWMutex
	users   map[string]string // username -> bcrypt digest of the client hash
}

// New creates a registry warmed from the store.
func New(ctx context.Context, store Store, bus *eventbus.Bus, log *slog.Logger) (*Registry, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = slog.Default()
	}

	auctions, err := store.LoadAuctions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load auctions: %w", err)
	}
	users, err := store.LoadUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	r := &Registry{
		store:    store,
		bus:      bus,
		log:      log,
		auctions: make(map[string]*record, len(auctions)),
		users:    users,
	}
	for _, a := range auctions {
		r.auctions[a.ID] = &record{a: a}
	}
	return r, nil
}

// CreateAuction inserts a new open auction. The minimum price is accepted as
// given and becomes the starting highest bid; publishing CREATED and
// persisting happen before the call returns.
func (r *Registry) CreateAuction(ctx context.Context, req protocol.CreateAuctionRequest) (protocol.Auction, error) {
	a := protocol.Auction{
		ID:            req.ID,
		Item:          req.Item,
		Description:   req.Description,
		Seller:        req.Seller,
		HighestBid:    req.MinPrice,
		HighestBidder: "",
		Status:        protocol.StatusOpen,
		TimeRemaining: req.TimeRemaining,
	}
	if a.TimeRemaining < 0 {
		a.TimeRemaining = 0
	}

	r.mu.Lock()
	if _, exists := r.auctions[a.ID]; exists {
		r.mu.Unlock()
		return protocol.Auction{}, ErrAuctionExists
	}
	if err := r.store.SaveAuction(ctx, a); err != nil {
		r.mu.Unlock()
		return protocol.Auction{}, fmt.Errorf("persist auction: %w", err)
	}
	r.auctions[a.ID] = &record{a: a}
	r.mu.Unlock()

	r.publish(protocol.CreatedEvent(a.ID))
	r.log.Info("auction created", "auction_id", a.ID, "seller", a.Seller, "min_price", req.MinPrice)
	return a, nil
}

// PlaceBid runs the bid acceptance protocol: the auction must exist, be
// open, and the amount must exceed the current highest bid (minimum accepted
// bid is highest_bid+1). The check and the update are one atomic unit under
// the record lock, so of two concurrent bids exactly one wins and the loser
// observes the updated highest bid.
func (r *Registry) PlaceBid(ctx context.Context, bid protocol.BidRequest) (protocol.Auction, error) {
	rec, err := r.lookup(bid.ID)
	if err != nil {
		return protocol.Auction{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.a.Status != protocol.StatusOpen {
		return protocol.Auction{}, ErrAuctionClosed
	}
	if bid.Amount <= rec.a.HighestBid {
		return protocol.Auction{}, fmt.Errorf("%w: highest bid is %d", ErrBidTooLow, rec.a.HighestBid)
	}

	updated := rec.a
	updated.HighestBid = bid.Amount
	updated.HighestBidder = bid.Bidder
	if err := r.store.SaveAuction(ctx, updated); err != nil {
		return protocol.Auction{}, fmt.Errorf("persist bid: %w", err)
	}
	rec.a = updated

	r.publish(protocol.NewBidEvent(updated.ID, updated.HighestBidder, updated.HighestBid))
	r.log.Info("bid accepted", "auction_id", updated.ID, "bidder", bid.Bidder, "amount", bid.Amount)
	return updated, nil
}

// Auction returns a snapshot of one auction.
func (r *Registry) Auction(id string) (protocol.Auction, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return protocol.Auction{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.a, nil
}

// Auctions returns snapshots of every auction, closed ones included, sorted
// by id for stable listings.
func (r *Registry) Auctions() []protocol.Auction {
	r.mu.RLock()
	recs := make([]*record, 0, len(r.auctions))
	for _, rec := range r.auctions {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	out := make([]protocol.Auction, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.a)
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Tick advances the authoritative countdown by one second: every open
// auction loses one second clamped at zero, and an auction reaching zero
// flips to closed and publishes END with the final standing bid. Closed
// auctions are never decremented or reopened.
func (r *Registry) Tick(ctx context.Context) {
	r.mu.RLock()
	recs := make([]*record, 0, len(r.auctions))
	for _, rec := range r.auctions {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	for _, rec := range recs {
		rec.mu.Lock()
		if rec.a.Status != protocol.StatusOpen {
			rec.mu.Unlock()
			continue
		}

		updated := rec.a
		if updated.TimeRemaining > 0 {
			updated.TimeRemaining--
		}
		closing := updated.TimeRemaining <= 0
		if closing {
			updated.TimeRemaining = 0
			updated.Status = protocol.StatusClosed
		}

		if err := r.store.SaveAuction(ctx, updated); err != nil {
			// Keep the in-memory countdown moving; expiry retries next tick.
			r.log.Error("persist tick", "auction_id", rec.a.ID, "err", err)
			rec.mu.Unlock()
			continue
		}
		rec.a = updated

		if closing {
			r.publish(protocol.EndEvent(updated.ID, updated.HighestBidder, updated.HighestBid))
			r.log.Info("auction closed", "auction_id", updated.ID,
				"highest_bid", updated.HighestBid, "highest_bidder", updated.HighestBidder)
		}
		rec.mu.Unlock()
	}
}

func (r *Registry) lookup(id string) (*record, error) {
	r.mu.RLock()
	rec, ok := r.auctions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrAuctionNotFound
	}
	return rec, nil
}

func (r *Registry) publish(ev protocol.Event) {
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}
