package protocol

import (
	"encoding/json"
	"fmt"
)

// EventKind tags a real-time event. The set is closed: decoding an unknown
// tag is an error, never a silent no-op.
type EventKind string

const (
	// EventNewBid announces an accepted bid.
	EventNewBid EventKind = "NEW_BID"
	// EventEnd announces an auction closing, with the final standing bid.
	EventEnd EventKind = "END"
	// EventCreated announces a newly opened auction.
	EventCreated EventKind = "CREATED"
)

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventNewBid, EventEnd, EventCreated:
		return true
	}
	return false
}

// Event is a real-time auction mutation pushed to all connected subscribers.
// Delivery is best-effort, at-most-once per subscriber connection; a
// reconnecting client re-fetches full state instead of relying on replay.
//
// Amount and Bidder are meaningful for NEW_BID and END (final standing bid);
// CREATED carries only the auction id.
type Event struct {
	Kind      EventKind `json:"event"`
	AuctionID string    `json:"id"`
	Amount    int       `json:"amount,omitempty"`
	Bidder    string    `json:"bidder,omitempty"`
}

// NewBidEvent builds the event published when a bid is accepted.
func NewBidEvent(auctionID, bidder string, amount int) Event {
	return Event{Kind: EventNewBid, AuctionID: auctionID, Bidder: bidder, Amount: amount}
}

// EndEvent builds the event published when an auction closes, carrying the
// final standing bid (zero bidder if nobody bid).
func EndEvent(auctionID, bidder string, amount int) Event {
	return Event{Kind: EventEnd, AuctionID: auctionID, Bidder: bidder, Amount: amount}
}

// CreatedEvent builds the event published when an auction is created.
func CreatedEvent(auctionID string) Event {
	return Event{Kind: EventCreated, AuctionID: auctionID}
}

// ParseEvent decodes a pushed event frame, rejecting unknown tags and frames
// without an auction id.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if !ev.Kind.Valid() {
		return Event{}, fmt.Errorf("unknown event tag %q", ev.Kind)
	}
	if ev.AuctionID == "" {
		return Event{}, fmt.Errorf("event %s missing auction id", ev.Kind)
	}
	return ev, nil
}
