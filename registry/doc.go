// Package registry holds the authoritative collection of auction records and
// user accounts. It is the sole writer of auction state: bids, creations and
// countdown expiry all pass through it, and every committed mutation is
// published to the event bus before the call returns.
//
// The bid check-and-set is serialized per auction record, so two concurrent
// bids can never both be accepted at the same amount and the highest bid is
// strictly increasing for the lifetime of an auction. Closed auctions are
// never deleted and remain queryable.
package registry
