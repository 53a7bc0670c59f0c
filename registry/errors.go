package registry

import "errors"

// Domain errors. These are expected outcomes of the bid protocol: they are
// surfaced to the end user and never abort the session or change state.
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionClosed   = errors.New("auction is closed")
	ErrBidTooLow       = errors.New("bid too low")
	ErrAuctionExists   = errors.New("auction id already exists")
)

// Account errors.
var (
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
