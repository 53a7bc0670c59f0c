package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gregghy/sec-projet/eventbus"
	"github.com/gregghy/sec-projet/protocol"
)

func newTestRegistry(t *testing.T) (*Registry, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New(nil)
	reg, err := New(context.Background(), NewMemoryStore(), bus, nil)
	require.NoError(t, err)
	return reg, bus
}

func createTestAuction(t *testing.T, reg *Registry, id string, minPrice, duration int) protocol.Auction {
	t.Helper()
	a, err := reg.CreateAuction(context.Background(), protocol.CreateAuctionRequest{
		ID:            id,
		Item:          "test item",
		Description:   "test description",
		Seller:        "seller",
		MinPrice:      minPrice,
		TimeRemaining: duration,
	})
	require.NoError(t, err)
	return a
}

func TestCreateAuction(t *testing.T) {
	reg, bus := newTestRegistry(t)
	sub := bus.Subscribe(4)

	a := createTestAuction(t, reg, "a1", 100, 60)
	require.Equal(t, protocol.StatusOpen, a.Status)
	require.Equal(t, 100, a.HighestBid, "highest bid starts at min price")
	require.Empty(t, a.HighestBidder)

	ev := <-sub.Events()
	require.Equal(t, protocol.CreatedEvent("a1"), ev)
}

func TestCreateAuctionDuplicateID(t *testing.T) {
	reg, _ := newTestRegistry(t)
	createTestAuction(t, reg, "a1", 100, 60)

	_, err := reg.CreateAuction(context.Background(), protocol.CreateAuctionRequest{ID: "a1", MinPrice: 5})
	require.ErrorIs(t, err, ErrAuctionExists)
}

func TestCreateAuctionPermissiveMinPrice(t *testing.T) {
	// The create path accepts the minimum price as given, negative included.
	reg, _ := newTestRegistry(t)
	a := createTestAuction(t, reg, "a1", -10, 60)
	require.Equal(t, -10, a.HighestBid)

	_, err := reg.PlaceBid(context.Background(), protocol.BidRequest{ID: "a1", Bidder: "alice", Amount: -9})
	require.NoError(t, err)
}

func TestBidRejectionBoundary(t *testing.T) {
	reg, _ := newTestRegistry(t)
	createTestAuction(t, reg, "a1", 100, 60)
	ctx := context.Background()

	// A bid of exactly the highest bid is rejected.
	_, err := reg.PlaceBid(ctx, protocol.BidRequest{ID: "a1", Bidder: "alice", Amount: 100})
	require.ErrorIs(t, err, ErrBidTooLow)

	// highest_bid + 1 is the minimum accepted bid.
	a, err := reg.PlaceBid(ctx, protocol.BidRequest{ID: "a1", Bidder: "alice", Amount: 101})
	require.NoError(t, err)
	require.Equal(t, 101, a.HighestBid)
	require.Equal(t, "alice", a.HighestBidder)
}

func TestBidUnknownAuction(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.PlaceBid(context.Background(), protocol.BidRequest{ID: "nope", Bidder: "alice", Amount: 10})
	require.ErrorIs(t, err, ErrAuctionNotFound)
}

func TestMonotonicHighestBid(t *testing.T) {
	reg, _ := newTestRegistry(t)
	createTestAuction(t, reg, "a1", 10, 60)
	ctx := context.Background()

	last := 10
	for _, amount := range []int{11, 15, 16, 40, 100} {
		a, err := reg.PlaceBid(ctx, protocol.BidRequest{ID: "a1", Bidder: "bob", Amount: amount})
		require.NoError(t, err)
		require.Greater(t, a.HighestBid, last, "highest bid sequence must be strictly increasing")
		last = a.HighestBid
	}

	// Replays of any earlier amount are rejected against the new highest.
	_, err := reg.PlaceBid(ctx, protocol.BidRequest{ID: "a1", Bidder: "bob", Amount: 40})
	require.ErrorIs(t, err, ErrBidTooLow)
}

func TestConcurrentBidRace(t *testing.T) {
	reg, _ := newTestRegistry(t)
	createTestAuction(t, reg, "a1", 50, 60)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	amounts := []int{100, 101}
	for i, amount := range amounts {
		wg.Add(1)
		go func(i, amount int) {
			defer wg.Done()
			_, errs[i] = reg.PlaceBid(ctx, protocol.BidRequest{ID: "a1", Bidder: "bidder", Amount: amount})
		}(i, amount)
	}
	wg.Wait()

	// The 101 bid always ends up on top whatever the interleaving; the 100
	// bid either landed first or lost against the updated highest bid.
	a, err := reg.Auction("a1")
	require.NoError(t, err)
	require.Equal(t, 101, a.HighestBid)
	require.NoError(t, errs[1])
	if errs[0] != nil {
		require.ErrorIs(t, errs[0], ErrBidTooLow)
	}
}

func TestConcurrentBidStorm(t *testing.T) {
	reg, _ := newTestRegistry(t)
	createTestAuction(t, reg, "a1", 0, 60)
	ctx := context.Background()

	const bidders = 32
	var wg sync.WaitGroup
	accepted := make(chan int, bidders)
	for i := 1; i <= bidders; i++ {
		wg.Add(1)
		go func(amount int) {
			defer wg.Done()
			a, err := reg.PlaceBid(ctx, protocol.BidRequest{ID: "a1", Bidder: "b", Amount: amount})
			if err != nil {
				require.ErrorIs(t, err, ErrBidTooLow)
				return
			}
			accepted <- a.HighestBid
		}(i)
	}
	wg.Wait()
	close(accepted)

	// The top bid always wins, and no two accepted bids share an amount.
	a, err := reg.Auction("a1")
	require.NoError(t, err)
	require.Equal(t, bidders, a.HighestBid)

	seen := make(map[int]bool)
	for amount := range accepted {
		require.False(t, seen[amount])
		seen[amount] = true
	}
	require.True(t, seen[bidders])
}

func TestExpiryScenario(t *testing.T) {
	reg, bus := newTestRegistry(t)
	createTestAuction(t, reg, "a1", 100, 10)
	ctx := context.Background()
	sub := bus.Subscribe(16)

	a, err := reg.PlaceBid(ctx, protocol.BidRequest{ID: "a1", Bidder: "alice", Amount: 150})
	require.NoError(t, err)
	require.Equal(t, 150, a.HighestBid)

	for i := 0; i < 10; i++ {
		reg.Tick(ctx)
	}

	a, err = reg.Auction("a1")
	require.NoError(t, err)
	require.Equal(t, protocol.StatusClosed, a.Status)
	require.Zero(t, a.TimeRemaining)

	// No bid of any amount is accepted once closed, and the countdown
	// never goes negative.
	_, err = reg.PlaceBid(ctx, protocol.BidRequest{ID: "a1", Bidder: "bob", Amount: 1_000_000})
	require.ErrorIs(t, err, ErrAuctionClosed)

	reg.Tick(ctx)
	a, err = reg.Auction("a1")
	require.NoError(t, err)
	require.Zero(t, a.TimeRemaining)
	require.Equal(t, protocol.StatusClosed, a.Status)

	// END is published exactly once, with the final standing bid.
	var endEvents []protocol.Event
	for len(sub.Events()) > 0 {
		ev := <-sub.Events()
		if ev.Kind == protocol.EventEnd {
			endEvents = append(endEvents, ev)
		}
	}
	require.Len(t, endEvents, 1)
	require.Equal(t, protocol.EndEvent("a1", "alice", 150), endEvents[0])
}

func TestTickZeroDurationAuction(t *testing.T) {
	reg, _ := newTestRegistry(t)
	createTestAuction(t, reg, "a1", 10, 0)
	ctx := context.Background()

	reg.Tick(ctx)
	a, err := reg.Auction("a1")
	require.NoError(t, err)
	require.Equal(t, protocol.StatusClosed, a.Status)
	require.Zero(t, a.TimeRemaining)
}

func TestAuctionsSnapshot(t *testing.T) {
	reg, _ := newTestRegistry(t)
	createTestAuction(t, reg, "b", 10, 60)
	createTestAuction(t, reg, "a", 10, 60)
	createTestAuction(t, reg, "c", 10, 0)
	reg.Tick(context.Background())

	all := reg.Auctions()
	require.Len(t, all, 3, "closed auctions remain queryable")
	require.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	// Mutating the snapshot must not touch registry state.
	all[0].HighestBid = 9999
	a, err := reg.Auction("a")
	require.NoError(t, err)
	require.Equal(t, 10, a.HighestBid)
}

func TestEventOrderMatchesMutationOrder(t *testing.T) {
	reg, bus := newTestRegistry(t)
	sub := bus.Subscribe(16)
	ctx := context.Background()

	createTestAuction(t, reg, "a1", 10, 60)
	_, err := reg.PlaceBid(ctx, protocol.BidRequest{ID: "a1", Bidder: "alice", Amount: 11})
	require.NoError(t, err)
	_, err = reg.PlaceBid(ctx, protocol.BidRequest{ID: "a1", Bidder: "bob", Amount: 12})
	require.NoError(t, err)

	require.Equal(t, protocol.EventCreated, (<-sub.Events()).Kind)
	require.Equal(t, 11, (<-sub.Events()).Amount)
	require.Equal(t, 12, (<-sub.Events()).Amount)
}

func TestWarmStartFromStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	reg, err := New(ctx, store, nil, nil)
	require.NoError(t, err)
	createTestAuction(t, reg, "a1", 100, 60)
	_, err = reg.PlaceBid(ctx, protocol.BidRequest{ID: "a1", Bidder: "alice", Amount: 150})
	require.NoError(t, err)
	require.NoError(t, reg.RegisterUser(ctx, "alice", "digest"))

	// A fresh registry over the same store sees the committed state.
	reg2, err := New(ctx, store, nil, nil)
	require.NoError(t, err)

	a, err := reg2.Auction("a1")
	require.NoError(t, err)
	require.Equal(t, 150, a.HighestBid)
	require.NoError(t, reg2.Authenticate("alice", "digest"))
}

func TestUserAccounts(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.RegisterUser(ctx, "alice", "digest-1"))
	require.ErrorIs(t, reg.RegisterUser(ctx, "alice", "digest-2"), ErrUserExists)

	require.NoError(t, reg.Authenticate("alice", "digest-1"))
	require.ErrorIs(t, reg.Authenticate("alice", "digest-2"), ErrInvalidCredentials)
	require.ErrorIs(t, reg.Authenticate("nobody", "digest-1"), ErrInvalidCredentials)
}

func TestBruteForceLoginStorm(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.RegisterUser(ctx, "victim", "the-real-digest"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := reg.Authenticate("victim", "guess")
			require.ErrorIs(t, err, ErrInvalidCredentials)
		}(i)
	}
	wg.Wait()

	// The storm must not corrupt the account.
	require.NoError(t, reg.Authenticate("victim", "the-real-digest"))
}
