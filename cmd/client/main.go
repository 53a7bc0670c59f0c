// Command client provides CLI tools for interacting with an auction server.
//
// Every command performs the RSA handshake first, so all traffic after the
// key exchange travels encrypted.
//
// # Commands
//
// list: Show all auctions.
//
//	client list -s http://localhost:8000
//
// create: Open a new auction.
//
//	client create -s http://localhost:8000 --id=a1 --item="Vintage watch" --seller=alice --min-price=100 --duration=300
//
// bid: Place a bid.
//
//	client bid -s http://localhost:8000 --id=a1 --bidder=bob --amount=150
//
// watch: Stream pushed events and render the locally ticking auction list.
//
//	client watch -s http://localhost:8000
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gregghy/sec-projet/client"
	"github.com/gregghy/sec-projet/protocol"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "list":
		err = runList(args)
	case "get":
		err = runGet(args)
	case "create":
		err = runCreate(args)
	case "bid":
		err = runBid(args)
	case "register":
		err = runRegister(args)
	case "login":
		err = runLogin(args)
	case "watch":
		err = runWatch(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`client - CLI for the auction server

Usage:
  client <command> [options]

Commands:
  list      Show all auctions
  get       Show one auction
  create    Open a new auction
  bid       Place a bid
  register  Create a user account
  login     Verify credentials
  watch     Stream events with a live countdown

Run 'client <command> --help' for command-specific options.`)
}

// connect runs the handshake against the given server and returns a ready
// client.
func connect(ctx context.Context, serverURL string) (*client.Client, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("--server is required")
	}
	c := client.New(serverURL, nil, nil)
	if err := c.Handshake(ctx); err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	return c, nil
}

func serverFlag(fs *flag.FlagSet) *string {
	return fs.String("server", envOr("AUCTION_SERVER", "http://localhost:8000"), "Auction server URL")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printAuction(a protocol.Auction) {
	fmt.Printf("%-12s %-20s %-10s bid=%d", a.ID, a.Item, a.Status, a.HighestBid)
	if a.HighestBidder != "" {
		fmt.Printf(" by %s", a.HighestBidder)
	}
	if a.Status == protocol.StatusOpen {
		fmt.Printf(" (%ds left)", a.TimeRemaining)
	}
	fmt.Println()
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	serverURL := serverFlag(fs)
	fs.Parse(args)

	ctx := context.Background()
	c, err := connect(ctx, *serverURL)
	if err != nil {
		return err
	}

	auctions, err := c.Auctions(ctx)
	if err != nil {
		return err
	}
	if len(auctions) == 0 {
		fmt.Println("No auctions.")
		return nil
	}
	for _, a := range auctions {
		printAuction(a)
	}
	return nil
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	serverURL := serverFlag(fs)
	id := fs.String("id", "", "Auction id")
	fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	ctx := context.Background()
	c, err := connect(ctx, *serverURL)
	if err != nil {
		return err
	}

	a, err := c.Auction(ctx, *id)
	if err != nil {
		return err
	}
	printAuction(a)
	if a.Description != "" {
		fmt.Printf("  %s\n", a.Description)
	}
	return nil
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	serverURL := serverFlag(fs)
	id := fs.String("id", "", "Auction id")
	item := fs.String("item", "", "Item name")
	desc := fs.String("description", "", "Item description")
	seller := fs.String("seller", "", "Seller username")
	minPrice := fs.Int("min-price", 0, "Starting price")
	duration := fs.Int("duration", 300, "Auction duration in seconds")
	fs.Parse(args)

	if *id == "" || *item == "" {
		return fmt.Errorf("--id and --item are required")
	}

	ctx := context.Background()
	c, err := connect(ctx, *serverURL)
	if err != nil {
		return err
	}

	status, err := c.CreateAuction(ctx, protocol.CreateAuctionRequest{
		ID:            *id,
		Item:          *item,
		Description:   *desc,
		Seller:        *seller,
		MinPrice:      *minPrice,
		TimeRemaining: *duration,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created %s, starting price %d\n", *id, status.NewHighest)
	return nil
}

func runBid(args []string) error {
	fs := flag.NewFlagSet("bid", flag.ExitOnError)
	serverURL := serverFlag(fs)
	id := fs.String("id", "", "Auction id")
	bidder := fs.String("bidder", "", "Bidder username")
	amount := fs.Int("amount", 0, "Bid amount")
	fs.Parse(args)

	if *id == "" || *bidder == "" {
		return fmt.Errorf("--id and --bidder are required")
	}

	ctx := context.Background()
	c, err := connect(ctx, *serverURL)
	if err != nil {
		return err
	}

	status, err := c.PlaceBid(ctx, *id, *bidder, *amount)
	if err != nil {
		return err
	}
	fmt.Printf("Bid accepted, new highest %d\n", status.NewHighest)
	return nil
}

func runRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	serverURL := serverFlag(fs)
	user := fs.String("user", "", "Username")
	password := fs.String("password", "", "Password")
	fs.Parse(args)

	if *user == "" || *password == "" {
		return fmt.Errorf("--user and --password are required")
	}

	ctx := context.Background()
	c, err := connect(ctx, *serverURL)
	if err != nil {
		return err
	}

	if err := c.Register(ctx, *user, *password); err != nil {
		return err
	}
	fmt.Printf("Registered %s\n", *user)
	return nil
}

func runLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	serverURL := serverFlag(fs)
	user := fs.String("user", "", "Username")
	password := fs.String("password", "", "Password")
	fs.Parse(args)

	if *user == "" || *password == "" {
		return fmt.Errorf("--user and --password are required")
	}

	ctx := context.Background()
	c, err := connect(ctx, *serverURL)
	if err != nil {
		return err
	}

	if err := c.Login(ctx, *user, *password); err != nil {
		return err
	}
	fmt.Println("Login ok")
	return nil
}

// runWatch streams pushed events while a local reconciler keeps the
// countdowns ticking between frames.
func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := serverFlag(fs)
	interval := fs.Duration("refresh", 5*time.Second, "How often to re-render the auction list")
	fs.Parse(args)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	c, err := connect(ctx, *serverURL)
	if err != nil {
		return err
	}

	rec := client.NewReconciler(nil, nil)
	snapshot, err := c.Auctions(ctx)
	if err != nil {
		return err
	}
	rec.Replace(snapshot)

	stream, err := c.Listen(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	go rec.Run(ctx)

	render := time.NewTicker(*interval)
	defer render.Stop()

	fmt.Println("Watching for events (Ctrl-C to stop)...")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-stream.Err():
			return fmt.Errorf("event stream: %w", err)
		case ev := <-stream.Events():
			switch ev.Kind {
			case protocol.EventNewBid:
				fmt.Printf("[NEW_BID] %s: %d by %s\n", ev.AuctionID, ev.Amount, ev.Bidder)
			case protocol.EventEnd:
				fmt.Printf("[END] %s\n", ev.AuctionID)
			case protocol.EventCreated:
				fmt.Printf("[CREATED] %s\n", ev.AuctionID)
			}
			if !rec.Apply(ev) {
				// Event for an auction we have not seen. Resync.
				if snapshot, err := c.Auctions(ctx); err == nil {
					rec.Replace(snapshot)
				}
			}
		case <-render.C:
			for _, a := range rec.Auctions() {
				printAuction(a)
			}
		}
	}
}
