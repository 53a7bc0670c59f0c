package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/gregghy/sec-projet/protocol"
)

// PostgresStore implements Store with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS auctions (
		id VARCHAR(128) PRIMARY KEY,
		item VARCHAR(256) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		seller VARCHAR(128) NOT NULL,
		highest_bid BIGINT NOT NULL,
		highest_bidder VARCHAR(128) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL,
		time_remaining BIGINT NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS users (
		username VARCHAR(128) PRIMARY KEY,
		password_digest VARCHAR(256) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_auctions_status ON auctions(status);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveAuction upserts one auction record.
func (s *PostgresStore) SaveAuction(ctx context.Context, a protocol.Auction) error {
	query := `
	INSERT INTO auctions
		(id, item, description, seller, highest_bid, highest_bidder, status, time_remaining, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	ON CONFLICT (id) DO UPDATE SET
		highest_bid = EXCLUDED.highest_bid,
		highest_bidder = EXCLUDED.highest_bidder,
		status = EXCLUDED.status,
		time_remaining = EXCLUDED.time_remaining,
		updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		a.ID,
		a.Item,
		a.Description,
		a.Seller,
		a.HighestBid,
		a.HighestBidder,
		string(a.Status),
		a.TimeRemaining,
	)
	return err
}

// LoadAuctions retrieves every persisted auction, closed ones included.
func (s *PostgresStore) LoadAuctions(ctx context.Context) ([]protocol.Auction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item, description, seller, highest_bid, highest_bidder, status, time_remaining
		FROM auctions
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []protocol.Auction
	for rows.Next() {
		var a protocol.Auction
		var status string
		if err := rows.Scan(&a.ID, &a.Item, &a.Description, &a.Seller,
			&a.HighestBid, &a.HighestBidder, &status, &a.TimeRemaining); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		a.Status = protocol.AuctionStatus(status)
		out = append(out, a)
	}

	return out, rows.Err()
}

// SaveUser persists one account digest.
func (s *PostgresStore) SaveUser(ctx context.Context, username, digest string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_digest) VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET password_digest = EXCLUDED.password_digest
	`, username, digest)
	return err
}

// LoadUsers retrieves all persisted accounts.
func (s *PostgresStore) LoadUsers(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, password_digest FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var username, digest string
		if err := rows.Scan(&username, &digest); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out[username] = digest
	}

	return out, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
