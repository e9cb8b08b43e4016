package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/shadowbid/shadowbid/auction"
	"github.com/shadowbid/shadowbid/ledger"
)

// RecordStore persists auction and bid records so the state machine can be
// rebuilt after a restart. Saves are upserts keyed by record address.
type RecordStore interface {
	SaveAuction(record *auction.AuctionRecord) error
	SaveBid(record *auction.BidRecord) error
	LoadAll() ([]*auction.AuctionRecord, []*auction.BidRecord, error)
	Close() error
}

// PostgresStore implements RecordStore with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
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
		address VARCHAR(64) PRIMARY KEY,
		auction_id BIGINT NOT NULL,
		authority VARCHAR(128) NOT NULL,
		asset VARCHAR(64) NOT NULL,
		start_time BIGINT NOT NULL,
		end_time BIGINT NOT NULL,
		reserve_price BIGINT NOT NULL,
		item_name VARCHAR(64) NOT NULL,
		item_description VARCHAR(256) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL,
		total_bids INT NOT NULL DEFAULT 0,
		winner VARCHAR(128) NOT NULL DEFAULT '',
		highest_bid_amount BIGINT NOT NULL DEFAULT 0,
		session_id VARCHAR(64) NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS bids (
		address VARCHAR(64) PRIMARY KEY,
		auction VARCHAR(64) NOT NULL REFERENCES auctions(address),
		bidder VARCHAR(128) NOT NULL,
		deposited_amount BIGINT NOT NULL,
		sealed_bid BYTEA NOT NULL,
		submitted_at BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL,
		released BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_auctions_authority ON auctions(authority);
	CREATE INDEX IF NOT EXISTS idx_auctions_status ON auctions(status);
	CREATE INDEX IF NOT EXISTS idx_bids_auction ON bids(auction);
	CREATE INDEX IF NOT EXISTS idx_bids_bidder ON bids(bidder);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveAuction upserts an auction record by address.
func (s *PostgresStore) SaveAuction(record *auction.AuctionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO auctions
		(address, auction_id, authority, asset, start_time, end_time, reserve_price,
		 item_name, item_description, status, total_bids, winner, highest_bid_amount,
		 session_id, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
	ON CONFLICT (address) DO UPDATE SET
		status = EXCLUDED.status,
		total_bids = EXCLUDED.total_bids,
		winner = EXCLUDED.winner,
		highest_bid_amount = EXCLUDED.highest_bid_amount,
		updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		record.Address.String(),
		int64(record.AuctionID),
		string(record.Authority),
		record.Asset,
		record.StartTime,
		record.EndTime,
		int64(record.ReservePrice),
		record.ItemName,
		record.ItemDescription,
		record.Status.String(),
		int32(record.TotalBids),
		string(record.Winner),
		int64(record.HighestBidAmount),
		record.SessionID,
		record.CreatedAt,
	)
	return err
}

// SaveBid upserts a bid record by address.
func (s *PostgresStore) SaveBid(record *auction.BidRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO bids
		(address, auction, bidder, deposited_amount, sealed_bid, submitted_at,
		 status, released, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	ON CONFLICT (address) DO UPDATE SET
		status = EXCLUDED.status,
		released = EXCLUDED.released,
		updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		record.Address.String(),
		record.Auction.String(),
		string(record.Bidder),
		int64(record.DepositedAmount),
		record.SealedBid,
		record.Timestamp,
		record.Status.String(),
		record.Released,
	)
	return err
}

// LoadAll retrieves every persisted auction and bid record. Bids come back
// in submission order so the machine rebuilds per-auction bid order exactly.
func (s *PostgresStore) LoadAll() ([]*auction.AuctionRecord, []*auction.BidRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT address, auction_id, authority, asset, start_time, end_time,
		       reserve_price, item_name, item_description, status, total_bids,
		       winner, highest_bid_amount, session_id, created_at
		FROM auctions
	`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var auctions []*auction.AuctionRecord
	for rows.Next() {
		var (
			address    string
			auctionID  int64
			authority  string
			asset      string
			startTime  int64
			endTime    int64
			reserve    int64
			itemName   string
			itemDesc   string
			status     string
			totalBids  int32
			winner     string
			highestBid int64
			sessionID  string
			createdAt  int64
		)
		if err := rows.Scan(&address, &auctionID, &authority, &asset, &startTime,
			&endTime, &reserve, &itemName, &itemDesc, &status, &totalBids,
			&winner, &highestBid, &sessionID, &createdAt); err != nil {
			return nil, nil, fmt.Errorf("scanning auction row: %w", err)
		}

		addr, err := ledger.ParseAddress(address)
		if err != nil {
			continue
		}
		parsedStatus, ok := auction.ParseAuctionStatus(status)
		if !ok {
			continue
		}

		auctions = append(auctions, &auction.AuctionRecord{
			Address:          addr,
			AuctionID:        uint64(auctionID),
			Authority:        ledger.Identity(authority),
			Asset:            asset,
			StartTime:        startTime,
			EndTime:          endTime,
			ReservePrice:     uint64(reserve),
			ItemName:         itemName,
			ItemDescription:  itemDesc,
			Status:           parsedStatus,
			TotalBids:        uint32(totalBids),
			Winner:           ledger.Identity(winner),
			HighestBidAmount: uint64(highestBid),
			SessionID:        sessionID,
			CreatedAt:        createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	bidRows, err := s.db.QueryContext(ctx, `
		SELECT address, auction, bidder, deposited_amount, sealed_bid,
		       submitted_at, status, released
		FROM bids
		ORDER BY submitted_at, address
	`)
	if err != nil {
		return nil, nil, err
	}
	defer bidRows.Close()

	var bids []*auction.BidRecord
	for bidRows.Next() {
		var (
			address   string
			auctionID string
			bidder    string
			deposited int64
			sealed    []byte
			submitted int64
			status    string
			released  bool
		)
		if err := bidRows.Scan(&address, &auctionID, &bidder, &deposited,
			&sealed, &submitted, &status, &released); err != nil {
			return nil, nil, fmt.Errorf("scanning bid row: %w", err)
		}

		addr, err := ledger.ParseAddress(address)
		if err != nil {
			continue
		}
		auctionAddr, err := ledger.ParseAddress(auctionID)
		if err != nil {
			continue
		}
		parsedStatus, ok := auction.ParseBidStatus(status)
		if !ok {
			continue
		}

		bids = append(bids, &auction.BidRecord{
			Address:         addr,
			Auction:         auctionAddr,
			Bidder:          ledger.Identity(bidder),
			DepositedAmount: uint64(deposited),
			SealedBid:       sealed,
			Timestamp:       submitted,
			Status:          parsedStatus,
			Released:        released,
		})
	}

	return auctions, bids, bidRows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// InMemoryStore implements RecordStore for testing without a database.
type InMemoryStore struct {
	mu       sync.Mutex
	auctions map[ledger.Address]*auction.AuctionRecord
	bids     map[ledger.Address]*auction.BidRecord
	bidOrder []ledger.Address
}

// NewInMemoryStore creates an in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		auctions: make(map[ledger.Address]*auction.AuctionRecord),
		bids:     make(map[ledger.Address]*auction.BidRecord),
	}
}

// SaveAuction stores an auction record in memory.
func (s *InMemoryStore) SaveAuction(record *auction.AuctionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[record.Address] = record.Clone()
	return nil
}

// SaveBid stores a bid record in memory.
func (s *InMemoryStore) SaveBid(record *auction.BidRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.bids[record.Address]; !seen {
		s.bidOrder = append(s.bidOrder, record.Address)
	}
	s.bids[record.Address] = record.Clone()
	return nil
}

// LoadAll returns all stored records, bids in submission order.
func (s *InMemoryStore) LoadAll() ([]*auction.AuctionRecord, []*auction.BidRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auctions := make([]*auction.AuctionRecord, 0, len(s.auctions))
	for _, record := range s.auctions {
		auctions = append(auctions, record.Clone())
	}

	bids := make([]*auction.BidRecord, 0, len(s.bidOrder))
	for _, addr := range s.bidOrder {
		bids = append(bids, s.bids[addr].Clone())
	}

	return auctions, bids, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
