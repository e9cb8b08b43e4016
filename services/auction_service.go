package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shadowbid/shadowbid/auction"
	"github.com/shadowbid/shadowbid/ledger"
	"github.com/shadowbid/shadowbid/metrics"
)

// AuctionService owns the state machine and settlement engine and keeps the
// record store in step with them. Every mutating method persists the touched
// records after the in-memory transition commits; a persist failure is
// logged and surfaced, but the in-memory state is already authoritative for
// this process.
type AuctionService struct {
	log     *slog.Logger
	machine *auction.StateMachine
	engine  *auction.SettlementEngine
	store   RecordStore
	metrics *metrics.MetricsServer
}

// NewAuctionService builds the service from its configuration and restores
// any persisted records into the state machine.
func NewAuctionService(config *ServiceConfig, log *slog.Logger) (*AuctionService, error) {
	if config.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	store := config.Store
	if store == nil {
		store = NewInMemoryStore()
	}

	machine := auction.NewStateMachine(config.Ledger, config.Clock, auction.NewBus())
	engine := auction.NewSettlementEngine(machine, config.Oracle, config.Verifier)

	auctions, bids, err := store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("loading persisted records: %w", err)
	}
	if len(auctions) > 0 || len(bids) > 0 {
		machine.Restore(auctions, bids)
		log.Info("restored persisted state", "auctions", len(auctions), "bids", len(bids))
	}

	return &AuctionService{
		log:     log,
		machine: machine,
		engine:  engine,
		store:   store,
		metrics: config.Metrics,
	}, nil
}

// Machine exposes the underlying state machine for queries and tests.
func (s *AuctionService) Machine() *auction.StateMachine { return s.machine }

// Bus returns the event bus shared with the state machine.
func (s *AuctionService) Bus() *auction.Bus { return s.machine.Bus() }

// Create registers a new auction for the caller.
func (s *AuctionService) Create(caller ledger.Identity, req *CreateAuctionRequest) (*auction.AuctionRecord, string, error) {
	record, err := s.machine.Create(caller, auction.CreateParams{
		AuctionID:       req.AuctionID,
		Asset:           req.Asset,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		ReservePrice:    req.ReservePrice,
		ItemName:        req.ItemName,
		ItemDescription: req.ItemDescription,
	})
	s.record("create", err)
	if err != nil {
		return nil, "", err
	}

	s.persistAuction(record.Address)
	return record, uuid.NewString(), nil
}

// Start activates a pending auction.
func (s *AuctionService) Start(caller ledger.Identity, addr ledger.Address) (string, error) {
	err := s.machine.Start(caller, addr)
	s.record("start", err)
	if err != nil {
		return "", err
	}

	s.persistAuction(addr)
	return uuid.NewString(), nil
}

// PlaceBid escrows the caller's deposit and records their sealed bid.
func (s *AuctionService) PlaceBid(caller ledger.Identity, addr ledger.Address, req *PlaceBidRequest) (*auction.BidRecord, string, error) {
	bid, err := s.machine.PlaceBid(caller, addr, req.Deposit, req.SealedBid)
	s.record("place_bid", err)
	if err != nil {
		return nil, "", err
	}

	s.persistAuction(addr)
	s.persistBid(bid)
	if s.metrics != nil {
		if record, lookupErr := s.machine.Auction(addr); lookupErr == nil {
			s.metrics.AddEscrowed(record.Asset, float64(req.Deposit))
		}
	}
	return bid, uuid.NewString(), nil
}

// Close ends an active auction and fixes the winner, consulting the oracle
// when no result is supplied.
func (s *AuctionService) Close(ctx context.Context, caller ledger.Identity, addr ledger.Address, result *auction.OracleResult) (string, error) {
	err := s.engine.Close(ctx, caller, addr, result)
	s.record("close", err)
	if err != nil {
		return "", err
	}

	s.persistResolution(addr)
	return uuid.NewString(), nil
}

// Resolve applies an oracle callback result to an auction.
func (s *AuctionService) Resolve(addr ledger.Address, result *auction.OracleResult) (string, error) {
	err := s.engine.Resolve(addr, result)
	s.record("resolve", err)
	if err != nil {
		return "", err
	}

	s.persistResolution(addr)
	return uuid.NewString(), nil
}

// Settle releases the winning deposit to the auction authority.
func (s *AuctionService) Settle(addr ledger.Address) (uint64, string, error) {
	amount, err := s.engine.Settle(addr)
	s.record("settle", err)
	if err != nil {
		return 0, "", err
	}

	s.persistResolution(addr)
	if s.metrics != nil {
		if record, lookupErr := s.machine.Auction(addr); lookupErr == nil {
			s.metrics.AddEscrowed(record.Asset, -float64(amount))
		}
	}
	return amount, uuid.NewString(), nil
}

// Refund returns a losing bidder's deposit out of escrow.
func (s *AuctionService) Refund(addr ledger.Address, bidder ledger.Identity) (uint64, string, error) {
	amount, err := s.engine.Refund(addr, bidder)
	s.record("refund", err)
	if err != nil {
		return 0, "", err
	}

	if bid, lookupErr := s.machine.Bid(addr, bidder); lookupErr == nil {
		s.persistBid(bid)
	}
	if s.metrics != nil {
		if record, lookupErr := s.machine.Auction(addr); lookupErr == nil {
			s.metrics.AddEscrowed(record.Asset, -float64(amount))
		}
	}
	return amount, uuid.NewString(), nil
}

// Cancel withdraws a pending or bidless active auction.
func (s *AuctionService) Cancel(caller ledger.Identity, addr ledger.Address) (string, error) {
	err := s.machine.Cancel(caller, addr)
	s.record("cancel", err)
	if err != nil {
		return "", err
	}

	s.persistAuction(addr)
	return uuid.NewString(), nil
}

// CloseStore releases the record store.
func (s *AuctionService) CloseStore() error {
	return s.store.Close()
}

func (s *AuctionService) record(operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordOperation(operation, err)
	}
}

func (s *AuctionService) persistAuction(addr ledger.Address) {
	record, err := s.machine.Auction(addr)
	if err != nil {
		return
	}
	if err := s.store.SaveAuction(record); err != nil {
		s.log.Error("persisting auction record", "auction", addr.String(), "err", err)
	}
}

// persistResolution saves the auction and all of its bids; resolution and
// settlement touch bid statuses in bulk.
func (s *AuctionService) persistResolution(addr ledger.Address) {
	s.persistAuction(addr)
	bids, err := s.machine.AuctionBids(addr)
	if err != nil {
		return
	}
	for _, bid := range bids {
		s.persistBid(bid)
	}
}

func (s *AuctionService) persistBid(bid *auction.BidRecord) {
	if err := s.store.SaveBid(bid); err != nil {
		s.log.Error("persisting bid record", "bid", bid.Address.String(), "err", err)
	}
}
