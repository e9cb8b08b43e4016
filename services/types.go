package services

import (
	"github.com/go-playground/validator/v10"

	"github.com/shadowbid/shadowbid/auction"
	"github.com/shadowbid/shadowbid/ledger"
	"github.com/shadowbid/shadowbid/metrics"
)

// validate checks the struct tags on inbound request bodies.
var validate = validator.New()

// ServiceConfig contains configuration for the auction HTTP service.
type ServiceConfig struct {
	Ledger ledger.Ledger
	Clock  auction.Clock
	Store  RecordStore

	Oracle   auction.Oracle
	Verifier auction.ProofVerifier

	Metrics *metrics.MetricsServer
}

// CreateAuctionRequest carries the parameters for a new auction.
type CreateAuctionRequest struct {
	AuctionID       uint64 `json:"auction_id"`
	Asset           string `json:"asset" validate:"required"`
	StartTime       int64  `json:"start_time" validate:"required"`
	EndTime         int64  `json:"end_time" validate:"required"`
	ReservePrice    uint64 `json:"reserve_price"`
	ItemName        string `json:"item_name" validate:"required,max=64"`
	ItemDescription string `json:"item_description" validate:"max=256"`
}

// PlaceBidRequest carries a bidder's escrow deposit and sealed bid envelope.
type PlaceBidRequest struct {
	Deposit   uint64 `json:"deposit" validate:"required,gt=0"`
	SealedBid []byte `json:"sealed_bid" validate:"required"`
}

// CloseAuctionRequest optionally carries a pre-computed oracle result. When
// Result is nil the service consults its configured oracle.
type CloseAuctionRequest struct {
	Result *auction.OracleResult `json:"result,omitempty"`
}

// ResolveRequest delivers an oracle result through the callback endpoint.
type ResolveRequest struct {
	Result *auction.OracleResult `json:"result" validate:"required"`
}

// MutationResponse acknowledges a state transition.
type MutationResponse struct {
	TxID    string `json:"tx_id"`
	Address string `json:"address"`
}

// SettleResponse acknowledges a settlement payout.
type SettleResponse struct {
	TxID    string          `json:"tx_id"`
	Address string          `json:"address"`
	Winner  ledger.Identity `json:"winner"`
	Amount  uint64          `json:"amount"`
}

// RefundResponse acknowledges a loser refund.
type RefundResponse struct {
	TxID    string          `json:"tx_id"`
	Address string          `json:"address"`
	Bidder  ledger.Identity `json:"bidder"`
	Amount  uint64          `json:"amount"`
}

// AuctionListResponse wraps an auction query result.
type AuctionListResponse struct {
	Auctions []*auction.AuctionRecord `json:"auctions"`
}

// BidListResponse wraps a bid query result.
type BidListResponse struct {
	Bids []*auction.BidRecord `json:"bids"`
}

// EscrowResponse reports an auction's escrow account balance.
type EscrowResponse struct {
	Auction string `json:"auction"`
	Escrow  string `json:"escrow"`
	Asset   string `json:"asset"`
	Balance uint64 `json:"balance"`
}

// ErrorResponse carries a machine-readable error back to the caller.
type ErrorResponse struct {
	Error string `json:"error"`
}
