package auction

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shadowbid/shadowbid/ledger"
)

// Item metadata bounds. Display-only strings; validated, not interpreted.
const (
	MaxItemNameLen        = 64
	MaxItemDescriptionLen = 256
)

// AuctionStatus is the lifecycle state of an auction record.
type AuctionStatus uint8

const (
	AuctionPending AuctionStatus = iota
	AuctionActive
	AuctionClosed
	AuctionCancelled
)

// String returns the lowercase name of the status.
func (s AuctionStatus) String() string {
	switch s {
	case AuctionPending:
		return "pending"
	case AuctionActive:
		return "active"
	case AuctionClosed:
		return "closed"
	case AuctionCancelled:
		return "cancelled"
	}
	return "unknown"
}

// ParseAuctionStatus converts a status name back to its variant.
func ParseAuctionStatus(s string) (AuctionStatus, bool) {
	switch s {
	case "pending":
		return AuctionPending, true
	case "active":
		return AuctionActive, true
	case "closed":
		return AuctionClosed, true
	case "cancelled":
		return AuctionCancelled, true
	}
	return 0, false
}

// Terminal reports whether no further lifecycle transitions are possible.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionClosed || s == AuctionCancelled
}

// MarshalJSON encodes the status by name.
func (s AuctionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name.
func (s *AuctionStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, ok := ParseAuctionStatus(name)
	if !ok {
		return fmt.Errorf("unknown auction status %q", name)
	}
	*s = parsed
	return nil
}

// BidStatus is the lifecycle state of a bid record. It moves strictly
// forward: Active -> Won|Lost, Lost -> Refunded. A winner's terminal status
// is Won; its funds leave escrow through settlement, never refund.
type BidStatus uint8

const (
	BidActive BidStatus = iota
	BidWon
	BidLost
	BidRefunded
)

// String returns the lowercase name of the status.
func (s BidStatus) String() string {
	switch s {
	case BidActive:
		return "active"
	case BidWon:
		return "won"
	case BidLost:
		return "lost"
	case BidRefunded:
		return "refunded"
	}
	return "unknown"
}

// ParseBidStatus converts a status name back to its variant.
func ParseBidStatus(s string) (BidStatus, bool) {
	switch s {
	case "active":
		return BidActive, true
	case "won":
		return BidWon, true
	case "lost":
		return BidLost, true
	case "refunded":
		return BidRefunded, true
	}
	return 0, false
}

// MarshalJSON encodes the status by name.
func (s BidStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name.
func (s *BidStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, ok := ParseBidStatus(name)
	if !ok {
		return fmt.Errorf("unknown bid status %q", name)
	}
	*s = parsed
	return nil
}

// AuctionRecord is the aggregate root for one auction: metadata, timing
// window, reserve price, running bid count, and the settlement outcome once
// resolved. It exclusively owns its bid records and escrow account.
type AuctionRecord struct {
	Address   ledger.Address  `json:"address"`
	AuctionID uint64          `json:"auction_id"`
	Authority ledger.Identity `json:"authority"`

	// Asset is the caller-specified value unit type held in escrow.
	Asset string `json:"asset"`

	StartTime    int64  `json:"start_time"`
	EndTime      int64  `json:"end_time"`
	ReservePrice uint64 `json:"reserve_price"`

	ItemName        string `json:"item_name"`
	ItemDescription string `json:"item_description"`

	Status    AuctionStatus `json:"status"`
	TotalBids uint32        `json:"total_bids"`

	// Winner and HighestBidAmount are populated exactly once, at resolution.
	Winner           ledger.Identity `json:"winner,omitempty"`
	HighestBidAmount uint64          `json:"highest_bid_amount"`

	// SessionID correlates this auction with its oracle computation. Issued
	// at creation, echoed back in the oracle result, checked on resolution
	// to prevent cross-auction replay.
	SessionID string `json:"session_id"`

	CreatedAt int64 `json:"created_at"`
}

// EscrowAddress returns the derived address of the auction's escrow account.
func (a *AuctionRecord) EscrowAddress() ledger.Address {
	return ledger.DeriveEscrowAddress(a.Address)
}

// Clone returns a copy safe to hand out across the lock boundary.
func (a *AuctionRecord) Clone() *AuctionRecord {
	c := *a
	return &c
}

// BidRecord holds one bidder's committed bid for one auction: the disclosed
// deposit that moved into escrow and the sealed value forwarded to the
// oracle. DepositedAmount is immutable after creation.
type BidRecord struct {
	Address ledger.Address  `json:"address"`
	Auction ledger.Address  `json:"auction"`
	Bidder  ledger.Identity `json:"bidder"`

	DepositedAmount uint64 `json:"deposited_amount"`

	// SealedBid is the opaque envelope (ciphertext + validity proof). The
	// core stores and forwards it; only the oracle can read it.
	SealedBid []byte `json:"sealed_bid"`

	// Timestamp records submission time for audit only; it never breaks ties.
	Timestamp int64 `json:"timestamp"`

	Status BidStatus `json:"status"`

	// Released flips when the bid's funds leave escrow, via settlement for
	// the winner or refund for a loser. It is the single-use permission
	// token behind the at-most-once release guarantee.
	Released bool `json:"released"`
}

// Clone returns a copy safe to hand out across the lock boundary.
func (b *BidRecord) Clone() *BidRecord {
	c := *b
	c.SealedBid = append([]byte(nil), b.SealedBid...)
	return &c
}

// Clock supplies logical timestamps (unix seconds) to the state machine.
// Injecting it keeps the temporal gates deterministic in tests.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current unix timestamp.
func (SystemClock) Now() int64 { return time.Now().Unix() }
