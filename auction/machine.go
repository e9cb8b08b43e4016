package auction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shadowbid/shadowbid/ledger"
)

// StateMachine holds the ledger-resident auction and bid records and
// enforces their legal transitions. Every mutating operation is gated on the
// record's current status and the caller's identity, and executes atomically
// under the machine's lock: the ledger transfer is the last fallible step,
// so no operation partially applies its effect and then fails.
type StateMachine struct {
	ledger ledger.Ledger
	clock  Clock
	bus    *Bus

	mu          sync.RWMutex
	auctions    map[ledger.Address]*AuctionRecord
	bids        map[ledger.Address]*BidRecord
	auctionBids map[ledger.Address][]ledger.Address
}

// NewStateMachine creates a state machine backed by the given ledger.
// Events are published on bus after each successful transition.
func NewStateMachine(l ledger.Ledger, clock Clock, bus *Bus) *StateMachine {
	if clock == nil {
		clock = SystemClock{}
	}
	if bus == nil {
		bus = NewBus()
	}
	return &StateMachine{
		ledger:      l,
		clock:       clock,
		bus:         bus,
		auctions:    make(map[ledger.Address]*AuctionRecord),
		bids:        make(map[ledger.Address]*BidRecord),
		auctionBids: make(map[ledger.Address][]ledger.Address),
	}
}

// Bus returns the machine's event bus.
func (m *StateMachine) Bus() *Bus { return m.bus }

// Restore replaces the machine's state with persisted records. Call it
// before serving operations; bids must arrive in submission order so the
// per-auction bid order survives the restart.
func (m *StateMachine) Restore(auctions []*AuctionRecord, bids []*BidRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.auctions = make(map[ledger.Address]*AuctionRecord, len(auctions))
	m.bids = make(map[ledger.Address]*BidRecord, len(bids))
	m.auctionBids = make(map[ledger.Address][]ledger.Address)

	for _, record := range auctions {
		m.auctions[record.Address] = record.Clone()
	}
	for _, record := range bids {
		m.bids[record.Address] = record.Clone()
		m.auctionBids[record.Auction] = append(m.auctionBids[record.Auction], record.Address)
	}
}

// CreateParams carries the caller-chosen auction parameters.
type CreateParams struct {
	AuctionID       uint64
	Asset           string
	StartTime       int64
	EndTime         int64
	ReservePrice    uint64
	ItemName        string
	ItemDescription string
}

// Create allocates a new auction record in Pending status together with its
// escrow account. The auction address derives from (caller, auction_id), so
// reusing an ID under the same authority fails with ErrAuctionExists.
func (m *StateMachine) Create(caller ledger.Identity, params CreateParams) (*AuctionRecord, error) {
	now := m.clock.Now()

	if params.EndTime <= params.StartTime {
		return nil, ErrInvalidTimeRange
	}
	if params.StartTime < now {
		return nil, ErrStartTimeInPast
	}
	if len(params.ItemName) > MaxItemNameLen {
		return nil, ErrNameTooLong
	}
	if len(params.ItemDescription) > MaxItemDescriptionLen {
		return nil, ErrDescriptionTooLong
	}

	addr := ledger.DeriveAuctionAddress(caller, params.AuctionID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.auctions[addr]; exists {
		return nil, fmt.Errorf("auction %d for %s: %w", params.AuctionID, caller, ErrAuctionExists)
	}

	record := &AuctionRecord{
		Address:         addr,
		AuctionID:       params.AuctionID,
		Authority:       caller,
		Asset:           params.Asset,
		StartTime:       params.StartTime,
		EndTime:         params.EndTime,
		ReservePrice:    params.ReservePrice,
		ItemName:        params.ItemName,
		ItemDescription: params.ItemDescription,
		Status:          AuctionPending,
		SessionID:       uuid.NewString(),
		CreatedAt:       now,
	}
	m.auctions[addr] = record

	m.bus.Publish(Event{
		Kind:      EventAuctionCreated,
		Auction:   addr,
		Timestamp: now,
		Payload: AuctionCreatedPayload{
			AuctionID: record.AuctionID,
			Authority: record.Authority,
			StartTime: record.StartTime,
			EndTime:   record.EndTime,
			SessionID: record.SessionID,
		},
	})

	return record.Clone(), nil
}

// Start moves a Pending auction to Active. Only the authority may start its
// auction, and not before the window opens.
func (m *StateMachine) Start(caller ledger.Identity, addr ledger.Address) error {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.auction(addr)
	if err != nil {
		return err
	}
	if record.Authority != caller {
		return ErrUnauthorized
	}
	if record.Status != AuctionPending {
		return ErrAuctionAlreadyStarted
	}
	if now < record.StartTime {
		return ErrTooEarlyToStart
	}

	record.Status = AuctionActive

	m.bus.Publish(Event{
		Kind:      EventAuctionStarted,
		Auction:   addr,
		Timestamp: now,
		Payload:   AuctionStartedPayload{AuctionID: record.AuctionID},
	})

	return nil
}

// PlaceBid moves the caller's deposit into escrow and records their sealed
// bid. It is the only path by which value enters escrow. A second bid from
// the same bidder is rejected, not merged: the original record stays
// untouched and no funds move.
func (m *StateMachine) PlaceBid(caller ledger.Identity, addr ledger.Address, deposit uint64, sealed []byte) (*BidRecord, error) {
	now := m.clock.Now()

	if len(sealed) == 0 {
		return nil, ErrInvalidEncryptedBid
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.auction(addr)
	if err != nil {
		return nil, err
	}
	if record.Status != AuctionActive {
		return nil, ErrAuctionNotActive
	}
	if now < record.StartTime {
		return nil, ErrAuctionNotStarted
	}
	if now >= record.EndTime {
		return nil, ErrAuctionEnded
	}
	if deposit < record.ReservePrice {
		return nil, ErrBidBelowReserve
	}

	bidAddr := ledger.DeriveBidAddress(addr, caller)
	if _, exists := m.bids[bidAddr]; exists {
		return nil, ErrBidAlreadyProcessed
	}

	// Last fallible step: on failure nothing above was recorded.
	if err := m.ledger.Transfer(ledger.AccountAddress(caller), record.EscrowAddress(), record.Asset, deposit); err != nil {
		return nil, err
	}

	bid := &BidRecord{
		Address:         bidAddr,
		Auction:         addr,
		Bidder:          caller,
		DepositedAmount: deposit,
		SealedBid:       append([]byte(nil), sealed...),
		Timestamp:       now,
		Status:          BidActive,
	}
	m.bids[bidAddr] = bid
	m.auctionBids[addr] = append(m.auctionBids[addr], bidAddr)
	record.TotalBids++

	envelopeHash := sha256.Sum256(sealed)
	m.bus.Publish(Event{
		Kind:      EventBidPlaced,
		Auction:   addr,
		Timestamp: now,
		Payload: BidPlacedPayload{
			AuctionID:     record.AuctionID,
			Bidder:        caller,
			SealedBidHash: hex.EncodeToString(envelopeHash[:]),
		},
	})

	return bid.Clone(), nil
}

// Cancel terminates a bid-free auction. Once any bid exists the auction must
// flow through close and settlement instead: reversing escrowed funds
// outside the settle/refund protocol would bypass the at-most-once release
// guarantee.
func (m *StateMachine) Cancel(caller ledger.Identity, addr ledger.Address) error {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.auction(addr)
	if err != nil {
		return err
	}
	if record.Authority != caller {
		return ErrUnauthorized
	}
	if record.Status.Terminal() {
		return ErrCannotCancelClosed
	}
	if record.TotalBids != 0 {
		return ErrCannotCancelWithBids
	}

	record.Status = AuctionCancelled

	m.bus.Publish(Event{
		Kind:      EventAuctionCancelled,
		Auction:   addr,
		Timestamp: now,
		Payload:   AuctionCancelledPayload{AuctionID: record.AuctionID},
	})

	return nil
}

// Auction returns a copy of the auction record at addr.
func (m *StateMachine) Auction(addr ledger.Address) (*AuctionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, err := m.auction(addr)
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// ListFilter narrows Auctions output. Zero values match everything.
type ListFilter struct {
	Status    *AuctionStatus
	Authority ledger.Identity
	// Bidder keeps only auctions the identity has bid on.
	Bidder ledger.Identity
}

// Auctions returns copies of all auction records matching the filter.
func (m *StateMachine) Auctions(filter ListFilter) []*AuctionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*AuctionRecord
	for addr, record := range m.auctions {
		if filter.Status != nil && record.Status != *filter.Status {
			continue
		}
		if filter.Authority != "" && record.Authority != filter.Authority {
			continue
		}
		if filter.Bidder != "" {
			if _, ok := m.bids[ledger.DeriveBidAddress(addr, filter.Bidder)]; !ok {
				continue
			}
		}
		out = append(out, record.Clone())
	}
	return out
}

// Bid returns a copy of the bid record for (auction, bidder).
func (m *StateMachine) Bid(addr ledger.Address, bidder ledger.Identity) (*BidRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bid, ok := m.bids[ledger.DeriveBidAddress(addr, bidder)]
	if !ok {
		return nil, ErrBidNotFound
	}
	return bid.Clone(), nil
}

// AuctionBids returns copies of all bid records under one auction, in
// submission order.
func (m *StateMachine) AuctionBids(addr ledger.Address) ([]*BidRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, err := m.auction(addr); err != nil {
		return nil, err
	}

	bids := make([]*BidRecord, 0, len(m.auctionBids[addr]))
	for _, bidAddr := range m.auctionBids[addr] {
		bids = append(bids, m.bids[bidAddr].Clone())
	}
	return bids, nil
}

// BidderBids returns copies of all bid records a bidder holds across
// auctions.
func (m *StateMachine) BidderBids(bidder ledger.Identity) []*BidRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*BidRecord
	for _, bid := range m.bids {
		if bid.Bidder == bidder {
			out = append(out, bid.Clone())
		}
	}
	return out
}

// SealedBids collects the sealed envelopes of an auction's active bids for
// an oracle request.
func (m *StateMachine) SealedBids(addr ledger.Address) ([]SealedBid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, err := m.auction(addr); err != nil {
		return nil, err
	}

	var out []SealedBid
	for _, bidAddr := range m.auctionBids[addr] {
		bid := m.bids[bidAddr]
		if bid.Status != BidActive {
			continue
		}
		out = append(out, SealedBid{
			Bidder:   bid.Bidder,
			Envelope: append([]byte(nil), bid.SealedBid...),
		})
	}
	return out, nil
}

// EscrowBalance returns the current escrowed value held for an auction.
func (m *StateMachine) EscrowBalance(addr ledger.Address) (uint64, error) {
	m.mu.RLock()
	record, err := m.auction(addr)
	m.mu.RUnlock()
	if err != nil {
		return 0, err
	}
	return m.ledger.Balance(record.EscrowAddress(), record.Asset), nil
}

// auction looks up a record under the caller-held lock.
func (m *StateMachine) auction(addr ledger.Address) (*AuctionRecord, error) {
	record, ok := m.auctions[addr]
	if !ok {
		return nil, ErrAuctionNotFound
	}
	return record, nil
}
