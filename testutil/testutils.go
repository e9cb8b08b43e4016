package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowbid/shadowbid/auction"
	"github.com/shadowbid/shadowbid/ledger"
	"github.com/shadowbid/shadowbid/oracle"
)

// ManualClock is a Clock driven explicitly by the test.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock creates a clock fixed at the given unix time.
func NewManualClock(now int64) *ManualClock {
	return &ManualClock{now: now}
}

// Now returns the current manual time.
func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to an absolute time.
func (c *ManualClock) Set(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(d int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// TestAsset is the escrow asset used by harness auctions.
const TestAsset = "credits"

// Harness wires a state machine, settlement engine and simulated oracle
// together for tests.
type Harness struct {
	Clock   *ManualClock
	Ledger  *ledger.InMemoryLedger
	Machine *auction.StateMachine
	Engine  *auction.SettlementEngine
	Oracle  *oracle.SimulatedOracle

	nextID uint64
}

// NewHarness creates a harness with a fresh ledger and oracle.
func NewHarness(t testing.TB, clock *ManualClock) *Harness {
	t.Helper()

	sim, err := oracle.NewSimulatedOracle()
	require.NoError(t, err)

	led := ledger.NewInMemoryLedger()
	machine := auction.NewStateMachine(led, clock, auction.NewBus())
	engine := auction.NewSettlementEngine(machine, sim, sim.Verifier())

	return &Harness{
		Clock:   clock,
		Ledger:  led,
		Machine: machine,
		Engine:  engine,
		Oracle:  sim,
		nextID:  1,
	}
}

// AuctionOption customizes harness-created auctions.
type AuctionOption func(*auction.CreateParams)

// WithWindow sets the bidding window.
func WithWindow(start, end int64) AuctionOption {
	return func(p *auction.CreateParams) {
		p.StartTime = start
		p.EndTime = end
	}
}

// WithReserve sets the reserve price.
func WithReserve(reserve uint64) AuctionOption {
	return func(p *auction.CreateParams) {
		p.ReservePrice = reserve
	}
}

// WithAuctionID overrides the auto-assigned auction ID.
func WithAuctionID(id uint64) AuctionOption {
	return func(p *auction.CreateParams) {
		p.AuctionID = id
	}
}

// WithItem sets the item metadata.
func WithItem(name, description string) AuctionOption {
	return func(p *auction.CreateParams) {
		p.ItemName = name
		p.ItemDescription = description
	}
}

// CreateAuction creates an auction with a window opening 100 seconds from
// the clock's current time and closing 1000 seconds after that.
func (h *Harness) CreateAuction(t testing.TB, authority ledger.Identity, opts ...AuctionOption) ledger.Address {
	t.Helper()

	now := h.Clock.Now()
	params := auction.CreateParams{
		AuctionID: h.nextID,
		Asset:     TestAsset,
		StartTime: now + 100,
		EndTime:   now + 1100,
		ItemName:  "test item",
	}
	h.nextID++
	for _, opt := range opts {
		opt(&params)
	}

	record, err := h.Machine.Create(authority, params)
	require.NoError(t, err)
	return record.Address
}

// StartAuction activates an auction, moving the clock to its start time
// first if necessary.
func (h *Harness) StartAuction(t testing.TB, authority ledger.Identity, addr ledger.Address) {
	t.Helper()

	record, err := h.Machine.Auction(addr)
	require.NoError(t, err)
	if h.Clock.Now() < record.StartTime {
		h.Clock.Set(record.StartTime)
	}
	require.NoError(t, h.Machine.Start(authority, addr))
}

// Fund credits an identity's account with the test asset.
func (h *Harness) Fund(identity ledger.Identity, amount uint64) {
	h.Ledger.Credit(ledger.AccountAddress(identity), TestAsset, amount)
}

// Balance returns an identity's account balance in the test asset.
func (h *Harness) Balance(identity ledger.Identity) uint64 {
	return h.Ledger.Balance(ledger.AccountAddress(identity), TestAsset)
}

// SealBid seals a bid value against the harness oracle for the auction's
// session.
func (h *Harness) SealBid(t testing.TB, addr ledger.Address, value uint64) []byte {
	t.Helper()

	record, err := h.Machine.Auction(addr)
	require.NoError(t, err)

	sealed, err := oracle.Seal(h.Oracle.ExchangeKey(), record.SessionID, value)
	require.NoError(t, err)
	return sealed
}

// PlaceSealedBid funds the bidder with the deposit, seals the value and
// places the bid.
func (h *Harness) PlaceSealedBid(t testing.TB, bidder ledger.Identity, addr ledger.Address, value, deposit uint64) *auction.BidRecord {
	t.Helper()

	h.Fund(bidder, deposit)
	bid, err := h.Machine.PlaceBid(bidder, addr, deposit, h.SealBid(t, addr, value))
	require.NoError(t, err)
	return bid
}
