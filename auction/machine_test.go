package auction_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowbid/shadowbid/auction"
	"github.com/shadowbid/shadowbid/ledger"
	"github.com/shadowbid/shadowbid/testutil"
)

func TestCreate_ValidatesWindow(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	_, err := h.Machine.Create("alice", auction.CreateParams{
		AuctionID: 1,
		Asset:     testutil.TestAsset,
		StartTime: 2_000,
		EndTime:   2_000,
		ItemName:  "item",
	})
	require.ErrorIs(t, err, auction.ErrInvalidTimeRange)

	_, err = h.Machine.Create("alice", auction.CreateParams{
		AuctionID: 1,
		Asset:     testutil.TestAsset,
		StartTime: 900,
		EndTime:   2_000,
		ItemName:  "item",
	})
	require.ErrorIs(t, err, auction.ErrStartTimeInPast)
}

func TestCreate_ValidatesItemMetadata(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	_, err := h.Machine.Create("alice", auction.CreateParams{
		AuctionID: 1,
		Asset:     testutil.TestAsset,
		StartTime: 1_100,
		EndTime:   2_000,
		ItemName:  strings.Repeat("x", auction.MaxItemNameLen+1),
	})
	require.ErrorIs(t, err, auction.ErrNameTooLong)

	_, err = h.Machine.Create("alice", auction.CreateParams{
		AuctionID:       1,
		Asset:           testutil.TestAsset,
		StartTime:       1_100,
		EndTime:         2_000,
		ItemName:        "item",
		ItemDescription: strings.Repeat("x", auction.MaxItemDescriptionLen+1),
	})
	require.ErrorIs(t, err, auction.ErrDescriptionTooLong)
}

func TestCreate_RejectsDuplicateID(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	h.CreateAuction(t, "alice", testutil.WithAuctionID(7))

	_, err := h.Machine.Create("alice", auction.CreateParams{
		AuctionID: 7,
		Asset:     testutil.TestAsset,
		StartTime: 1_100,
		EndTime:   2_000,
		ItemName:  "item",
	})
	require.ErrorIs(t, err, auction.ErrAuctionExists)

	// A different authority may reuse the ID.
	_, err = h.Machine.Create("bob", auction.CreateParams{
		AuctionID: 7,
		Asset:     testutil.TestAsset,
		StartTime: 1_100,
		EndTime:   2_000,
		ItemName:  "item",
	})
	require.NoError(t, err)
}

func TestCreate_AddressIsDerived(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	addr := h.CreateAuction(t, "alice", testutil.WithAuctionID(3))
	require.Equal(t, ledger.DeriveAuctionAddress("alice", 3), addr)

	record, err := h.Machine.Auction(addr)
	require.NoError(t, err)
	require.Equal(t, auction.AuctionPending, record.Status)
	require.NotEmpty(t, record.SessionID)
}

func TestStart_Gates(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	addr := h.CreateAuction(t, "alice", testutil.WithWindow(1_100, 2_000))

	require.ErrorIs(t, h.Machine.Start("mallory", addr), auction.ErrUnauthorized)
	require.ErrorIs(t, h.Machine.Start("alice", addr), auction.ErrTooEarlyToStart)

	clock.Set(1_100)
	require.NoError(t, h.Machine.Start("alice", addr))
	require.ErrorIs(t, h.Machine.Start("alice", addr), auction.ErrAuctionAlreadyStarted)

	record, err := h.Machine.Auction(addr)
	require.NoError(t, err)
	require.Equal(t, auction.AuctionActive, record.Status)
}

// Scenario: two bids above reserve land in escrow together.
func TestPlaceBid_AccumulatesEscrow(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	addr := h.CreateAuction(t, "alice", testutil.WithReserve(100))
	h.StartAuction(t, "alice", addr)

	h.PlaceSealedBid(t, "bidder1", addr, 150, 150)
	h.PlaceSealedBid(t, "bidder2", addr, 200, 200)

	record, err := h.Machine.Auction(addr)
	require.NoError(t, err)
	require.Equal(t, uint32(2), record.TotalBids)

	balance, err := h.Machine.EscrowBalance(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(350), balance)

	// Deposits left the bidder accounts.
	require.Equal(t, uint64(0), h.Balance("bidder1"))
	require.Equal(t, uint64(0), h.Balance("bidder2"))
}

func TestPlaceBid_BelowReserve(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	addr := h.CreateAuction(t, "alice", testutil.WithReserve(100))
	h.StartAuction(t, "alice", addr)

	h.Fund("bidder1", 50)
	_, err := h.Machine.PlaceBid("bidder1", addr, 50, h.SealBid(t, addr, 50))
	require.ErrorIs(t, err, auction.ErrBidBelowReserve)

	balance, escErr := h.Machine.EscrowBalance(addr)
	require.NoError(t, escErr)
	require.Equal(t, uint64(0), balance)
	require.Equal(t, uint64(50), h.Balance("bidder1"))

	record, err := h.Machine.Auction(addr)
	require.NoError(t, err)
	require.Equal(t, uint32(0), record.TotalBids)
}

func TestPlaceBid_RequiresActiveAuction(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	addr := h.CreateAuction(t, "alice", testutil.WithWindow(1_100, 2_000))

	h.Fund("bidder1", 100)
	_, err := h.Machine.PlaceBid("bidder1", addr, 100, h.SealBid(t, addr, 100))
	require.ErrorIs(t, err, auction.ErrAuctionNotActive)
}

func TestPlaceBid_RejectsAfterEndTime(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	addr := h.CreateAuction(t, "alice", testutil.WithWindow(1_100, 2_000))
	h.StartAuction(t, "alice", addr)

	clock.Set(2_000)
	h.Fund("bidder1", 100)
	_, err := h.Machine.PlaceBid("bidder1", addr, 100, h.SealBid(t, addr, 100))
	require.ErrorIs(t, err, auction.ErrAuctionEnded)
}

func TestPlaceBid_RejectsEmptyEnvelope(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	addr := h.CreateAuction(t, "alice")
	h.StartAuction(t, "alice", addr)

	h.Fund("bidder1", 100)
	_, err := h.Machine.PlaceBid("bidder1", addr, 100, nil)
	require.ErrorIs(t, err, auction.ErrInvalidEncryptedBid)
}

func TestPlaceBid_RejectsDuplicateBidder(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	addr := h.CreateAuction(t, "alice")
	h.StartAuction(t, "alice", addr)

	h.PlaceSealedBid(t, "bidder1", addr, 150, 150)

	h.Fund("bidder1", 200)
	_, err := h.Machine.PlaceBid("bidder1", addr, 200, h.SealBid(t, addr, 200))
	require.ErrorIs(t, err, auction.ErrBidAlreadyProcessed)

	// The original bid record and escrow are untouched.
	bid, err := h.Machine.Bid(addr, "bidder1")
	require.NoError(t, err)
	require.Equal(t, uint64(150), bid.DepositedAmount)

	balance, err := h.Machine.EscrowBalance(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(150), balance)
}

func TestPlaceBid_InsufficientFunds(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	addr := h.CreateAuction(t, "alice")
	h.StartAuction(t, "alice", addr)

	h.Fund("bidder1", 99)
	_, err := h.Machine.PlaceBid("bidder1", addr, 100, h.SealBid(t, addr, 100))
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	// A failed transfer leaves no bid record behind.
	_, err = h.Machine.Bid(addr, "bidder1")
	require.ErrorIs(t, err, auction.ErrBidNotFound)

	record, err := h.Machine.Auction(addr)
	require.NoError(t, err)
	require.Equal(t, uint32(0), record.TotalBids)
}

func TestCancel_PendingWithoutBids(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	addr := h.CreateAuction(t, "alice")
	require.NoError(t, h.Machine.Cancel("alice", addr))

	record, err := h.Machine.Auction(addr)
	require.NoError(t, err)
	require.Equal(t, auction.AuctionCancelled, record.Status)

	// Terminal: cannot cancel again, cannot start.
	require.ErrorIs(t, h.Machine.Cancel("alice", addr), auction.ErrCannotCancelClosed)
	require.ErrorIs(t, h.Machine.Start("alice", addr), auction.ErrAuctionAlreadyStarted)
}

func TestCancel_ActiveWithBids(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	addr := h.CreateAuction(t, "alice")
	h.StartAuction(t, "alice", addr)
	h.PlaceSealedBid(t, "bidder1", addr, 150, 150)

	require.ErrorIs(t, h.Machine.Cancel("alice", addr), auction.ErrCannotCancelWithBids)
}

func TestCancel_Unauthorized(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	addr := h.CreateAuction(t, "alice")
	require.ErrorIs(t, h.Machine.Cancel("mallory", addr), auction.ErrUnauthorized)
}

func TestAuctions_Filters(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	first := h.CreateAuction(t, "alice")
	second := h.CreateAuction(t, "bob")
	h.CreateAuction(t, "alice")

	h.StartAuction(t, "alice", first)
	h.StartAuction(t, "bob", second)
	h.PlaceSealedBid(t, "carol", second, 150, 150)

	require.Len(t, h.Machine.Auctions(auction.ListFilter{}), 3)

	byAuthority := h.Machine.Auctions(auction.ListFilter{Authority: "alice"})
	require.Len(t, byAuthority, 2)

	active := auction.AuctionActive
	byStatus := h.Machine.Auctions(auction.ListFilter{Status: &active})
	require.Len(t, byStatus, 2)

	byBidder := h.Machine.Auctions(auction.ListFilter{Bidder: "carol"})
	require.Len(t, byBidder, 1)
	require.Equal(t, second, byBidder[0].Address)
}

func TestAuctionBids_SubmissionOrder(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	addr := h.CreateAuction(t, "alice")
	h.StartAuction(t, "alice", addr)

	h.PlaceSealedBid(t, "bidder1", addr, 150, 150)
	h.PlaceSealedBid(t, "bidder2", addr, 200, 200)
	h.PlaceSealedBid(t, "bidder3", addr, 120, 120)

	bids, err := h.Machine.AuctionBids(addr)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	require.Equal(t, ledger.Identity("bidder1"), bids[0].Bidder)
	require.Equal(t, ledger.Identity("bidder2"), bids[1].Bidder)
	require.Equal(t, ledger.Identity("bidder3"), bids[2].Bidder)
}

func TestRestore_RebuildsState(t *testing.T) {
	clock := testutil.NewManualClock(1_000)
	h := testutil.NewHarness(t, clock)

	addr := h.CreateAuction(t, "alice")
	h.StartAuction(t, "alice", addr)
	h.PlaceSealedBid(t, "bidder1", addr, 150, 150)
	h.PlaceSealedBid(t, "bidder2", addr, 200, 200)

	record, err := h.Machine.Auction(addr)
	require.NoError(t, err)
	bids, err := h.Machine.AuctionBids(addr)
	require.NoError(t, err)

	fresh := auction.NewStateMachine(h.Ledger, clock, auction.NewBus())
	fresh.Restore([]*auction.AuctionRecord{record}, bids)

	restored, err := fresh.Auction(addr)
	require.NoError(t, err)
	require.Equal(t, record, restored)

	restoredBids, err := fresh.AuctionBids(addr)
	require.NoError(t, err)
	require.Equal(t, bids, restoredBids)
}
