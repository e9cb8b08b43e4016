package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowbid/shadowbid/auction"
	"github.com/shadowbid/shadowbid/ledger"
)

func TestInMemoryStore_UpsertByAddress(t *testing.T) {
	store := NewInMemoryStore()

	record := &auction.AuctionRecord{
		Address:   ledger.DeriveAuctionAddress("alice", 1),
		AuctionID: 1,
		Authority: "alice",
		Status:    auction.AuctionPending,
	}
	require.NoError(t, store.SaveAuction(record))

	record.Status = auction.AuctionActive
	require.NoError(t, store.SaveAuction(record))

	auctions, _, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, auctions, 1)
	require.Equal(t, auction.AuctionActive, auctions[0].Status)
}

func TestInMemoryStore_BidsKeepSubmissionOrder(t *testing.T) {
	store := NewInMemoryStore()
	auctionAddr := ledger.DeriveAuctionAddress("alice", 1)

	for _, bidder := range []ledger.Identity{"zed", "amy", "bob"} {
		require.NoError(t, store.SaveBid(&auction.BidRecord{
			Address: ledger.DeriveBidAddress(auctionAddr, bidder),
			Auction: auctionAddr,
			Bidder:  bidder,
		}))
	}

	_, bids, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, bids, 3)
	require.Equal(t, ledger.Identity("zed"), bids[0].Bidder)
	require.Equal(t, ledger.Identity("amy"), bids[1].Bidder)
	require.Equal(t, ledger.Identity("bob"), bids[2].Bidder)
}

func TestInMemoryStore_SavesCopies(t *testing.T) {
	store := NewInMemoryStore()

	record := &auction.AuctionRecord{
		Address: ledger.DeriveAuctionAddress("alice", 1),
		Status:  auction.AuctionPending,
	}
	require.NoError(t, store.SaveAuction(record))

	// Mutating the caller's record must not leak into the store.
	record.Status = auction.AuctionCancelled

	auctions, _, err := store.LoadAll()
	require.NoError(t, err)
	require.Equal(t, auction.AuctionPending, auctions[0].Status)
}

// A service built over a populated store picks up where the last one left
// off.
func TestAuctionService_RestoresFromStore(t *testing.T) {
	env := setupTestService(t)
	addr := env.createAuction(t, "alice")

	env.clock.Set(1_100)
	rec := env.do(t, "POST", "/auctions/"+addr+"/start", "alice", nil)
	require.Equal(t, 200, rec.Code)
	env.placeBid(t, addr, "bidder1", 150, 150)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	revived, err := NewAuctionService(&ServiceConfig{
		Ledger:   env.ledger,
		Clock:    env.clock,
		Store:    env.store,
		Oracle:   env.oracle,
		Verifier: env.oracle.Verifier(),
	}, log)
	require.NoError(t, err)

	parsed, err := ledger.ParseAddress(addr)
	require.NoError(t, err)

	record, err := revived.Machine().Auction(parsed)
	require.NoError(t, err)
	require.Equal(t, auction.AuctionActive, record.Status)
	require.Equal(t, uint32(1), record.TotalBids)

	bid, err := revived.Machine().Bid(parsed, "bidder1")
	require.NoError(t, err)
	require.Equal(t, uint64(150), bid.DepositedAmount)
	require.NotEmpty(t, bid.SealedBid)

	// The revived machine can finish the auction.
	env.clock.Set(2_000)
	_, err = revived.Close(context.Background(), "alice", parsed, nil)
	require.NoError(t, err)

	balance, err := revived.Machine().EscrowBalance(parsed)
	require.NoError(t, err)
	require.Equal(t, uint64(150), balance)
}
