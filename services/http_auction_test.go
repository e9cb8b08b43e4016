package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/shadowbid/shadowbid/auction"
	"github.com/shadowbid/shadowbid/ledger"
	"github.com/shadowbid/shadowbid/oracle"
	"github.com/shadowbid/shadowbid/testutil"
)

type testEnv struct {
	clock   *testutil.ManualClock
	ledger  *ledger.InMemoryLedger
	oracle  *oracle.SimulatedOracle
	store   *InMemoryStore
	service *AuctionService
	router  chi.Router
}

func setupTestService(t *testing.T) *testEnv {
	t.Helper()

	clock := testutil.NewManualClock(1_000)
	led := ledger.NewInMemoryLedger()
	store := NewInMemoryStore()

	sim, err := oracle.NewSimulatedOracle()
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	service, err := NewAuctionService(&ServiceConfig{
		Ledger:   led,
		Clock:    clock,
		Store:    store,
		Oracle:   sim,
		Verifier: sim.Verifier(),
	}, log)
	require.NoError(t, err)

	router := chi.NewRouter()
	NewHTTPAuctionService(service, log).RegisterRoutes(router)

	return &testEnv{
		clock:   clock,
		ledger:  led,
		oracle:  sim,
		store:   store,
		service: service,
		router:  router,
	}
}

func (env *testEnv) do(t *testing.T, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, payload)
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) createAuction(t *testing.T, authority string) string {
	t.Helper()

	rec := env.do(t, "POST", "/auctions", authority, CreateAuctionRequest{
		AuctionID:    1,
		Asset:        testutil.TestAsset,
		StartTime:    1_100,
		EndTime:      2_000,
		ReservePrice: 100,
		ItemName:     "test item",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp MutationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.TxID)
	return resp.Address
}

func (env *testEnv) sealBid(t *testing.T, addr string, value uint64) []byte {
	t.Helper()

	parsed, err := ledger.ParseAddress(addr)
	require.NoError(t, err)
	record, err := env.service.Machine().Auction(parsed)
	require.NoError(t, err)

	sealed, err := oracle.Seal(env.oracle.ExchangeKey(), record.SessionID, value)
	require.NoError(t, err)
	return sealed
}

func (env *testEnv) placeBid(t *testing.T, addr, bidder string, value, deposit uint64) {
	t.Helper()

	env.ledger.Credit(ledger.AccountAddress(ledger.Identity(bidder)), testutil.TestAsset, deposit)
	rec := env.do(t, "POST", "/auctions/"+addr+"/bids", bidder, PlaceBidRequest{
		Deposit:   deposit,
		SealedBid: env.sealBid(t, addr, value),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestHTTP_CreateRequiresCaller(t *testing.T) {
	env := setupTestService(t)

	rec := env.do(t, "POST", "/auctions", "", CreateAuctionRequest{
		Asset:     testutil.TestAsset,
		StartTime: 1_100,
		EndTime:   2_000,
		ItemName:  "item",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_CreateValidatesBody(t *testing.T) {
	env := setupTestService(t)

	rec := env.do(t, "POST", "/auctions", "alice", CreateAuctionRequest{
		Asset:     testutil.TestAsset,
		StartTime: 1_100,
		EndTime:   2_000,
		ItemName:  strings.Repeat("x", 65),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	require.Contains(t, apiErr.Error, "validation failed")
}

func TestHTTP_UnknownAuctionIs404(t *testing.T) {
	env := setupTestService(t)

	missing := ledger.DeriveAuctionAddress("nobody", 99).String()
	rec := env.do(t, "GET", "/auctions/"+missing, "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_InvalidAddressIs400(t *testing.T) {
	env := setupTestService(t)

	rec := env.do(t, "GET", "/auctions/not-an-address", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_StartGates(t *testing.T) {
	env := setupTestService(t)
	addr := env.createAuction(t, "alice")

	// Too early for the window.
	rec := env.do(t, "POST", "/auctions/"+addr+"/start", "alice", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	env.clock.Set(1_100)
	rec = env.do(t, "POST", "/auctions/"+addr+"/start", "mallory", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, "POST", "/auctions/"+addr+"/start", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTP_BidBelowReserve(t *testing.T) {
	env := setupTestService(t)
	addr := env.createAuction(t, "alice")
	env.clock.Set(1_100)
	env.do(t, "POST", "/auctions/"+addr+"/start", "alice", nil)

	env.ledger.Credit(ledger.AccountAddress("bob"), testutil.TestAsset, 50)
	rec := env.do(t, "POST", "/auctions/"+addr+"/bids", "bob", PlaceBidRequest{
		Deposit:   50,
		SealedBid: env.sealBid(t, addr, 50),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_BidWithoutFunds(t *testing.T) {
	env := setupTestService(t)
	addr := env.createAuction(t, "alice")
	env.clock.Set(1_100)
	env.do(t, "POST", "/auctions/"+addr+"/start", "alice", nil)

	rec := env.do(t, "POST", "/auctions/"+addr+"/bids", "bob", PlaceBidRequest{
		Deposit:   150,
		SealedBid: env.sealBid(t, addr, 150),
	})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
}

// Full lifecycle through the HTTP surface: create, start, bid, close via
// the oracle, settle, refund.
func TestHTTP_FullLifecycle(t *testing.T) {
	env := setupTestService(t)
	addr := env.createAuction(t, "alice")

	env.clock.Set(1_100)
	rec := env.do(t, "POST", "/auctions/"+addr+"/start", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env.placeBid(t, addr, "bidder1", 150, 150)
	env.placeBid(t, addr, "bidder2", 200, 200)

	rec = env.do(t, "GET", "/auctions/"+addr+"/bids", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bids BidListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bids))
	require.Len(t, bids.Bids, 2)

	rec = env.do(t, "GET", "/auctions/"+addr+"/escrow", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var escrow EscrowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &escrow))
	require.Equal(t, uint64(350), escrow.Balance)

	// Close after the window; the oracle picks bidder2.
	env.clock.Set(2_000)
	rec = env.do(t, "POST", "/auctions/"+addr+"/close", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, "GET", "/auctions/"+addr, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var record auction.AuctionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	require.Equal(t, auction.AuctionClosed, record.Status)
	require.Equal(t, ledger.Identity("bidder2"), record.Winner)

	rec = env.do(t, "POST", "/auctions/"+addr+"/settle", "anyone", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var settled SettleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settled))
	require.Equal(t, uint64(200), settled.Amount)
	require.Equal(t, ledger.Identity("bidder2"), settled.Winner)

	// Settle replay is a conflict, not a second transfer.
	rec = env.do(t, "POST", "/auctions/"+addr+"/settle", "anyone", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, "POST", "/auctions/"+addr+"/refund/bidder1", "anyone", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var refunded RefundResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refunded))
	require.Equal(t, uint64(150), refunded.Amount)

	rec = env.do(t, "POST", "/auctions/"+addr+"/refund/bidder2", "anyone", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, "GET", "/auctions/"+addr+"/escrow", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &escrow))
	require.Equal(t, uint64(0), escrow.Balance)
}

func TestHTTP_ListFilters(t *testing.T) {
	env := setupTestService(t)
	addr := env.createAuction(t, "alice")
	env.clock.Set(1_100)
	env.do(t, "POST", "/auctions/"+addr+"/start", "alice", nil)
	env.placeBid(t, addr, "bidder1", 150, 150)

	rec := env.do(t, "GET", "/auctions?status=active", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list AuctionListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Auctions, 1)

	rec = env.do(t, "GET", "/auctions?status=pending", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Empty(t, list.Auctions)

	rec = env.do(t, "GET", "/auctions?status=bogus", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "GET", "/bids?bidder=bidder1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bids BidListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bids))
	require.Len(t, bids.Bids, 1)
}

func TestHTTP_ResolveCallback(t *testing.T) {
	env := setupTestService(t)
	addr := env.createAuction(t, "alice")
	env.clock.Set(1_100)
	env.do(t, "POST", "/auctions/"+addr+"/start", "alice", nil)
	env.placeBid(t, addr, "bidder1", 150, 150)

	parsed, err := ledger.ParseAddress(addr)
	require.NoError(t, err)
	record, err := env.service.Machine().Auction(parsed)
	require.NoError(t, err)

	sealed, err := env.service.Machine().SealedBids(parsed)
	require.NoError(t, err)
	result, err := env.oracle.Resolve(context.Background(), &auction.OracleRequest{
		SessionID: record.SessionID,
		Bids:      sealed,
	})
	require.NoError(t, err)

	// The callback path needs no elapsed window, but the proof must hold.
	rec := env.do(t, "POST", "/auctions/"+addr+"/resolve", "", ResolveRequest{Result: result})
	require.Equal(t, http.StatusOK, rec.Code)

	forged := *result
	forged.WinningAmount = 1
	rec = env.do(t, "POST", "/auctions/"+addr+"/resolve", "", ResolveRequest{Result: &forged})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHTTP_EventStream(t *testing.T) {
	env := setupTestService(t)

	rec := env.do(t, "GET", "/events/auction-exploded", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), "GET", srv.URL+"/events/auction-created", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	env.createAuction(t, "alice")

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), "event: auction-created")
}
