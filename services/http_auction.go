package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shadowbid/shadowbid/auction"
	"github.com/shadowbid/shadowbid/ledger"
)

// CallerHeader names the request header carrying the caller identity. The
// runtime fronting this service is expected to authenticate the caller and
// stamp the header; the service trusts it the way a ledger program trusts
// a transaction signer.
const CallerHeader = "X-Caller"

// HTTPAuctionService exposes the auction service over HTTP.
type HTTPAuctionService struct {
	log     *slog.Logger
	service *AuctionService
}

// NewHTTPAuctionService wraps an auction service with HTTP endpoints.
func NewHTTPAuctionService(service *AuctionService, log *slog.Logger) *HTTPAuctionService {
	return &HTTPAuctionService{log: log, service: service}
}

// RegisterRoutes registers the auction API route tree.
func (h *HTTPAuctionService) RegisterRoutes(r chi.Router) {
	r.Route("/auctions", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)

		r.Route("/{address}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/start", h.handleStart)
			r.Post("/bids", h.handlePlaceBid)
			r.Get("/bids", h.handleListBids)
			r.Get("/bids/{bidder}", h.handleGetBid)
			r.Get("/escrow", h.handleEscrow)
			r.Post("/close", h.handleClose)
			r.Post("/resolve", h.handleResolve)
			r.Post("/settle", h.handleSettle)
			r.Post("/refund/{bidder}", h.handleRefund)
			r.Post("/cancel", h.handleCancel)
		})
	})

	r.Get("/bids", h.handleBidderBids)
	r.Get("/events/{kind}", h.handleEvents)
}

func (h *HTTPAuctionService) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req CreateAuctionRequest
	if !h.decode(w, r, &req) {
		return
	}

	record, txID, err := h.service.Create(caller, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, struct {
		MutationResponse
		Auction *auction.AuctionRecord `json:"auction"`
	}{
		MutationResponse: MutationResponse{TxID: txID, Address: record.Address.String()},
		Auction:          record,
	})
}

func (h *HTTPAuctionService) handleList(w http.ResponseWriter, r *http.Request) {
	var filter auction.ListFilter

	if name := r.URL.Query().Get("status"); name != "" {
		status, ok := auction.ParseAuctionStatus(name)
		if !ok {
			h.badRequest(w, fmt.Sprintf("unknown status %q", name))
			return
		}
		filter.Status = &status
	}
	if authority := r.URL.Query().Get("authority"); authority != "" {
		filter.Authority = ledger.Identity(authority)
	}
	if bidder := r.URL.Query().Get("bidder"); bidder != "" {
		filter.Bidder = ledger.Identity(bidder)
	}

	h.writeJSON(w, AuctionListResponse{Auctions: h.service.Machine().Auctions(filter)})
}

func (h *HTTPAuctionService) handleGet(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.address(w, r)
	if !ok {
		return
	}

	record, err := h.service.Machine().Auction(addr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, record)
}

func (h *HTTPAuctionService) handleStart(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	addr, ok := h.address(w, r)
	if !ok {
		return
	}

	txID, err := h.service.Start(caller, addr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, MutationResponse{TxID: txID, Address: addr.String()})
}

func (h *HTTPAuctionService) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	addr, ok := h.address(w, r)
	if !ok {
		return
	}

	var req PlaceBidRequest
	if !h.decode(w, r, &req) {
		return
	}

	bid, txID, err := h.service.PlaceBid(caller, addr, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, struct {
		MutationResponse
		Bid *auction.BidRecord `json:"bid"`
	}{
		MutationResponse: MutationResponse{TxID: txID, Address: bid.Address.String()},
		Bid:              bid,
	})
}

func (h *HTTPAuctionService) handleListBids(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.address(w, r)
	if !ok {
		return
	}

	bids, err := h.service.Machine().AuctionBids(addr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, BidListResponse{Bids: bids})
}

func (h *HTTPAuctionService) handleEscrow(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.address(w, r)
	if !ok {
		return
	}

	record, err := h.service.Machine().Auction(addr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	balance, err := h.service.Machine().EscrowBalance(addr)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, EscrowResponse{
		Auction: addr.String(),
		Escrow:  record.EscrowAddress().String(),
		Asset:   record.Asset,
		Balance: balance,
	})
}

func (h *HTTPAuctionService) handleClose(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	addr, ok := h.address(w, r)
	if !ok {
		return
	}

	// The close body is optional; absent means "consult the oracle".
	var req CloseAuctionRequest
	if r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return
		}
	}

	txID, err := h.service.Close(r.Context(), caller, addr, req.Result)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, MutationResponse{TxID: txID, Address: addr.String()})
}

func (h *HTTPAuctionService) handleResolve(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.address(w, r)
	if !ok {
		return
	}

	var req ResolveRequest
	if !h.decode(w, r, &req) {
		return
	}

	txID, err := h.service.Resolve(addr, req.Result)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, MutationResponse{TxID: txID, Address: addr.String()})
}

func (h *HTTPAuctionService) handleSettle(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.address(w, r)
	if !ok {
		return
	}

	amount, txID, err := h.service.Settle(addr)
	if err != nil {
		h.writeError(w, err)
		return
	}

	record, err := h.service.Machine().Auction(addr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, SettleResponse{
		TxID:    txID,
		Address: addr.String(),
		Winner:  record.Winner,
		Amount:  amount,
	})
}

func (h *HTTPAuctionService) handleRefund(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.address(w, r)
	if !ok {
		return
	}
	bidder := ledger.Identity(chi.URLParam(r, "bidder"))
	if bidder == "" {
		h.badRequest(w, "missing bidder")
		return
	}

	amount, txID, err := h.service.Refund(addr, bidder)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, RefundResponse{
		TxID:    txID,
		Address: addr.String(),
		Bidder:  bidder,
		Amount:  amount,
	})
}

func (h *HTTPAuctionService) handleCancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	addr, ok := h.address(w, r)
	if !ok {
		return
	}

	txID, err := h.service.Cancel(caller, addr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, MutationResponse{TxID: txID, Address: addr.String()})
}

func (h *HTTPAuctionService) handleGetBid(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.address(w, r)
	if !ok {
		return
	}
	bidder := ledger.Identity(chi.URLParam(r, "bidder"))

	bid, err := h.service.Machine().Bid(addr, bidder)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, bid)
}

func (h *HTTPAuctionService) handleBidderBids(w http.ResponseWriter, r *http.Request) {
	bidder := ledger.Identity(r.URL.Query().Get("bidder"))
	if bidder == "" {
		h.badRequest(w, "missing bidder query parameter")
		return
	}
	h.writeJSON(w, BidListResponse{Bids: h.service.Machine().BidderBids(bidder)})
}

// handleEvents streams state-transition events of one kind as server-sent
// events until the client disconnects.
func (h *HTTPAuctionService) handleEvents(w http.ResponseWriter, r *http.Request) {
	kind := auction.EventKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		h.badRequest(w, fmt.Sprintf("unknown event kind %q", kind))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events := h.service.Bus().SubscribeChan(r.Context(), kind, 16)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Error("encoding event", "kind", ev.Kind, "err", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			flusher.Flush()
		}
	}
}

func (h *HTTPAuctionService) caller(w http.ResponseWriter, r *http.Request) (ledger.Identity, bool) {
	caller := ledger.Identity(r.Header.Get(CallerHeader))
	if caller == "" {
		h.badRequest(w, "missing "+CallerHeader+" header")
		return "", false
	}
	return caller, true
}

func (h *HTTPAuctionService) address(w http.ResponseWriter, r *http.Request) (ledger.Address, bool) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		h.badRequest(w, "invalid auction address")
		return ledger.Address{}, false
	}
	return addr, true
}

// decode parses and validates a JSON request body.
func (h *HTTPAuctionService) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		h.badRequest(w, "validation failed: "+err.Error())
		return false
	}
	return true
}

func (h *HTTPAuctionService) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encoding response", "err", err)
	}
}

func (h *HTTPAuctionService) badRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

func (h *HTTPAuctionService) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForError(err))
	json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
}

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, auction.ErrAuctionNotFound),
		errors.Is(err, auction.ErrBidNotFound):
		return http.StatusNotFound

	case errors.Is(err, auction.ErrUnauthorized),
		errors.Is(err, auction.ErrNotWinner):
		return http.StatusForbidden

	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired

	case errors.Is(err, auction.ErrAuctionExists),
		errors.Is(err, auction.ErrAuctionNotActive),
		errors.Is(err, auction.ErrAuctionNotStarted),
		errors.Is(err, auction.ErrAuctionEnded),
		errors.Is(err, auction.ErrAuctionNotEnded),
		errors.Is(err, auction.ErrAuctionNotClosed),
		errors.Is(err, auction.ErrAuctionAlreadyStarted),
		errors.Is(err, auction.ErrTooEarlyToStart),
		errors.Is(err, auction.ErrBidAlreadyProcessed),
		errors.Is(err, auction.ErrAlreadySettled),
		errors.Is(err, auction.ErrCannotRefundWinner),
		errors.Is(err, auction.ErrCannotCancelWithBids),
		errors.Is(err, auction.ErrCannotCancelClosed),
		errors.Is(err, auction.ErrNoValidBids):
		return http.StatusConflict

	case errors.Is(err, auction.ErrInvalidTimeRange),
		errors.Is(err, auction.ErrStartTimeInPast),
		errors.Is(err, auction.ErrNameTooLong),
		errors.Is(err, auction.ErrDescriptionTooLong),
		errors.Is(err, auction.ErrInvalidEncryptedBid),
		errors.Is(err, auction.ErrBidBelowReserve):
		return http.StatusBadRequest

	case errors.Is(err, auction.ErrInvalidProof):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
