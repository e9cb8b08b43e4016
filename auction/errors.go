package auction

import "errors"

// Temporal violations. The caller must wait and resubmit.
var (
	ErrInvalidTimeRange  = errors.New("end time must be after start time")
	ErrStartTimeInPast   = errors.New("start time cannot be in the past")
	ErrTooEarlyToStart   = errors.New("too early to start auction")
	ErrAuctionNotStarted = errors.New("auction has not started yet")
	ErrAuctionEnded      = errors.New("auction has already ended")
	ErrAuctionNotEnded   = errors.New("auction has not ended yet")
)

// State-machine violations. The call is wrong for the record's current
// status; retrying without changing the call cannot succeed.
var (
	ErrAuctionNotActive      = errors.New("auction is not active")
	ErrAuctionAlreadyStarted = errors.New("auction has already started")
	ErrAuctionNotClosed      = errors.New("auction is not closed")
	ErrCannotCancelWithBids  = errors.New("cannot cancel auction with active bids")
	ErrCannotCancelClosed    = errors.New("cannot cancel closed auction")
	ErrAuctionExists         = errors.New("auction already exists")
	ErrAuctionNotFound       = errors.New("auction not found")
	ErrBidNotFound           = errors.New("bid not found")
)

// Authorization violations. Fatal, never retried.
var (
	ErrUnauthorized = errors.New("caller is not the auction authority")
	ErrNotWinner    = errors.New("not the auction winner")
)

// Economic violations. Caller-correctable.
var (
	ErrBidBelowReserve = errors.New("bid amount is below reserve price")
	ErrNoValidBids     = errors.New("no valid bids received")
)

// Validation violations on display metadata.
var (
	ErrNameTooLong        = errors.New("item name is too long")
	ErrDescriptionTooLong = errors.New("item description is too long")
)

// Integrity violations. Signal oracle or data corruption; the auction stays
// in its current state pending a corrected resubmission.
var (
	ErrInvalidEncryptedBid = errors.New("invalid encrypted bid data")
	ErrInvalidProof        = errors.New("invalid oracle result proof")
)

// Double-spend guards. Unreachable under correct operation, load-bearing
// when it is not.
var (
	ErrBidAlreadyProcessed = errors.New("bid has already been processed")
	ErrCannotRefundWinner  = errors.New("cannot refund winning bid")
	ErrAlreadySettled      = errors.New("auction has already been settled")
)
