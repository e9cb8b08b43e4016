package auction

import (
	"context"
	"fmt"

	"github.com/shadowbid/shadowbid/ledger"
)

// SettlementEngine consumes oracle winner determinations and authorizes the
// two terminal money movements: payout to the authority and refunds to
// losing bidders. Resolution fixes the outcome without moving funds, which
// makes the later settle and refund steps safe to retry: each bid record's
// release flag fires at most once.
type SettlementEngine struct {
	machine  *StateMachine
	oracle   Oracle
	verifier ProofVerifier
}

// NewSettlementEngine wires the engine to the state machine, the oracle
// consulted on manual close, and the proof verifier applied to every oracle
// result before it is trusted.
func NewSettlementEngine(m *StateMachine, oracle Oracle, verifier ProofVerifier) *SettlementEngine {
	return &SettlementEngine{machine: m, oracle: oracle, verifier: verifier}
}

// Close ends an Active auction after its window. Only the authority may
// close. If result is nil the configured oracle is consulted with the
// auction's sealed bids; a caller-supplied result skips the consultation but
// still passes the same verification as any other oracle output.
func (e *SettlementEngine) Close(ctx context.Context, caller ledger.Identity, addr ledger.Address, result *OracleResult) error {
	now := e.machine.clock.Now()

	record, err := e.machine.Auction(addr)
	if err != nil {
		return err
	}
	if record.Authority != caller {
		return ErrUnauthorized
	}
	if record.Status != AuctionActive {
		if record.Status == AuctionClosed && result != nil {
			// Replayed close with the already-fixed outcome is a no-op.
			return e.resolve(addr, result)
		}
		return ErrAuctionNotActive
	}
	if now < record.EndTime && result == nil {
		return ErrAuctionNotEnded
	}
	if record.TotalBids == 0 {
		return ErrNoValidBids
	}

	if result == nil {
		sealed, err := e.machine.SealedBids(addr)
		if err != nil {
			return err
		}
		// The oracle call runs outside the machine lock; resolve re-checks
		// the status gate, so a racing bid or second close cannot slip in.
		result, err = e.oracle.Resolve(ctx, &OracleRequest{
			SessionID: record.SessionID,
			Bids:      sealed,
		})
		if err != nil {
			return fmt.Errorf("oracle resolution: %w", err)
		}
	}

	return e.resolve(addr, result)
}

// Resolve applies an authenticated oracle callback. Unlike Close it does not
// require the window to have elapsed: the callback itself is the resolution
// event. The result must still verify and be consistent with recorded bids.
func (e *SettlementEngine) Resolve(addr ledger.Address, result *OracleResult) error {
	return e.resolve(addr, result)
}

// resolve validates the oracle result and fixes the auction outcome. It
// moves no funds. Called twice with the same result it is a no-op, so
// retries cannot double-mark bid records.
func (e *SettlementEngine) resolve(addr ledger.Address, result *OracleResult) error {
	if result == nil {
		return fmt.Errorf("%w: missing oracle result", ErrInvalidProof)
	}

	m := e.machine
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.auction(addr)
	if err != nil {
		return err
	}

	if record.Status == AuctionClosed {
		// Outcome already fixed. Accept an identical replay, reject anything
		// that disagrees with the stamped result.
		if result.SessionID == record.SessionID &&
			result.Winner == record.Winner &&
			result.WinningAmount == record.HighestBidAmount {
			return nil
		}
		return fmt.Errorf("%w: conflicting result for closed auction", ErrAuctionNotActive)
	}
	if record.Status != AuctionActive {
		return ErrAuctionNotActive
	}
	if record.TotalBids == 0 {
		return ErrNoValidBids
	}

	if result.SessionID != record.SessionID {
		return fmt.Errorf("%w: oracle session mismatch", ErrInvalidProof)
	}
	if e.verifier != nil {
		if err := e.verifier.Verify(result); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidProof, err)
		}
	}

	winnerBid, ok := m.bids[ledger.DeriveBidAddress(addr, result.Winner)]
	if !ok || winnerBid.Status != BidActive {
		return fmt.Errorf("%w: winner has no active bid", ErrInvalidProof)
	}
	// The reported winning amount must equal the winner's recorded deposit
	// exactly. A mismatch means a corrupted result or a bug, never something
	// to trust silently. (The deeper binding of deposit to sealed value is a
	// known gap in the reference design and is not enforced here.)
	if result.WinningAmount != winnerBid.DepositedAmount {
		return fmt.Errorf("%w: winning amount does not match recorded deposit", ErrInvalidProof)
	}

	record.Winner = result.Winner
	record.HighestBidAmount = result.WinningAmount
	record.Status = AuctionClosed

	winnerBid.Status = BidWon
	for _, bidAddr := range m.auctionBids[addr] {
		bid := m.bids[bidAddr]
		if bid.Address != winnerBid.Address && bid.Status == BidActive {
			bid.Status = BidLost
		}
	}

	m.bus.Publish(Event{
		Kind:      EventAuctionClosed,
		Auction:   addr,
		Timestamp: now,
		Payload: AuctionClosedPayload{
			AuctionID:     record.AuctionID,
			Winner:        record.Winner,
			WinningAmount: record.HighestBidAmount,
			TotalBids:     record.TotalBids,
		},
	})

	return nil
}

// Settle transfers the winner's escrowed deposit to the auction authority.
// Callable by anyone once the auction is Closed; effective exactly once.
// A second call finds the winning bid already released and fails with
// ErrAlreadySettled without moving funds.
func (e *SettlementEngine) Settle(addr ledger.Address) (uint64, error) {
	m := e.machine
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.auction(addr)
	if err != nil {
		return 0, err
	}
	if record.Status != AuctionClosed {
		return 0, ErrAuctionNotClosed
	}

	winnerBid, ok := m.bids[ledger.DeriveBidAddress(addr, record.Winner)]
	if !ok {
		return 0, ErrBidNotFound
	}
	if winnerBid.Released {
		return 0, ErrAlreadySettled
	}

	if err := m.ledger.Transfer(record.EscrowAddress(), ledger.AccountAddress(record.Authority), record.Asset, winnerBid.DepositedAmount); err != nil {
		return 0, err
	}
	winnerBid.Released = true

	m.bus.Publish(Event{
		Kind:      EventAuctionSettled,
		Auction:   addr,
		Timestamp: now,
		Payload: AuctionSettledPayload{
			AuctionID: record.AuctionID,
			Winner:    record.Winner,
			Amount:    winnerBid.DepositedAmount,
		},
	})

	return winnerBid.DepositedAmount, nil
}

// Refund returns a losing bidder's deposit from escrow. Callable once per
// loser once the auction is Closed. The winner can never be refunded; their
// funds leave escrow through Settle only.
func (e *SettlementEngine) Refund(addr ledger.Address, bidder ledger.Identity) (uint64, error) {
	m := e.machine
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.auction(addr)
	if err != nil {
		return 0, err
	}
	if record.Status != AuctionClosed {
		return 0, ErrAuctionNotClosed
	}

	bid, ok := m.bids[ledger.DeriveBidAddress(addr, bidder)]
	if !ok {
		return 0, ErrBidNotFound
	}
	switch bid.Status {
	case BidWon:
		return 0, ErrCannotRefundWinner
	case BidRefunded:
		return 0, ErrBidAlreadyProcessed
	case BidLost:
		// refundable
	default:
		return 0, ErrBidAlreadyProcessed
	}

	if err := m.ledger.Transfer(record.EscrowAddress(), ledger.AccountAddress(bidder), record.Asset, bid.DepositedAmount); err != nil {
		return 0, err
	}
	bid.Status = BidRefunded
	bid.Released = true

	m.bus.Publish(Event{
		Kind:      EventBidRefunded,
		Auction:   addr,
		Timestamp: now,
		Payload: BidRefundedPayload{
			AuctionID: record.AuctionID,
			Bidder:    bidder,
			Amount:    bid.DepositedAmount,
		},
	})

	return bid.DepositedAmount, nil
}
