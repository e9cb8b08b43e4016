// Package auction implements the sealed-bid auction escrow state machine.
//
// An auction moves through Pending -> Active -> Closed, with Cancelled as an
// alternate exit from Pending or Active while no bids exist. Bidders move
// value into a per-auction escrow account when bidding; bid values stay
// confidential inside sealed envelopes that only the external oracle can
// read. At close, the oracle's winner determination is validated against the
// recorded bids and stamped onto the auction, after which settlement pays
// the winning deposit to the authority and refunds return each losing
// deposit to its bidder, each exactly once.
//
// The package enforces three invariants end to end:
//
//   - Conservation: an auction's escrow balance always equals the sum of
//     deposits of its bids whose funds have not been released.
//   - Immutability: a bid's deposited amount never changes after creation,
//     and its status only moves forward.
//   - Single release: each bid's money movement (settle for the winner,
//     refund for a loser) fires at most once, gated by the record's release
//     flag.
//
// The confidential computation network is abstracted behind the Oracle
// interface; its correctness proof is checked through a ProofVerifier before
// any result is consumed. See the oracle package for implementations.
package auction
