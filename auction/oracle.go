package auction

import (
	"context"

	"github.com/shadowbid/shadowbid/ledger"
)

// SealedBid pairs a bidder with their opaque bid envelope for forwarding to
// the oracle.
type SealedBid struct {
	Bidder   ledger.Identity `json:"bidder"`
	Envelope []byte          `json:"envelope"`
}

// OracleRequest asks the confidential computation network to determine the
// winner among the sealed bids of one auction session.
type OracleRequest struct {
	SessionID string      `json:"session_id"`
	Bids      []SealedBid `json:"bids"`
}

// OracleResult is the oracle's winner determination. The settlement engine
// treats it as untrusted until the proof verifies and the result is
// consistent with the recorded bids.
type OracleResult struct {
	SessionID     string          `json:"session_id"`
	Winner        ledger.Identity `json:"winner"`
	WinningAmount uint64          `json:"winning_amount"`

	// Proof is opaque correctness evidence, passed through to a
	// ProofVerifier. The core never interprets it.
	Proof []byte `json:"proof"`
}

// Oracle is the external confidential computation network, consulted only at
// auction close. Implementations range from an in-process simulation in
// tests to a real MPC network in production.
type Oracle interface {
	// Resolve determines the winner among the sealed bids without revealing
	// losing bid values.
	Resolve(ctx context.Context, req *OracleRequest) (*OracleResult, error)
}

// ProofVerifier checks an oracle result's correctness proof. The
// cryptographic check itself is external to the escrow core; the settlement
// engine only refuses to consume results that fail it.
type ProofVerifier interface {
	Verify(result *OracleResult) error
}
