package oracle

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/shadowbid/shadowbid/auction"
	"github.com/shadowbid/shadowbid/ledger"
)

// SimulatedOracle implements auction.Oracle in-process for tests and demo
// deployments. It simulates the confidential computation network by opening
// sealed envelopes with its own exchange key, but provides no actual
// confidentiality guarantees beyond process memory.
type SimulatedOracle struct {
	exchangeKey *ecdh.PrivateKey
	prover      *HMACProver
}

// NewSimulatedOracle creates an oracle with fresh exchange and proof keys.
func NewSimulatedOracle() (*SimulatedOracle, error) {
	exchangeKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate exchange key: %w", err)
	}

	proofKey := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, proofKey); err != nil {
		return nil, fmt.Errorf("generate proof key: %w", err)
	}

	return &SimulatedOracle{
		exchangeKey: exchangeKey,
		prover:      &HMACProver{key: proofKey},
	}, nil
}

// ExchangeKey returns the public key bidders seal their bids to.
func (o *SimulatedOracle) ExchangeKey() *ecdh.PublicKey {
	return o.exchangeKey.PublicKey()
}

// Verifier returns the proof verifier matching this oracle's results.
func (o *SimulatedOracle) Verifier() auction.ProofVerifier {
	return o.prover
}

// Resolve opens every sealed bid and selects the highest value. Envelopes
// that fail to open are excluded rather than failing the whole computation,
// mirroring how the real network drops malformed inputs. Ties go to the
// lexicographically first bidder identity so the result is deterministic.
func (o *SimulatedOracle) Resolve(ctx context.Context, req *auction.OracleRequest) (*auction.OracleResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		winner  ledger.Identity
		highest uint64
		opened  int
	)
	for _, sealed := range req.Bids {
		env, err := ParseEnvelope(sealed.Envelope)
		if err != nil {
			continue
		}
		value, err := env.Open(o.exchangeKey, req.SessionID)
		if err != nil {
			continue
		}
		opened++
		if value > highest || (value == highest && (winner == "" || sealed.Bidder < winner)) {
			winner = sealed.Bidder
			highest = value
		}
	}

	if opened == 0 {
		return nil, errors.New("no decodable bids in session")
	}

	result := &auction.OracleResult{
		SessionID:     req.SessionID,
		Winner:        winner,
		WinningAmount: highest,
	}
	result.Proof = o.prover.prove(result)
	return result, nil
}
