package oracle

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/shadowbid/shadowbid/auction"
)

// resultDigest commits an oracle result to a fixed-width report. The digest
// covers session, winner and amount, so a proof cannot be transplanted onto
// a different outcome.
func resultDigest(result *auction.OracleResult) [64]byte {
	h := sha256.New()
	h.Write([]byte(result.SessionID))
	h.Write([]byte{0})
	h.Write([]byte(result.Winner))
	h.Write([]byte{0})
	var amount [8]byte
	binary.BigEndian.PutUint64(amount[:], result.WinningAmount)
	h.Write(amount[:])

	var report [64]byte
	copy(report[:], h.Sum(nil))
	return report
}

// HMACProver produces and verifies keyed-MAC proofs for the simulated
// oracle. It stands in for real attestation in tests; both sides must hold
// the same key, which only the SimulatedOracle construction arranges.
type HMACProver struct {
	key []byte
}

func (p *HMACProver) prove(result *auction.OracleResult) []byte {
	digest := resultDigest(result)
	mac := hmac.New(sha256.New, p.key)
	mac.Write(digest[:])
	return mac.Sum(nil)
}

// Verify checks the result's proof against the prover's key.
func (p *HMACProver) Verify(result *auction.OracleResult) error {
	if !hmac.Equal(result.Proof, p.prove(result)) {
		return errors.New("proof does not match result")
	}
	return nil
}

// AttestationProvider generates and verifies TEE attestation reports. The
// tdx package provides DCAP-backed implementations for production oracles
// running in confidential VMs.
type AttestationProvider interface {
	AttestationType() string
	Attest(reportData [64]byte) ([]byte, error)
	Verify(attestationReport []byte, expectedReportData [64]byte) (map[int][]byte, error)
}

// AttestedVerifier accepts oracle results whose proof is a TEE attestation
// report over the result digest.
type AttestedVerifier struct {
	Provider AttestationProvider
}

// Verify validates the attestation report and its binding to the result.
func (v *AttestedVerifier) Verify(result *auction.OracleResult) error {
	if len(result.Proof) == 0 {
		return errors.New("missing attestation report")
	}
	if _, err := v.Provider.Verify(result.Proof, resultDigest(result)); err != nil {
		return fmt.Errorf("attestation verification: %w", err)
	}
	return nil
}
