package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Identity is an opaque caller identity issued by the ledger runtime,
// hex-encoded. The escrow core never inspects it beyond equality checks
// and address derivation.
type Identity string

// Address identifies a ledger record or account. Addresses are derived
// deterministically from the owning key tuple, so any caller can recompute
// a record's address without a lookup table.
type Address [32]byte

// String returns the hex representation of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address is the zero sentinel.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalJSON encodes the address as a hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a hex string address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a hex-encoded address.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid address hex: %w", err)
	}
	if len(raw) != len(a) {
		return a, fmt.Errorf("invalid address length %d", len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// Namespace tags for address derivation. One tag per record kind keeps the
// derivation domains disjoint.
const (
	auctionSeed = "auction"
	bidSeed     = "bid"
	escrowSeed  = "escrow"
	accountSeed = "account"
)

func derive(parts ...[]byte) Address {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

// DeriveAuctionAddress computes the address of an auction record from its
// creator and caller-chosen auction ID. The (authority, id) pair scopes
// uniqueness: two creators may reuse the same ID.
func DeriveAuctionAddress(authority Identity, auctionID uint64) Address {
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], auctionID)
	return derive([]byte(auctionSeed), []byte(authority), id[:])
}

// DeriveBidAddress computes the address of a bid record from its auction and
// bidder. One bid per (auction, bidder) pair falls out of the derivation.
func DeriveBidAddress(auction Address, bidder Identity) Address {
	return derive([]byte(bidSeed), auction[:], []byte(bidder))
}

// DeriveEscrowAddress computes the address of an auction's escrow account.
func DeriveEscrowAddress(auction Address) Address {
	return derive([]byte(escrowSeed), auction[:])
}

// AccountAddress computes the wallet address owned by an identity.
func AccountAddress(id Identity) Address {
	return derive([]byte(accountSeed), []byte(id))
}
