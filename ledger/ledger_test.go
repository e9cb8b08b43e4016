package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveAuctionAddress_Deterministic(t *testing.T) {
	a := DeriveAuctionAddress("alice", 7)
	b := DeriveAuctionAddress("alice", 7)
	require.Equal(t, a, b)
	require.False(t, a.IsZero())
}

func TestDeriveAuctionAddress_ScopedByAuthorityAndID(t *testing.T) {
	base := DeriveAuctionAddress("alice", 7)

	require.NotEqual(t, base, DeriveAuctionAddress("bob", 7))
	require.NotEqual(t, base, DeriveAuctionAddress("alice", 8))
}

func TestDerivedAddresses_DisjointNamespaces(t *testing.T) {
	auctionAddr := DeriveAuctionAddress("alice", 1)

	bidAddr := DeriveBidAddress(auctionAddr, "bob")
	escrowAddr := DeriveEscrowAddress(auctionAddr)
	accountAddr := AccountAddress("bob")

	require.NotEqual(t, auctionAddr, bidAddr)
	require.NotEqual(t, auctionAddr, escrowAddr)
	require.NotEqual(t, bidAddr, escrowAddr)
	require.NotEqual(t, bidAddr, accountAddr)
}

func TestParseAddress_Roundtrip(t *testing.T) {
	addr := DeriveAuctionAddress("alice", 42)

	parsed, err := ParseAddress(addr.String())
	require.NoError(t, err)
	require.Equal(t, addr, parsed)
}

func TestParseAddress_Invalid(t *testing.T) {
	_, err := ParseAddress("not-hex")
	require.Error(t, err)

	_, err = ParseAddress("abcdef")
	require.Error(t, err)
}

func TestAddress_JSONRoundtrip(t *testing.T) {
	addr := DeriveEscrowAddress(DeriveAuctionAddress("alice", 1))

	data, err := json.Marshal(addr)
	require.NoError(t, err)
	require.JSONEq(t, `"`+addr.String()+`"`, string(data))

	var decoded Address
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, addr, decoded)
}

func TestInMemoryLedger_Transfer(t *testing.T) {
	l := NewInMemoryLedger()
	from := AccountAddress("alice")
	to := AccountAddress("bob")

	l.Credit(from, "credits", 100)
	require.NoError(t, l.Transfer(from, to, "credits", 60))

	require.Equal(t, uint64(40), l.Balance(from, "credits"))
	require.Equal(t, uint64(60), l.Balance(to, "credits"))
}

func TestInMemoryLedger_InsufficientFunds(t *testing.T) {
	l := NewInMemoryLedger()
	from := AccountAddress("alice")
	to := AccountAddress("bob")

	l.Credit(from, "credits", 50)

	err := l.Transfer(from, to, "credits", 51)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// Nothing moved.
	require.Equal(t, uint64(50), l.Balance(from, "credits"))
	require.Equal(t, uint64(0), l.Balance(to, "credits"))
}

func TestInMemoryLedger_AssetsAreIndependent(t *testing.T) {
	l := NewInMemoryLedger()
	addr := AccountAddress("alice")

	l.Credit(addr, "credits", 10)
	l.Credit(addr, "tokens", 20)

	require.Equal(t, uint64(10), l.Balance(addr, "credits"))
	require.Equal(t, uint64(20), l.Balance(addr, "tokens"))

	err := l.Transfer(addr, AccountAddress("bob"), "credits", 20)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}
