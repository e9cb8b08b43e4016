package ledger

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInsufficientFunds is returned when a transfer would overdraw the source
// account.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger provides per-(address, asset) value accounting. Each Transfer is
// atomic: it either moves the full amount or leaves both accounts untouched.
// Asset types are caller-specified opaque identifiers; how an asset is
// implemented below this interface is out of scope.
type Ledger interface {
	// Balance returns the current balance of the account.
	Balance(addr Address, asset string) uint64

	// Transfer moves amount from one account to another. Fails with
	// ErrInsufficientFunds if the source balance is lower than amount.
	Transfer(from, to Address, asset string, amount uint64) error
}

// InMemoryLedger implements Ledger with in-process accounting. It stands in
// for the ledger runtime in tests and single-node deployments.
type InMemoryLedger struct {
	mu       sync.RWMutex
	balances map[Address]map[string]uint64
}

// NewInMemoryLedger creates an empty in-memory ledger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		balances: make(map[Address]map[string]uint64),
	}
}

// Balance returns the current balance of the account.
func (l *InMemoryLedger) Balance(addr Address, asset string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[addr][asset]
}

// Transfer moves amount between accounts atomically.
func (l *InMemoryLedger) Transfer(from, to Address, asset string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from][asset] < amount {
		return fmt.Errorf("transfer of %d %s from %s: %w", amount, asset, from, ErrInsufficientFunds)
	}

	l.balances[from][asset] -= amount
	l.credit(to, asset, amount)
	return nil
}

// Credit adds amount to an account. Used to fund accounts in tests and demo
// deployments; the real ledger runtime funds accounts out of band.
func (l *InMemoryLedger) Credit(addr Address, asset string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, asset, amount)
}

func (l *InMemoryLedger) credit(addr Address, asset string, amount uint64) {
	accounts, ok := l.balances[addr]
	if !ok {
		accounts = make(map[string]uint64)
		l.balances[addr] = accounts
	}
	accounts[asset] += amount
}
