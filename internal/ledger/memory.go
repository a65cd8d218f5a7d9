package ledger

import (
	"context"
	"sync"

	"github.com/technosupport/ts-licensing/internal/signer"
)

type balanceKey struct {
	asset string
	addr  signer.Address
}

type allowanceKey struct {
	asset   string
	owner   signer.Address
	spender signer.Address
}

// MemoryLedger is an in-process Ledger for tests and single-binary demos.
type MemoryLedger struct {
	mu         sync.Mutex
	balances   map[balanceKey]uint64
	allowances map[allowanceKey]uint64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:   make(map[balanceKey]uint64),
		allowances: make(map[allowanceKey]uint64),
	}
}

func (l *MemoryLedger) BalanceOf(_ context.Context, asset string, addr signer.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[balanceKey{asset, addr}], nil
}

func (l *MemoryLedger) Allowance(_ context.Context, asset string, owner, spender signer.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[allowanceKey{asset, owner, spender}], nil
}

func (l *MemoryLedger) Approve(_ context.Context, asset string, owner, spender signer.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey{asset, owner, spender}] = amount
	return nil
}

func (l *MemoryLedger) Mint(_ context.Context, asset string, to signer.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[balanceKey{asset, to}] += amount
	return nil
}

func (l *MemoryLedger) Apply(_ context.Context, moves ...Movement) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Validate everything before mutating anything.
	balances := make(map[balanceKey]int64)
	allowances := make(map[allowanceKey]int64)
	for _, mv := range moves {
		if mv.Amount == 0 {
			continue
		}
		balances[balanceKey{mv.Asset, mv.From}] -= int64(mv.Amount)
		balances[balanceKey{mv.Asset, mv.To}] += int64(mv.Amount)
		if mv.Spender != nil && *mv.Spender != mv.From {
			allowances[allowanceKey{mv.Asset, mv.From, *mv.Spender}] -= int64(mv.Amount)
		}
	}
	for k, delta := range balances {
		if delta < 0 && l.balances[k] < uint64(-delta) {
			return ErrInsufficientBalance
		}
	}
	for k, delta := range allowances {
		if delta < 0 && l.allowances[k] < uint64(-delta) {
			return ErrInsufficientAllowance
		}
	}

	for k, delta := range balances {
		l.balances[k] = uint64(int64(l.balances[k]) + delta)
	}
	for k, delta := range allowances {
		l.allowances[k] = uint64(int64(l.allowances[k]) + delta)
	}
	return nil
}
