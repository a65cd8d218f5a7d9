// Package ledger implements the fungible token collaborator the license
// contracts assume: balances, allowances, and loud-failure transfers. The
// license core never owns token bookkeeping itself, it only imposes
// preconditions on this component.
package ledger

import (
	"context"

	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/signer"
)

// NativeAsset models the chain's native value (purchase payments and
// withdraw sweeps on the value-priced variants).
const NativeAsset = "native"

var (
	ErrInsufficientBalance   = data.ErrInsufficientBalance
	ErrInsufficientAllowance = data.ErrInsufficientAllowance
)

// Movement is one transfer. When Spender is set and differs from From, the
// spender's allowance from From is consumed (transferFrom semantics);
// otherwise it is a direct transfer.
type Movement struct {
	Asset   string
	From    signer.Address
	To      signer.Address
	Spender *signer.Address
	Amount  uint64
}

// Ledger is the debit interface the license and subscription services
// depend on. Apply is all-or-nothing across its movements.
type Ledger interface {
	BalanceOf(ctx context.Context, asset string, addr signer.Address) (uint64, error)
	Allowance(ctx context.Context, asset string, owner, spender signer.Address) (uint64, error)
	Approve(ctx context.Context, asset string, owner, spender signer.Address, amount uint64) error
	Mint(ctx context.Context, asset string, to signer.Address, amount uint64) error
	Apply(ctx context.Context, moves ...Movement) error
}
