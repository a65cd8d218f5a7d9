package data

import (
	"context"
	"database/sql"
	"errors"

	"github.com/technosupport/ts-licensing/internal/signer"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// LedgerModel backs the fungible token collaborator. Debits are guarded in
// SQL so a balance can never go negative; callers compose movements inside
// a transaction for all-or-nothing application.
type LedgerModel struct {
	DB DBTX
}

func (m LedgerModel) BalanceOf(ctx context.Context, asset string, addr signer.Address) (uint64, error) {
	query := `SELECT balance FROM ledger_accounts WHERE asset = $1 AND address = $2`

	var bal uint64
	err := m.DB.QueryRowContext(ctx, query, asset, addr.Hex()).Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return bal, nil
}

func (m LedgerModel) Allowance(ctx context.Context, asset string, owner, spender signer.Address) (uint64, error) {
	query := `SELECT amount FROM ledger_allowances WHERE asset = $1 AND owner = $2 AND spender = $3`

	var amt uint64
	err := m.DB.QueryRowContext(ctx, query, asset, owner.Hex(), spender.Hex()).Scan(&amt)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return amt, nil
}

func (m LedgerModel) SetAllowance(ctx context.Context, asset string, owner, spender signer.Address, amount uint64) error {
	query := `
		INSERT INTO ledger_allowances (asset, owner, spender, amount) VALUES ($1, $2, $3, $4)
		ON CONFLICT (asset, owner, spender) DO UPDATE SET amount = $4`

	_, err := m.DB.ExecContext(ctx, query, asset, owner.Hex(), spender.Hex(), amount)
	return err
}

// Debit fails with ErrInsufficientBalance when the balance does not cover
// the amount; the guard lives in the WHERE clause.
func (m LedgerModel) Debit(ctx context.Context, asset string, addr signer.Address, amount uint64) error {
	query := `
		UPDATE ledger_accounts SET balance = balance - $3
		WHERE asset = $1 AND address = $2 AND balance >= $3`

	res, err := m.DB.ExecContext(ctx, query, asset, addr.Hex(), amount)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func (m LedgerModel) Credit(ctx context.Context, asset string, addr signer.Address, amount uint64) error {
	query := `
		INSERT INTO ledger_accounts (asset, address, balance) VALUES ($1, $2, $3)
		ON CONFLICT (asset, address) DO UPDATE SET balance = ledger_accounts.balance + $3`

	_, err := m.DB.ExecContext(ctx, query, asset, addr.Hex(), amount)
	return err
}

// ConsumeAllowance decrements a spender grant, failing when the grant does
// not cover the amount.
func (m LedgerModel) ConsumeAllowance(ctx context.Context, asset string, owner, spender signer.Address, amount uint64) error {
	query := `
		UPDATE ledger_allowances SET amount = amount - $4
		WHERE asset = $1 AND owner = $2 AND spender = $3 AND amount >= $4`

	res, err := m.DB.ExecContext(ctx, query, asset, owner.Hex(), spender.Hex(), amount)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrInsufficientAllowance
	}
	return nil
}
