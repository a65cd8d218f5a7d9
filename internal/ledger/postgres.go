package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/signer"
)

// PostgresLedger stores balances and allowances in Postgres. Apply runs all
// movements in one transaction so a failing allowance or balance check
// rolls back every movement of the call.
type PostgresLedger struct {
	DB *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{DB: db}
}

func (l *PostgresLedger) BalanceOf(ctx context.Context, asset string, addr signer.Address) (uint64, error) {
	return data.LedgerModel{DB: l.DB}.BalanceOf(ctx, asset, addr)
}

func (l *PostgresLedger) Allowance(ctx context.Context, asset string, owner, spender signer.Address) (uint64, error) {
	return data.LedgerModel{DB: l.DB}.Allowance(ctx, asset, owner, spender)
}

func (l *PostgresLedger) Approve(ctx context.Context, asset string, owner, spender signer.Address, amount uint64) error {
	return data.LedgerModel{DB: l.DB}.SetAllowance(ctx, asset, owner, spender, amount)
}

// Mint credits new supply. Issuance policy (who may call) is enforced by
// the caller, not the ledger.
func (l *PostgresLedger) Mint(ctx context.Context, asset string, to signer.Address, amount uint64) error {
	return data.LedgerModel{DB: l.DB}.Credit(ctx, asset, to, amount)
}

func (l *PostgresLedger) Apply(ctx context.Context, moves ...Movement) error {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger begin: %w", err)
	}
	defer tx.Rollback()

	m := data.LedgerModel{DB: tx}
	for _, mv := range moves {
		if mv.Amount == 0 {
			continue
		}
		if mv.Spender != nil && *mv.Spender != mv.From {
			if err := m.ConsumeAllowance(ctx, mv.Asset, mv.From, *mv.Spender, mv.Amount); err != nil {
				return err
			}
		}
		if err := m.Debit(ctx, mv.Asset, mv.From, mv.Amount); err != nil {
			return err
		}
		if err := m.Credit(ctx, mv.Asset, mv.To, mv.Amount); err != nil {
			return err
		}
	}

	return tx.Commit()
}
