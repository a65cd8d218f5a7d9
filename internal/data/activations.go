package data

import (
	"context"
	"database/sql"

	"github.com/technosupport/ts-licensing/internal/signer"
)

// ActivationRecord marks a license as currently in use. Records are never
// deleted, only toggled.
type ActivationRecord struct {
	Contract    string
	TokenID     uint64
	Activated   bool
	ActivatedBy signer.Address
}

type ActivationModel struct {
	DB DBTX
}

func (m ActivationModel) Get(ctx context.Context, contract string, tokenID uint64) (*ActivationRecord, error) {
	query := `
		SELECT activated, activated_by FROM activation_records
		WHERE contract = $1 AND token_id = $2`

	rec := &ActivationRecord{Contract: contract, TokenID: tokenID}
	var by string
	err := m.DB.QueryRowContext(ctx, query, contract, tokenID).Scan(&rec.Activated, &by)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec.ActivatedBy, err = signer.ParseAddress(by); err != nil {
		return nil, err
	}
	return rec, nil
}

func (m ActivationModel) Set(ctx context.Context, rec *ActivationRecord) error {
	query := `
		INSERT INTO activation_records (contract, token_id, activated, activated_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (contract, token_id) DO UPDATE SET activated = $3, activated_by = $4`

	_, err := m.DB.ExecContext(ctx, query, rec.Contract, rec.TokenID, rec.Activated, rec.ActivatedBy.Hex())
	return err
}
