package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/technosupport/ts-licensing/internal/signer"
)

// License is one minted token. ExpiresAt is nil for perpetual licenses.
// Canceled is only meaningful for the auto-renew variant, where a canceled
// record blocks renew until the owner reactivates.
type License struct {
	Contract        string
	TokenID         uint64
	Owner           signer.Address
	ExpiresAt       *time.Time
	TransferAllowed bool
	Canceled        bool
	PriceAtPurchase uint64
	CreatedAt       time.Time
}

type LicenseModel struct {
	DB DBTX
}

// NextTokenID allocates the next sequential id for a contract, starting
// at zero.
func (m LicenseModel) NextTokenID(ctx context.Context, contract string) (uint64, error) {
	query := `
		INSERT INTO license_counters (contract, next_id) VALUES ($1, 1)
		ON CONFLICT (contract) DO UPDATE SET next_id = license_counters.next_id + 1
		RETURNING next_id - 1`

	var id uint64
	if err := m.DB.QueryRowContext(ctx, query, contract).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Counter returns the number of tokens minted so far (the next id).
func (m LicenseModel) Counter(ctx context.Context, contract string) (uint64, error) {
	query := `SELECT next_id FROM license_counters WHERE contract = $1`

	var n uint64
	err := m.DB.QueryRowContext(ctx, query, contract).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (m LicenseModel) Insert(ctx context.Context, l *License) error {
	query := `
		INSERT INTO licenses (contract, token_id, owner, expires_at, transfer_allowed, canceled, price_at_purchase, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var expires sql.NullInt64
	if l.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: l.ExpiresAt.Unix(), Valid: true}
	}

	_, err := m.DB.ExecContext(ctx, query,
		l.Contract, l.TokenID, l.Owner.Hex(), expires,
		l.TransferAllowed, l.Canceled, l.PriceAtPurchase, l.CreatedAt.Unix(),
	)
	return err
}

func (m LicenseModel) Get(ctx context.Context, contract string, tokenID uint64) (*License, error) {
	query := `
		SELECT contract, token_id, owner, expires_at, transfer_allowed, canceled, price_at_purchase, created_at
		FROM licenses
		WHERE contract = $1 AND token_id = $2`

	var (
		l       License
		owner   string
		expires sql.NullInt64
		created int64
	)
	err := m.DB.QueryRowContext(ctx, query, contract, tokenID).Scan(
		&l.Contract, &l.TokenID, &owner, &expires, &l.TransferAllowed, &l.Canceled, &l.PriceAtPurchase, &created,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	l.Owner, err = signer.ParseAddress(owner)
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		t := time.Unix(expires.Int64, 0).UTC()
		l.ExpiresAt = &t
	}
	l.CreatedAt = time.Unix(created, 0).UTC()
	return &l, nil
}

// Update rewrites the mutable fields of a license row.
func (m LicenseModel) Update(ctx context.Context, l *License) error {
	query := `
		UPDATE licenses
		SET owner = $3, expires_at = $4, transfer_allowed = $5, canceled = $6
		WHERE contract = $1 AND token_id = $2`

	var expires sql.NullInt64
	if l.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: l.ExpiresAt.Unix(), Valid: true}
	}

	res, err := m.DB.ExecContext(ctx, query,
		l.Contract, l.TokenID, l.Owner.Hex(), expires, l.TransferAllowed, l.Canceled,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
