package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/technosupport/ts-licensing/internal/signer"
)

// SubscriptionRecord is the per-hash execution state. LastExecution is the
// zero time until the first successful execution.
type SubscriptionRecord struct {
	Hash          signer.Hash
	LastExecution time.Time
	Canceled      bool
}

type SubscriptionModel struct {
	DB DBTX
}

// Get returns the record for a hash, or ErrRecordNotFound if the hash has
// never been executed or canceled.
func (m SubscriptionModel) Get(ctx context.Context, hash signer.Hash) (*SubscriptionRecord, error) {
	query := `SELECT last_execution, canceled FROM subscription_records WHERE hash = $1`

	var (
		last     int64
		canceled bool
	)
	err := m.DB.QueryRowContext(ctx, query, hash.Hex()).Scan(&last, &canceled)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	rec := &SubscriptionRecord{Hash: hash, Canceled: canceled}
	if last > 0 {
		rec.LastExecution = time.Unix(last, 0).UTC()
	}
	return rec, nil
}

func (m SubscriptionModel) MarkExecuted(ctx context.Context, hash signer.Hash, at time.Time) error {
	query := `
		INSERT INTO subscription_records (hash, last_execution, canceled) VALUES ($1, $2, FALSE)
		ON CONFLICT (hash) DO UPDATE SET last_execution = $2`

	_, err := m.DB.ExecContext(ctx, query, hash.Hex(), at.Unix())
	return err
}

// MarkCanceled is terminal: a canceled hash never executes again.
func (m SubscriptionModel) MarkCanceled(ctx context.Context, hash signer.Hash) error {
	query := `
		INSERT INTO subscription_records (hash, last_execution, canceled) VALUES ($1, 0, TRUE)
		ON CONFLICT (hash) DO UPDATE SET canceled = TRUE`

	_, err := m.DB.ExecContext(ctx, query, hash.Hex())
	return err
}

// Authorization is a stored signed subscription, kept so relayers can find
// due payments without holding subscriber state themselves.
type Authorization struct {
	Hash       signer.Hash
	Subscriber signer.Address
	Nonce      uint64
	Signature  []byte
	CreatedAt  time.Time
}

type AuthorizationModel struct {
	DB DBTX
}

func (m AuthorizationModel) Save(ctx context.Context, a *Authorization) error {
	query := `
		INSERT INTO subscription_authorizations (hash, subscriber, nonce, signature, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (hash) DO NOTHING`

	_, err := m.DB.ExecContext(ctx, query,
		a.Hash.Hex(), a.Subscriber.Hex(), a.Nonce, a.Signature, a.CreatedAt.Unix(),
	)
	return err
}

// List returns all stored authorizations. The relayer filters for due ones
// against the plan period.
func (m AuthorizationModel) List(ctx context.Context) ([]*Authorization, error) {
	query := `
		SELECT hash, subscriber, nonce, signature, created_at
		FROM subscription_authorizations
		ORDER BY created_at`

	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Authorization
	for rows.Next() {
		var (
			a          Authorization
			hash, subs string
			created    int64
		)
		if err := rows.Scan(&hash, &subs, &a.Nonce, &a.Signature, &created); err != nil {
			return nil, err
		}
		if a.Hash, err = signer.ParseHash(hash); err != nil {
			return nil, err
		}
		if a.Subscriber, err = signer.ParseAddress(subs); err != nil {
			return nil, err
		}
		a.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, &a)
	}
	return out, rows.Err()
}
