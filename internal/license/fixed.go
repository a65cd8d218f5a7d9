package license

import (
	"context"
	"time"

	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/events"
	"github.com/technosupport/ts-licensing/internal/ledger"
	"github.com/technosupport/ts-licensing/internal/signer"
	"github.com/technosupport/ts-licensing/internal/timewindow"
)

// FixedSubscription sells time-boxed licenses paid in native value, renewed
// explicitly by the owner. Early renewal stacks unused time.
type FixedSubscription struct {
	*service
}

func NewFixedSubscription(cfg Config, d Deps) *FixedSubscription {
	cfg.Asset = ledger.NativeAsset
	return &FixedSubscription{service: newService(cfg, d)}
}

func (f *FixedSubscription) Purchase(ctx context.Context, caller signer.Address, payment uint64) (*data.License, error) {
	price := f.Price()
	if payment < price {
		return nil, ErrInsufficientPayment
	}

	release, err := f.locks.Acquire(ctx, f.cfg.Contract+"/mint")
	if err != nil {
		return nil, err
	}
	defer release()

	if err := f.ledger.Apply(ctx, ledger.Movement{
		Asset:  ledger.NativeAsset,
		From:   caller,
		To:     f.cfg.Address,
		Amount: payment,
	}); err != nil {
		return nil, err
	}

	expires := f.clock.Now().Add(f.cfg.Period)
	l, err := f.mint(ctx, caller, &expires)
	if err != nil {
		return nil, err
	}

	f.emit.Emit(events.New(events.TypeSubscriptionCreated, f.cfg.Contract).
		WithToken(l.TokenID).
		With("price", price).
		With("expires_at", expires.Unix()))
	return l, nil
}

// Renew extends the subscription for the owner against payment. Renewing
// while active stacks on top of the current expiration; renewing after a
// lapse restarts from now.
func (f *FixedSubscription) Renew(ctx context.Context, caller signer.Address, tokenID uint64, payment uint64) error {
	release, err := f.locks.Acquire(ctx, f.tokenKey(tokenID))
	if err != nil {
		return err
	}
	defer release()

	l, err := f.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	if caller != l.Owner {
		return ErrNotTokenOwner
	}
	price := f.Price()
	if payment < price {
		return ErrInsufficientPayment
	}

	if err := f.ledger.Apply(ctx, ledger.Movement{
		Asset:  ledger.NativeAsset,
		From:   caller,
		To:     f.cfg.Address,
		Amount: payment,
	}); err != nil {
		return err
	}

	expires := timewindow.Extend(*l.ExpiresAt, f.clock.Now(), f.cfg.Period)
	l.ExpiresAt = &expires
	if err := f.repo.Update(ctx, l); err != nil {
		return err
	}

	f.emit.Emit(events.New(events.TypeSubscriptionRenewed, f.cfg.Contract).
		WithToken(tokenID).
		With("price", price).
		With("expires_at", expires.Unix()))
	return nil
}

// Cancel is admin-only and deactivates immediately.
func (f *FixedSubscription) Cancel(ctx context.Context, caller signer.Address, tokenID uint64) error {
	if err := f.cap.Require(caller); err != nil {
		return err
	}

	release, err := f.locks.Acquire(ctx, f.tokenKey(tokenID))
	if err != nil {
		return err
	}
	defer release()

	l, err := f.Get(ctx, tokenID)
	if err != nil {
		return err
	}

	now := timewindow.Cancel(f.clock.Now())
	l.ExpiresAt = &now
	if err := f.repo.Update(ctx, l); err != nil {
		return err
	}

	f.emit.Emit(events.New(events.TypeSubscriptionCanceled, f.cfg.Contract).WithToken(tokenID))
	return nil
}

func (f *FixedSubscription) IsActive(ctx context.Context, tokenID uint64) (bool, error) {
	l, err := f.Get(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return timewindow.IsActive(*l.ExpiresAt, f.clock.Now()), nil
}

// RefundEligible reports whether asOf still falls inside the paid-for
// window. Refund amounts are a billing concern outside this service.
func (f *FixedSubscription) RefundEligible(ctx context.Context, tokenID uint64, asOf time.Time) (bool, error) {
	l, err := f.Get(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return timewindow.RefundEligible(*l.ExpiresAt, asOf), nil
}
