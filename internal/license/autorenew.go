package license

import (
	"context"

	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/events"
	"github.com/technosupport/ts-licensing/internal/ledger"
	"github.com/technosupport/ts-licensing/internal/signer"
	"github.com/technosupport/ts-licensing/internal/timewindow"
)

// AutoRenew sells subscriptions paid in a token via a standing allowance:
// the holder approves the contract once, then the contract pulls the fee
// on purchase, renewal, and reactivation. Unlike the fixed variant a
// renewal never stacks, it restarts the window from now.
type AutoRenew struct {
	*service
}

// NewAutoRenew requires cfg.Asset to name the payment token.
func NewAutoRenew(cfg Config, d Deps) *AutoRenew {
	return &AutoRenew{service: newService(cfg, d)}
}

// ready checks balance and allowance in one opaque guard. Callers learn
// only that the pull would fail, not which leg is short.
func (a *AutoRenew) ready(ctx context.Context, holder signer.Address, price uint64) error {
	balance, err := a.ledger.BalanceOf(ctx, a.cfg.Asset, holder)
	if err != nil {
		return err
	}
	allowance, err := a.ledger.Allowance(ctx, a.cfg.Asset, holder, a.cfg.Address)
	if err != nil {
		return err
	}
	if balance < price || allowance < price {
		return ErrNotReadyOrInsufficientFunds
	}
	return nil
}

// pull debits the holder through their standing allowance to the contract.
func (a *AutoRenew) pull(ctx context.Context, holder signer.Address, price uint64) error {
	spender := a.cfg.Address
	return a.ledger.Apply(ctx, ledger.Movement{
		Asset:   a.cfg.Asset,
		From:    holder,
		To:      a.cfg.Address,
		Spender: &spender,
		Amount:  price,
	})
}

func (a *AutoRenew) Purchase(ctx context.Context, caller signer.Address) (*data.License, error) {
	price := a.Price()
	if err := a.ready(ctx, caller, price); err != nil {
		return nil, err
	}

	release, err := a.locks.Acquire(ctx, a.cfg.Contract+"/mint")
	if err != nil {
		return nil, err
	}
	defer release()

	if err := a.pull(ctx, caller, price); err != nil {
		return nil, err
	}

	expires := a.clock.Now().Add(a.cfg.Period)
	l, err := a.mint(ctx, caller, &expires)
	if err != nil {
		return nil, err
	}

	a.emit.Emit(events.New(events.TypeSubscriptionCreated, a.cfg.Contract).
		WithToken(l.TokenID).
		With("price", price).
		With("expires_at", expires.Unix()))
	return l, nil
}

// Renew pulls the next period's fee once the current window has lapsed.
// The owner can call it themselves; the administrator can call it on their
// behalf, which is how the scheduled renewal sweep runs.
func (a *AutoRenew) Renew(ctx context.Context, caller signer.Address, tokenID uint64) error {
	release, err := a.locks.Acquire(ctx, a.tokenKey(tokenID))
	if err != nil {
		return err
	}
	defer release()

	l, err := a.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	if caller != l.Owner && !a.cap.Is(caller) {
		return ErrNotTokenOwner
	}
	if l.Canceled {
		return ErrCanceled
	}
	now := a.clock.Now()
	if timewindow.IsActive(*l.ExpiresAt, now) {
		return ErrStillActive
	}

	price := a.Price()
	if err := a.ready(ctx, l.Owner, price); err != nil {
		return err
	}
	if err := a.pull(ctx, l.Owner, price); err != nil {
		return err
	}

	expires := now.Add(a.cfg.Period)
	l.ExpiresAt = &expires
	if err := a.repo.Update(ctx, l); err != nil {
		return err
	}

	a.emit.Emit(events.New(events.TypeSubscriptionRenewed, a.cfg.Contract).
		WithToken(tokenID).
		With("price", price).
		With("expires_at", expires.Unix()))
	return nil
}

// CancelByOwner stops future renewals and cuts the window off immediately.
func (a *AutoRenew) CancelByOwner(ctx context.Context, caller signer.Address, tokenID uint64) error {
	release, err := a.locks.Acquire(ctx, a.tokenKey(tokenID))
	if err != nil {
		return err
	}
	defer release()

	l, err := a.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	if caller != l.Owner {
		return ErrNotTokenOwner
	}

	now := timewindow.Cancel(a.clock.Now())
	l.ExpiresAt = &now
	l.Canceled = true
	if err := a.repo.Update(ctx, l); err != nil {
		return err
	}

	a.emit.Emit(events.New(events.TypeSubscriptionCanceled, a.cfg.Contract).WithToken(tokenID))
	return nil
}

// Reactivate clears a cancellation by paying for a fresh period. Only
// meaningful once the window has lapsed.
func (a *AutoRenew) Reactivate(ctx context.Context, caller signer.Address, tokenID uint64) error {
	release, err := a.locks.Acquire(ctx, a.tokenKey(tokenID))
	if err != nil {
		return err
	}
	defer release()

	l, err := a.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	if caller != l.Owner {
		return ErrNotTokenOwner
	}
	now := a.clock.Now()
	if timewindow.IsActive(*l.ExpiresAt, now) {
		return ErrStillActive
	}

	price := a.Price()
	if err := a.ready(ctx, caller, price); err != nil {
		return err
	}
	if err := a.pull(ctx, caller, price); err != nil {
		return err
	}

	expires := now.Add(a.cfg.Period)
	l.ExpiresAt = &expires
	l.Canceled = false
	if err := a.repo.Update(ctx, l); err != nil {
		return err
	}

	a.emit.Emit(events.New(events.TypeSubscriptionReactivated, a.cfg.Contract).
		WithToken(tokenID).
		With("price", price).
		With("expires_at", expires.Unix()))
	return nil
}

func (a *AutoRenew) IsActive(ctx context.Context, tokenID uint64) (bool, error) {
	l, err := a.Get(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return timewindow.IsActive(*l.ExpiresAt, a.clock.Now()), nil
}
