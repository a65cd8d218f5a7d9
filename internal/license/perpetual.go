package license

import (
	"context"

	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/events"
	"github.com/technosupport/ts-licensing/internal/ledger"
	"github.com/technosupport/ts-licensing/internal/signer"
)

// Perpetual sells licenses that never expire. Transfers of an activated
// license are blocked via the activation registry.
type Perpetual struct {
	*service
}

func NewPerpetual(cfg Config, d Deps) *Perpetual {
	cfg.Asset = ledger.NativeAsset
	cfg.Period = 0
	return &Perpetual{service: newService(cfg, d)}
}

// BindActivation wires the registry consulted by the transfer gate. Done
// post-construction because the registry itself needs the license lookup.
func (p *Perpetual) BindActivation(a ActivationChecker) {
	p.activation = a
}

// Purchase mints the next sequential token to the caller for native value.
// The full payment moves to the contract, overpayment included.
func (p *Perpetual) Purchase(ctx context.Context, caller signer.Address, payment uint64) (*data.License, error) {
	price := p.Price()
	if payment < price {
		return nil, ErrInsufficientPayment
	}

	release, err := p.locks.Acquire(ctx, p.cfg.Contract+"/mint")
	if err != nil {
		return nil, err
	}
	defer release()

	if err := p.ledger.Apply(ctx, ledger.Movement{
		Asset:  ledger.NativeAsset,
		From:   caller,
		To:     p.cfg.Address,
		Amount: payment,
	}); err != nil {
		return nil, err
	}

	l, err := p.mint(ctx, caller, nil)
	if err != nil {
		return nil, err
	}

	p.emit.Emit(events.New(events.TypeLicenseCreated, p.cfg.Contract).
		WithToken(l.TokenID).
		With("price", price))
	return l, nil
}

// AdminMint bypasses payment.
func (p *Perpetual) AdminMint(ctx context.Context, caller, to signer.Address) (*data.License, error) {
	if err := p.cap.Require(caller); err != nil {
		return nil, err
	}

	release, err := p.locks.Acquire(ctx, p.cfg.Contract+"/mint")
	if err != nil {
		return nil, err
	}
	defer release()

	l, err := p.mint(ctx, to, nil)
	if err != nil {
		return nil, err
	}

	p.emit.Emit(events.New(events.TypeLicenseCreated, p.cfg.Contract).
		WithToken(l.TokenID).
		With("price", p.Price()))
	return l, nil
}
