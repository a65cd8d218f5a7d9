// Package license implements the three license token variants: perpetual,
// fixed-fee subscription, and auto-renewing token-paid subscription. The
// variants share one record shape, the transfer gate, and the admin
// surface; they differ in payment mechanism and renewal gating.
package license

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/technosupport/ts-licensing/internal/admin"
	"github.com/technosupport/ts-licensing/internal/clock"
	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/events"
	"github.com/technosupport/ts-licensing/internal/ledger"
	"github.com/technosupport/ts-licensing/internal/locker"
	"github.com/technosupport/ts-licensing/internal/signer"
)

type Repository interface {
	NextTokenID(ctx context.Context, contract string) (uint64, error)
	Counter(ctx context.Context, contract string) (uint64, error)
	Insert(ctx context.Context, l *data.License) error
	Get(ctx context.Context, contract string, tokenID uint64) (*data.License, error)
	Update(ctx context.Context, l *data.License) error
}

// ActivationChecker is consulted by the transfer gate of activation-aware
// variants.
type ActivationChecker interface {
	IsActivated(ctx context.Context, tokenID uint64) (bool, error)
}

// Config is one contract instance. Address is the contract's ledger
// identity (where payments accumulate until withdrawn); Asset is the
// payment rail, the native asset or a token address.
type Config struct {
	Name     string
	Symbol   string
	Contract string
	Address  signer.Address
	Asset    string
	Price    uint64
	Period   time.Duration
}

type Deps struct {
	Repo    Repository
	Ledger  ledger.Ledger
	Admin   admin.Capability
	Emitter events.Emitter
	Locks   locker.Locker
	Clock   clock.Clock
}

// service carries everything the variants share.
type service struct {
	cfg    Config
	repo   Repository
	ledger ledger.Ledger
	cap    admin.Capability
	emit   events.Emitter
	locks  locker.Locker
	clock  clock.Clock

	priceMu sync.RWMutex
	price   uint64

	activation ActivationChecker
}

func newService(cfg Config, d Deps) *service {
	return &service{
		cfg:    cfg,
		repo:   d.Repo,
		ledger: d.Ledger,
		cap:    d.Admin,
		emit:   d.Emitter,
		locks:  d.Locks,
		clock:  d.Clock,
		price:  cfg.Price,
	}
}

func (s *service) Name() string     { return s.cfg.Name }
func (s *service) Symbol() string   { return s.cfg.Symbol }
func (s *service) Contract() string { return s.cfg.Contract }

func (s *service) Address() signer.Address { return s.cfg.Address }

func (s *service) Price() uint64 {
	s.priceMu.RLock()
	defer s.priceMu.RUnlock()
	return s.price
}

func (s *service) Period() time.Duration { return s.cfg.Period }

// SetPrice is the admin-gated price update. It touches no balances.
func (s *service) SetPrice(ctx context.Context, caller signer.Address, newPrice uint64) error {
	if err := s.cap.Require(caller); err != nil {
		return err
	}
	if newPrice == 0 {
		return ErrInvalidPrice
	}

	s.priceMu.Lock()
	s.price = newPrice
	s.priceMu.Unlock()

	s.emit.Emit(events.New(events.TypePriceUpdated, s.cfg.Contract).With("price", newPrice))
	return nil
}

// ReloadPrice applies a config-file price change. Zero is ignored rather
// than rejected so a half-written config can't brick pricing.
func (s *service) ReloadPrice(newPrice uint64) {
	if newPrice == 0 {
		return
	}
	s.priceMu.Lock()
	s.price = newPrice
	s.priceMu.Unlock()
}

func (s *service) Counter(ctx context.Context) (uint64, error) {
	return s.repo.Counter(ctx, s.cfg.Contract)
}

func (s *service) Get(ctx context.Context, tokenID uint64) (*data.License, error) {
	l, err := s.repo.Get(ctx, s.cfg.Contract, tokenID)
	if errors.Is(err, data.ErrRecordNotFound) {
		return nil, ErrNonexistentToken
	}
	return l, err
}

func (s *service) tokenKey(tokenID uint64) string {
	return fmt.Sprintf("%s/%d", s.cfg.Contract, tokenID)
}

// mint allocates the next id and inserts the record. Caller holds any
// payment already.
func (s *service) mint(ctx context.Context, owner signer.Address, expires *time.Time) (*data.License, error) {
	id, err := s.repo.NextTokenID(ctx, s.cfg.Contract)
	if err != nil {
		return nil, err
	}
	l := &data.License{
		Contract:        s.cfg.Contract,
		TokenID:         id,
		Owner:           owner,
		ExpiresAt:       expires,
		TransferAllowed: false,
		PriceAtPurchase: s.Price(),
		CreatedAt:       s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Transfer moves ownership. It is rejected while the transfer flag is off,
// and (on activation-aware variants) while the license is in active use.
func (s *service) Transfer(ctx context.Context, caller, to signer.Address, tokenID uint64) error {
	release, err := s.locks.Acquire(ctx, s.tokenKey(tokenID))
	if err != nil {
		return err
	}
	defer release()

	l, err := s.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	if caller != l.Owner && !s.cap.Is(caller) {
		return ErrNotTokenOwner
	}
	if !l.TransferAllowed {
		return ErrTransferRestricted
	}
	if s.activation != nil {
		activated, err := s.activation.IsActivated(ctx, tokenID)
		if err != nil {
			return err
		}
		if activated {
			return ErrLicenseActivated
		}
	}

	from := l.Owner
	l.Owner = to
	if err := s.repo.Update(ctx, l); err != nil {
		return err
	}

	s.emit.Emit(events.New(events.TypeTransfer, s.cfg.Contract).
		WithToken(tokenID).
		With("from", from.Hex()).
		With("to", to.Hex()))
	return nil
}

func (s *service) AllowTransfer(ctx context.Context, caller signer.Address, tokenID uint64) error {
	return s.setTransferFlag(ctx, caller, tokenID, true)
}

func (s *service) RestrictTransfer(ctx context.Context, caller signer.Address, tokenID uint64) error {
	return s.setTransferFlag(ctx, caller, tokenID, false)
}

func (s *service) setTransferFlag(ctx context.Context, caller signer.Address, tokenID uint64, allowed bool) error {
	if err := s.cap.Require(caller); err != nil {
		return err
	}

	release, err := s.locks.Acquire(ctx, s.tokenKey(tokenID))
	if err != nil {
		return err
	}
	defer release()

	l, err := s.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	l.TransferAllowed = allowed
	if err := s.repo.Update(ctx, l); err != nil {
		return err
	}

	t := events.TypeTransferRestricted
	if allowed {
		t = events.TypeTransferAllowed
	}
	s.emit.Emit(events.New(t, s.cfg.Contract).WithToken(tokenID))
	return nil
}

// Withdraw sweeps the contract's entire balance on its payment asset to
// the administrator.
func (s *service) Withdraw(ctx context.Context, caller signer.Address) (uint64, error) {
	if err := s.cap.Require(caller); err != nil {
		return 0, err
	}

	release, err := s.locks.Acquire(ctx, s.cfg.Contract+"/withdraw")
	if err != nil {
		return 0, err
	}
	defer release()

	balance, err := s.ledger.BalanceOf(ctx, s.cfg.Asset, s.cfg.Address)
	if err != nil {
		return 0, err
	}
	if balance == 0 {
		return 0, nil
	}
	if err := s.ledger.Apply(ctx, ledger.Movement{
		Asset:  s.cfg.Asset,
		From:   s.cfg.Address,
		To:     s.cap.Address(),
		Amount: balance,
	}); err != nil {
		return 0, err
	}

	s.emit.Emit(events.New(events.TypeWithdrawal, s.cfg.Contract).
		With("to", s.cap.Address().Hex()).
		With("amount", balance))
	return balance, nil
}

// Metadata is the tokenURI equivalent: descriptive fields for observers.
type Metadata struct {
	Name            string     `json:"name"`
	Symbol          string     `json:"symbol"`
	TokenID         uint64     `json:"token_id"`
	Owner           string     `json:"owner"`
	PriceAtPurchase uint64     `json:"price_at_purchase"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	TransferAllowed bool       `json:"transfer_allowed"`
}

func (s *service) Metadata(ctx context.Context, tokenID uint64) (*Metadata, error) {
	l, err := s.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return &Metadata{
		Name:            s.cfg.Name,
		Symbol:          s.cfg.Symbol,
		TokenID:         l.TokenID,
		Owner:           l.Owner.Hex(),
		PriceAtPurchase: l.PriceAtPurchase,
		ExpiresAt:       l.ExpiresAt,
		TransferAllowed: l.TransferAllowed,
	}, nil
}
