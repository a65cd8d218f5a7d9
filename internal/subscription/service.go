package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/technosupport/ts-licensing/internal/clock"
	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/events"
	"github.com/technosupport/ts-licensing/internal/ledger"
	"github.com/technosupport/ts-licensing/internal/locker"
	"github.com/technosupport/ts-licensing/internal/signer"
)

type RecordStore interface {
	Get(ctx context.Context, hash signer.Hash) (*data.SubscriptionRecord, error)
	MarkExecuted(ctx context.Context, hash signer.Hash, at time.Time) error
	MarkCanceled(ctx context.Context, hash signer.Hash) error
}

type AuthorizationStore interface {
	Save(ctx context.Context, a *data.Authorization) error
	List(ctx context.Context) ([]*data.Authorization, error)
}

type Deps struct {
	Records   RecordStore
	Auths     AuthorizationStore
	Ledger    ledger.Ledger
	Recoverer signer.Recoverer
	Emitter   events.Emitter
	Locks     locker.Locker
	Clock     clock.Clock
}

// Service evaluates and executes signed subscription authorizations for
// one plan. Address is the service's ledger identity, the spender the
// subscriber grants the standing allowance to.
type Service struct {
	plan    Plan
	address signer.Address

	records RecordStore
	auths   AuthorizationStore
	led     ledger.Ledger
	rec     signer.Recoverer
	emit    events.Emitter
	locks   locker.Locker
	clock   clock.Clock
}

func NewService(plan Plan, address signer.Address, d Deps) *Service {
	return &Service{
		plan:    plan,
		address: address,
		records: d.Records,
		auths:   d.Auths,
		led:     d.Ledger,
		rec:     d.Recoverer,
		emit:    d.Emitter,
		locks:   d.Locks,
		clock:   d.Clock,
	}
}

func (s *Service) Plan() Plan              { return s.plan }
func (s *Service) Address() signer.Address { return s.address }

// Hash validates the pinned fields and returns the canonical terms hash.
func (s *Service) Hash(t Terms) (signer.Hash, error) {
	if err := s.plan.validate(t); err != nil {
		return signer.Hash{}, err
	}
	return canonicalHash(t), nil
}

// verifySigner recovers the signer of the terms hash and compares it to
// the claimed subscriber. Malformed signatures surface as a plain mismatch.
func (s *Service) verifySigner(h signer.Hash, subscriber signer.Address, sig []byte) bool {
	addr, err := s.rec.Recover(h, sig)
	if err != nil {
		return false
	}
	return addr == subscriber
}

// readiness is the admission check shared by IsReady and Execute. A nil
// error means the next execution may proceed now.
func (s *Service) readiness(ctx context.Context, h signer.Hash, t Terms, sig []byte) error {
	if !s.verifySigner(h, t.Subscriber, sig) {
		return ErrNotReady
	}

	total := s.plan.Total()
	balance, err := s.led.BalanceOf(ctx, s.plan.Token.Hex(), t.Subscriber)
	if err != nil {
		return err
	}
	allowance, err := s.led.Allowance(ctx, s.plan.Token.Hex(), t.Subscriber, s.address)
	if err != nil {
		return err
	}
	if balance < total || allowance < total {
		return ErrNotReady
	}

	rec, err := s.records.Get(ctx, h)
	if errors.Is(err, data.ErrRecordNotFound) {
		return nil // never executed, never canceled
	}
	if err != nil {
		return err
	}
	if rec.Canceled {
		return ErrNotReady
	}
	if rec.LastExecution.IsZero() {
		return nil
	}
	due := rec.LastExecution.Add(time.Duration(t.PeriodSeconds) * time.Second)
	if s.clock.Now().Before(due) {
		return ErrNotReady
	}
	return nil
}

// IsReady reports whether Execute would currently succeed. Field
// mismatches against the plan are returned as their named errors; every
// other blocker collapses to false.
func (s *Service) IsReady(ctx context.Context, t Terms, sig []byte) (bool, error) {
	h, err := s.Hash(t)
	if err != nil {
		return false, err
	}
	err = s.readiness(ctx, h, t, sig)
	if errors.Is(err, ErrNotReady) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Authorize validates and stores a signed subscription so relayers can
// find it later. It moves no funds.
func (s *Service) Authorize(ctx context.Context, t Terms, sig []byte) (signer.Hash, error) {
	h, err := s.Hash(t)
	if err != nil {
		return signer.Hash{}, err
	}
	if !s.verifySigner(h, t.Subscriber, sig) {
		return signer.Hash{}, ErrInvalidSignature
	}

	err = s.auths.Save(ctx, &data.Authorization{
		Hash:       h,
		Subscriber: t.Subscriber,
		Nonce:      t.Nonce,
		Signature:  sig,
		CreatedAt:  s.clock.Now(),
	})
	if err != nil {
		return signer.Hash{}, err
	}
	return h, nil
}

// Execute performs one period's pull: the plan amount to the publisher and
// the relayer fee to the caller, both through the subscriber's standing
// allowance. The caller is whoever relays, no privilege required.
func (s *Service) Execute(ctx context.Context, caller signer.Address, t Terms, sig []byte) error {
	h, err := s.Hash(t)
	if err != nil {
		return err
	}

	release, err := s.locks.Acquire(ctx, "sub/"+h.Hex())
	if err != nil {
		return err
	}
	defer release()

	if err := s.readiness(ctx, h, t, sig); err != nil {
		return err
	}

	spender := s.address
	err = s.led.Apply(ctx,
		ledger.Movement{
			Asset:   s.plan.Token.Hex(),
			From:    t.Subscriber,
			To:      s.plan.Publisher,
			Spender: &spender,
			Amount:  s.plan.Amount,
		},
		ledger.Movement{
			Asset:   s.plan.Token.Hex(),
			From:    t.Subscriber,
			To:      caller,
			Spender: &spender,
			Amount:  s.plan.RelayerFee,
		},
	)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if err := s.records.MarkExecuted(ctx, h, now); err != nil {
		return err
	}

	// Keep the authorization around for the relayer sweep. Save is
	// idempotent per hash.
	_ = s.auths.Save(ctx, &data.Authorization{
		Hash:       h,
		Subscriber: t.Subscriber,
		Nonce:      t.Nonce,
		Signature:  sig,
		CreatedAt:  now,
	})

	s.emit.Emit(events.New(events.TypeExecuteSubscription, "subscription").
		WithHash(h.Hex()).
		With("subscriber", t.Subscriber.Hex()).
		With("publisher", t.Publisher.Hex()).
		With("relayer", caller.Hex()).
		With("amount", s.plan.Amount).
		With("relayer_fee", s.plan.RelayerFee))
	return nil
}

// Cancel terminally revokes the authorization for this exact hash. It is
// double-gated: only the subscriber's own call is accepted, and the
// signature must still check out.
func (s *Service) Cancel(ctx context.Context, caller signer.Address, t Terms, sig []byte) error {
	h, err := s.Hash(t)
	if err != nil {
		return err
	}
	if caller != t.Subscriber {
		return ErrNotSubscriber
	}
	if !s.verifySigner(h, t.Subscriber, sig) {
		return ErrInvalidSignature
	}

	release, err := s.locks.Acquire(ctx, "sub/"+h.Hex())
	if err != nil {
		return err
	}
	defer release()

	if err := s.records.MarkCanceled(ctx, h); err != nil {
		return err
	}

	s.emit.Emit(events.New(events.TypeCancelSubscription, "subscription").
		WithHash(h.Hex()).
		With("subscriber", t.Subscriber.Hex()))
	return nil
}

// IsActive reports whether the subscription is inside its current paid-for
// period: executed at least once, not canceled, and not yet due again.
func (s *Service) IsActive(ctx context.Context, h signer.Hash) (bool, error) {
	rec, err := s.records.Get(ctx, h)
	if errors.Is(err, data.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.Canceled || rec.LastExecution.IsZero() {
		return false, nil
	}
	until := rec.LastExecution.Add(time.Duration(s.plan.PeriodSeconds) * time.Second)
	return s.clock.Now().Before(until), nil
}
