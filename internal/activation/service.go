// Package activation tracks which licenses are currently in use. An
// activated license is pinned to its activator and cannot be transferred
// until deactivated by the current owner.
package activation

import (
	"context"
	"errors"
	"strconv"

	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/events"
	"github.com/technosupport/ts-licensing/internal/license"
	"github.com/technosupport/ts-licensing/internal/locker"
	"github.com/technosupport/ts-licensing/internal/signer"
)

var (
	ErrAlreadyActivated = errors.New("license is already activated")
	ErrNotActivated     = errors.New("license is not activated")
	ErrNotLicenseOwner  = errors.New("not license owner")
	ErrInvalidSignature = errors.New("invalid activation signature")
)

type RecordStore interface {
	Get(ctx context.Context, contract string, tokenID uint64) (*data.ActivationRecord, error)
	Set(ctx context.Context, rec *data.ActivationRecord) error
}

// LicenseReader is the slice of the license service the registry needs:
// existence and current ownership.
type LicenseReader interface {
	Get(ctx context.Context, tokenID uint64) (*data.License, error)
}

type Deps struct {
	Records   RecordStore
	Licenses  LicenseReader
	Recoverer signer.Recoverer
	Emitter   events.Emitter
	Locks     locker.Locker
}

type Service struct {
	contract string
	records  RecordStore
	licenses LicenseReader
	rec      signer.Recoverer
	emit     events.Emitter
	locks    locker.Locker
}

func NewService(contract string, d Deps) *Service {
	return &Service{
		contract: contract,
		records:  d.Records,
		licenses: d.Licenses,
		rec:      d.Recoverer,
		emit:     d.Emitter,
		locks:    d.Locks,
	}
}

// Activate marks a license as in use. The caller proves control of their
// key by signing the opaque session hash; the recovered signer must be the
// caller themselves.
func (s *Service) Activate(ctx context.Context, caller signer.Address, tokenID uint64, sessionHash signer.Hash, sig []byte) error {
	release, err := s.locks.Acquire(ctx, s.key(tokenID))
	if err != nil {
		return err
	}
	defer release()

	if _, err := s.licenses.Get(ctx, tokenID); err != nil {
		return err
	}

	rec, err := s.records.Get(ctx, s.contract, tokenID)
	if err != nil && !errors.Is(err, data.ErrRecordNotFound) {
		return err
	}
	if rec != nil && rec.Activated {
		return ErrAlreadyActivated
	}

	recovered, err := s.rec.Recover(sessionHash, sig)
	if err != nil || recovered != caller {
		return ErrInvalidSignature
	}

	err = s.records.Set(ctx, &data.ActivationRecord{
		Contract:    s.contract,
		TokenID:     tokenID,
		Activated:   true,
		ActivatedBy: caller,
	})
	if err != nil {
		return err
	}

	s.emit.Emit(events.New(events.TypeActivated, s.contract).
		WithToken(tokenID).
		With("activated_by", caller.Hex()))
	return nil
}

// Deactivate clears the in-use flag. Only the current license owner may do
// it, which covers the owner having changed since activation via an
// admin-approved transfer.
func (s *Service) Deactivate(ctx context.Context, caller signer.Address, tokenID uint64) error {
	release, err := s.locks.Acquire(ctx, s.key(tokenID))
	if err != nil {
		return err
	}
	defer release()

	rec, err := s.records.Get(ctx, s.contract, tokenID)
	if errors.Is(err, data.ErrRecordNotFound) {
		return ErrNotActivated
	}
	if err != nil {
		return err
	}
	if !rec.Activated {
		return ErrNotActivated
	}

	l, err := s.licenses.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	if caller != l.Owner {
		return ErrNotLicenseOwner
	}

	rec.Activated = false
	if err := s.records.Set(ctx, rec); err != nil {
		return err
	}

	s.emit.Emit(events.New(events.TypeDeactivated, s.contract).WithToken(tokenID))
	return nil
}

// IsActivated satisfies the license transfer gate.
func (s *Service) IsActivated(ctx context.Context, tokenID uint64) (bool, error) {
	rec, err := s.records.Get(ctx, s.contract, tokenID)
	if errors.Is(err, data.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Activated, nil
}

func (s *Service) key(tokenID uint64) string {
	return s.contract + "/activation/" + strconv.FormatUint(tokenID, 10)
}

var _ license.ActivationChecker = (*Service)(nil)
