// Package subscription implements the signature-authorized recurring
// payment protocol: a subscriber signs the canonical hash of the plan
// terms once, then any relayer can trigger the periodic pull and collect
// the relayer fee, without the subscriber acting each period.
package subscription

import (
	"encoding/binary"
	"errors"

	"github.com/technosupport/ts-licensing/internal/signer"
)

var (
	ErrWrongPublisher = errors.New("publisher does not match plan")
	ErrWrongToken     = errors.New("token does not match plan")
	ErrWrongAmount    = errors.New("amount does not match plan")
	ErrWrongPeriod    = errors.New("period does not match plan")
	ErrWrongFee       = errors.New("relayer fee does not match plan")

	ErrNotReady         = errors.New("subscription not ready")
	ErrNotSubscriber    = errors.New("caller is not the subscriber")
	ErrInvalidSignature = errors.New("invalid subscription signature")
)

// Plan is the single fixed offer a service instance sells. Everything but
// the subscriber and nonce is pinned; a terms hash over different values
// is rejected before any signature work.
type Plan struct {
	Publisher     signer.Address
	Token         signer.Address
	Amount        uint64
	PeriodSeconds uint64
	RelayerFee    uint64
}

// Total is the amount pulled from the subscriber per execution.
func (p Plan) Total() uint64 { return p.Amount + p.RelayerFee }

// Terms are the seven fields a subscriber signs. The subscriber and nonce
// vary per authorization; the rest must match the plan.
type Terms struct {
	Subscriber    signer.Address `json:"subscriber"`
	Publisher     signer.Address `json:"publisher"`
	Token         signer.Address `json:"token"`
	Amount        uint64         `json:"amount"`
	PeriodSeconds uint64         `json:"period_seconds"`
	RelayerFee    uint64         `json:"relayer_fee"`
	Nonce         uint64         `json:"nonce"`
}

// TermsFor builds terms for this plan. The nonce makes the hash unique, so
// a subscriber can re-subscribe after cancellation.
func (p Plan) TermsFor(subscriber signer.Address, nonce uint64) Terms {
	return Terms{
		Subscriber:    subscriber,
		Publisher:     p.Publisher,
		Token:         p.Token,
		Amount:        p.Amount,
		PeriodSeconds: p.PeriodSeconds,
		RelayerFee:    p.RelayerFee,
		Nonce:         nonce,
	}
}

// validate checks the pinned fields in a fixed order: the first mismatch
// determines the error.
func (p Plan) validate(t Terms) error {
	if t.Publisher != p.Publisher {
		return ErrWrongPublisher
	}
	if t.Token != p.Token {
		return ErrWrongToken
	}
	if t.Amount != p.Amount {
		return ErrWrongAmount
	}
	if t.PeriodSeconds != p.PeriodSeconds {
		return ErrWrongPeriod
	}
	if t.RelayerFee != p.RelayerFee {
		return ErrWrongFee
	}
	return nil
}

// canonicalHash digests all seven fields in declaration order, integers as
// big-endian 8-byte words. Any field change, nonce included, yields a
// different authorization unit.
func canonicalHash(t Terms) signer.Hash {
	var nums [4 * 8]byte
	binary.BigEndian.PutUint64(nums[0:], t.Amount)
	binary.BigEndian.PutUint64(nums[8:], t.PeriodSeconds)
	binary.BigEndian.PutUint64(nums[16:], t.RelayerFee)
	binary.BigEndian.PutUint64(nums[24:], t.Nonce)

	return signer.Keccak256(
		t.Subscriber[:],
		t.Publisher[:],
		t.Token[:],
		nums[0:8],
		nums[8:16],
		nums[16:24],
		nums[24:32],
	)
}
