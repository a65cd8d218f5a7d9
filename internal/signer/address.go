package signer

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

var ErrInvalidAddress = errors.New("invalid address")

// Address is a 20-byte account identifier, derived from the Keccak-256
// digest of an Ed25519 public key (last 20 bytes), rendered as 0x-hex.
type Address [20]byte

var ZeroAddress Address

func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string { return a.Hex() }

func (a Address) IsZero() bool { return a == ZeroAddress }

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func ParseAddress(s string) (Address, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 20 {
		return Address{}, ErrInvalidAddress
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

// AddressFromPublicKey derives the account address for a public key.
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	digest := Keccak256(pub)
	var a Address
	copy(a[:], digest[12:])
	return a
}

// Hash is a 32-byte Keccak-256 digest.
type Hash [32]byte

func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) String() string { return h.Hex() }

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

var ErrInvalidHash = errors.New("invalid hash")

func ParseHash(s string) (Hash, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return Hash{}, ErrInvalidHash
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}

// Keccak256 digests the concatenation of chunks.
func Keccak256(chunks ...[]byte) Hash {
	d := sha3.NewLegacyKeccak256()
	for _, c := range chunks {
		d.Write(c)
	}
	var h Hash
	d.Sum(h[:0])
	return h
}
