package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrInvalidSignature = errors.New("invalid signature")

// messagePrefix mirrors the personal-message prefix of the signing scheme:
// the raw terms hash is never signed directly, only the prefixed digest.
const messagePrefix = "\x19TS Signed Message:\n32"

// SignatureSize is pubkey(32) || ed25519 signature(64).
const SignatureSize = ed25519.PublicKeySize + ed25519.SignatureSize

// PrefixedDigest returns the digest that is actually signed for a given
// terms hash.
func PrefixedDigest(h Hash) Hash {
	return Keccak256([]byte(messagePrefix), h[:])
}

// Recoverer resolves the signing address of a (hash, signature) pair.
// Behind an interface so tests can inject deterministic doubles.
type Recoverer interface {
	Recover(h Hash, sig []byte) (Address, error)
}

// Ed25519Recoverer verifies the embedded public key's signature over the
// prefixed digest and derives the signer address from that key. Results are
// memoized, signature verification dominates hot paths otherwise.
type Ed25519Recoverer struct {
	cache *lru.Cache[string, Address]
}

func NewRecoverer(cacheSize int) *Ed25519Recoverer {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	c, _ := lru.New[string, Address](cacheSize)
	return &Ed25519Recoverer{cache: c}
}

func (r *Ed25519Recoverer) Recover(h Hash, sig []byte) (Address, error) {
	if len(sig) != SignatureSize {
		return ZeroAddress, ErrInvalidSignature
	}

	key := string(h[:]) + string(sig)
	if addr, ok := r.cache.Get(key); ok {
		return addr, nil
	}

	pub := ed25519.PublicKey(sig[:ed25519.PublicKeySize])
	digest := PrefixedDigest(h)
	if !ed25519.Verify(pub, digest[:], sig[ed25519.PublicKeySize:]) {
		return ZeroAddress, ErrInvalidSignature
	}

	addr := AddressFromPublicKey(pub)
	r.cache.Add(key, addr)
	return addr, nil
}

// Sign produces a signature blob recoverable by Ed25519Recoverer.
func Sign(priv ed25519.PrivateKey, h Hash) []byte {
	digest := PrefixedDigest(h)
	sig := ed25519.Sign(priv, digest[:])
	pub := priv.Public().(ed25519.PublicKey)

	out := make([]byte, 0, SignatureSize)
	out = append(out, pub...)
	return append(out, sig...)
}

// GenerateKey returns a fresh keypair and its derived address.
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, Address, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, ZeroAddress, err
	}
	return pub, priv, AddressFromPublicKey(pub), nil
}
