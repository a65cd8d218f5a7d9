package activation

import (
	"context"
	"crypto/ed25519"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/events"
	"github.com/technosupport/ts-licensing/internal/license"
	"github.com/technosupport/ts-licensing/internal/locker"
	"github.com/technosupport/ts-licensing/internal/signer"
)

type memRecords struct {
	mu   sync.Mutex
	rows map[uint64]*data.ActivationRecord
}

func newMemRecords() *memRecords {
	return &memRecords{rows: make(map[uint64]*data.ActivationRecord)}
}

func (m *memRecords) Get(_ context.Context, _ string, tokenID uint64) (*data.ActivationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[tokenID]
	if !ok {
		return nil, data.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memRecords) Set(_ context.Context, rec *data.ActivationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.rows[rec.TokenID] = &cp
	return nil
}

// memLicenses serves fixed license rows.
type memLicenses struct {
	rows map[uint64]*data.License
}

func (m *memLicenses) Get(_ context.Context, tokenID uint64) (*data.License, error) {
	l, ok := m.rows[tokenID]
	if !ok {
		return nil, license.ErrNonexistentToken
	}
	cp := *l
	return &cp, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type testEnv struct {
	svc      *Service
	records  *memRecords
	licenses *memLicenses
	emit     *recorder

	owner signer.Address
	priv  ed25519.PrivateKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	_, priv, owner, err := signer.GenerateKey()
	require.NoError(t, err)

	env := &testEnv{
		records: newMemRecords(),
		licenses: &memLicenses{rows: map[uint64]*data.License{
			7: {Contract: "perpetual", TokenID: 7, Owner: owner, CreatedAt: time.Now()},
		}},
		emit:  &recorder{},
		owner: owner,
		priv:  priv,
	}
	env.svc = NewService("perpetual", Deps{
		Records:   env.records,
		Licenses:  env.licenses,
		Recoverer: signer.NewRecoverer(64),
		Emitter:   env.emit,
		Locks:     locker.NewKeyedMutex(),
	})
	return env
}

func sessionProof(priv ed25519.PrivateKey) (signer.Hash, []byte) {
	h := signer.Keccak256([]byte("session-fingerprint"))
	return h, signer.Sign(priv, h)
}

func TestActivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	h, sig := sessionProof(env.priv)
	require.NoError(t, env.svc.Activate(ctx, env.owner, 7, h, sig))

	activated, err := env.svc.IsActivated(ctx, 7)
	require.NoError(t, err)
	assert.True(t, activated)

	// Second activation of the same token is rejected.
	err = env.svc.Activate(ctx, env.owner, 7, h, sig)
	assert.ErrorIs(t, err, ErrAlreadyActivated)
}

func TestActivate_UnknownLicense(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	h, sig := sessionProof(env.priv)
	err := env.svc.Activate(ctx, env.owner, 99, h, sig)
	assert.ErrorIs(t, err, license.ErrNonexistentToken)
}

func TestActivate_SignatureMustBeCallers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A valid signature from someone else's key does not activate for the
	// caller.
	_, otherPriv, _, err := signer.GenerateKey()
	require.NoError(t, err)
	h, sig := sessionProof(otherPriv)
	err = env.svc.Activate(ctx, env.owner, 7, h, sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// Garbage bytes are the same failure.
	err = env.svc.Activate(ctx, env.owner, 7, h, []byte("junk"))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	activated, err := env.svc.IsActivated(ctx, 7)
	require.NoError(t, err)
	assert.False(t, activated)
}

func TestDeactivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Not activated yet.
	err := env.svc.Deactivate(ctx, env.owner, 7)
	assert.ErrorIs(t, err, ErrNotActivated)

	h, sig := sessionProof(env.priv)
	require.NoError(t, env.svc.Activate(ctx, env.owner, 7, h, sig))

	// Only the current owner may deactivate.
	err = env.svc.Deactivate(ctx, signer.Address{0x99}, 7)
	assert.ErrorIs(t, err, ErrNotLicenseOwner)

	require.NoError(t, env.svc.Deactivate(ctx, env.owner, 7))
	activated, err := env.svc.IsActivated(ctx, 7)
	require.NoError(t, err)
	assert.False(t, activated)

	// Reactivation after deactivation is allowed.
	require.NoError(t, env.svc.Activate(ctx, env.owner, 7, h, sig))
}

func TestDeactivate_AfterOwnershipChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	h, sig := sessionProof(env.priv)
	require.NoError(t, env.svc.Activate(ctx, env.owner, 7, h, sig))

	// Ownership moves; the old owner loses the right to deactivate.
	newOwner := signer.Address{0x42}
	env.licenses.rows[7].Owner = newOwner

	err := env.svc.Deactivate(ctx, env.owner, 7)
	assert.ErrorIs(t, err, ErrNotLicenseOwner)
	require.NoError(t, env.svc.Deactivate(ctx, newOwner, 7))
}
