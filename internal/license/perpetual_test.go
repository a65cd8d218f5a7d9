package license

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-licensing/internal/admin"
	"github.com/technosupport/ts-licensing/internal/events"
	"github.com/technosupport/ts-licensing/internal/ledger"
)

func newPerpetual(env *testEnv, price uint64) *Perpetual {
	return NewPerpetual(Config{
		Name:     "Software License",
		Symbol:   "SWL",
		Contract: "perpetual",
		Address:  testAddr(0x01),
		Price:    price,
	}, env.deps)
}

func TestPerpetual_Purchase(t *testing.T) {
	env := newTestEnv()
	svc := newPerpetual(env, 100)
	ctx := context.Background()

	buyer := testAddr(0x10)
	require.NoError(t, env.led.Mint(ctx, ledger.NativeAsset, buyer, 150))

	l, err := svc.Purchase(ctx, buyer, 100)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), l.TokenID)
	assert.Equal(t, buyer, l.Owner)
	assert.Nil(t, l.ExpiresAt)
	assert.False(t, l.TransferAllowed)
	assert.Equal(t, uint64(100), l.PriceAtPurchase)

	// Full payment moved to the contract account.
	bal, err := env.led.BalanceOf(ctx, ledger.NativeAsset, svc.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal)

	assert.Equal(t, []events.Type{events.TypeLicenseCreated}, env.emit.types())

	// Token ids are sequential.
	l2, err := svc.Purchase(ctx, buyer, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), l2.TokenID)

	n, err := svc.Counter(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestPerpetual_Purchase_Underpaid(t *testing.T) {
	env := newTestEnv()
	svc := newPerpetual(env, 100)
	ctx := context.Background()

	buyer := testAddr(0x10)
	require.NoError(t, env.led.Mint(ctx, ledger.NativeAsset, buyer, 1000))

	_, err := svc.Purchase(ctx, buyer, 99)
	assert.ErrorIs(t, err, ErrInsufficientPayment)

	n, err := svc.Counter(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "underpaid purchase must not mint")
}

func TestPerpetual_Purchase_BrokeBuyer(t *testing.T) {
	env := newTestEnv()
	svc := newPerpetual(env, 100)
	ctx := context.Background()

	buyer := testAddr(0x10)
	require.NoError(t, env.led.Mint(ctx, ledger.NativeAsset, buyer, 50))

	_, err := svc.Purchase(ctx, buyer, 100)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	n, err := svc.Counter(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPerpetual_AdminMint(t *testing.T) {
	env := newTestEnv()
	svc := newPerpetual(env, 100)
	ctx := context.Background()

	to := testAddr(0x20)
	_, err := svc.AdminMint(ctx, to, to)
	assert.ErrorIs(t, err, admin.ErrNotAuthorized)

	l, err := svc.AdminMint(ctx, env.admin, to)
	require.NoError(t, err)
	assert.Equal(t, to, l.Owner)
}

func TestPerpetual_TransferGates(t *testing.T) {
	env := newTestEnv()
	svc := newPerpetual(env, 100)
	ctx := context.Background()

	owner := testAddr(0x10)
	other := testAddr(0x20)
	l, err := svc.AdminMint(ctx, env.admin, owner)
	require.NoError(t, err)

	// Restricted by default, even for the owner.
	err = svc.Transfer(ctx, owner, other, l.TokenID)
	assert.ErrorIs(t, err, ErrTransferRestricted)

	// Only the admin can lift the restriction.
	err = svc.AllowTransfer(ctx, owner, l.TokenID)
	assert.ErrorIs(t, err, admin.ErrNotAuthorized)
	require.NoError(t, svc.AllowTransfer(ctx, env.admin, l.TokenID))

	// A stranger still cannot move it.
	err = svc.Transfer(ctx, other, other, l.TokenID)
	assert.ErrorIs(t, err, ErrNotTokenOwner)

	require.NoError(t, svc.Transfer(ctx, owner, other, l.TokenID))
	got, err := svc.Get(ctx, l.TokenID)
	require.NoError(t, err)
	assert.Equal(t, other, got.Owner)

	require.NoError(t, svc.RestrictTransfer(ctx, env.admin, l.TokenID))
	err = svc.Transfer(ctx, other, owner, l.TokenID)
	assert.ErrorIs(t, err, ErrTransferRestricted)
}

func TestPerpetual_Transfer_BlockedWhileActivated(t *testing.T) {
	env := newTestEnv()
	svc := newPerpetual(env, 100)
	svc.BindActivation(stubActivation{activated: true})
	ctx := context.Background()

	owner := testAddr(0x10)
	l, err := svc.AdminMint(ctx, env.admin, owner)
	require.NoError(t, err)
	require.NoError(t, svc.AllowTransfer(ctx, env.admin, l.TokenID))

	err = svc.Transfer(ctx, owner, testAddr(0x20), l.TokenID)
	assert.ErrorIs(t, err, ErrLicenseActivated)
}

func TestPerpetual_SetPrice(t *testing.T) {
	env := newTestEnv()
	svc := newPerpetual(env, 100)
	ctx := context.Background()

	err := svc.SetPrice(ctx, testAddr(0x10), 200)
	assert.ErrorIs(t, err, admin.ErrNotAuthorized)

	// Zero is invalid regardless of caller.
	err = svc.SetPrice(ctx, env.admin, 0)
	assert.ErrorIs(t, err, ErrInvalidPrice)
	assert.Equal(t, uint64(100), svc.Price())

	require.NoError(t, svc.SetPrice(ctx, env.admin, 200))
	assert.Equal(t, uint64(200), svc.Price())
	assert.Equal(t, events.TypePriceUpdated, env.emit.last().Type)
}

func TestPerpetual_Withdraw(t *testing.T) {
	env := newTestEnv()
	svc := newPerpetual(env, 100)
	ctx := context.Background()

	buyer := testAddr(0x10)
	require.NoError(t, env.led.Mint(ctx, ledger.NativeAsset, buyer, 300))
	_, err := svc.Purchase(ctx, buyer, 100)
	require.NoError(t, err)
	_, err = svc.Purchase(ctx, buyer, 120)
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, buyer)
	assert.ErrorIs(t, err, admin.ErrNotAuthorized)

	amount, err := svc.Withdraw(ctx, env.admin)
	require.NoError(t, err)
	assert.Equal(t, uint64(220), amount)

	bal, err := env.led.BalanceOf(ctx, ledger.NativeAsset, svc.Address())
	require.NoError(t, err)
	assert.Zero(t, bal)
	bal, err = env.led.BalanceOf(ctx, ledger.NativeAsset, env.admin)
	require.NoError(t, err)
	assert.Equal(t, uint64(220), bal)

	// Nothing left: a second sweep is a no-op.
	amount, err = svc.Withdraw(ctx, env.admin)
	require.NoError(t, err)
	assert.Zero(t, amount)
}

func TestPerpetual_Metadata(t *testing.T) {
	env := newTestEnv()
	svc := newPerpetual(env, 100)
	ctx := context.Background()

	_, err := svc.Metadata(ctx, 42)
	assert.ErrorIs(t, err, ErrNonexistentToken)

	owner := testAddr(0x10)
	l, err := svc.AdminMint(ctx, env.admin, owner)
	require.NoError(t, err)

	md, err := svc.Metadata(ctx, l.TokenID)
	require.NoError(t, err)
	assert.Equal(t, "Software License", md.Name)
	assert.Equal(t, "SWL", md.Symbol)
	assert.Equal(t, owner.Hex(), md.Owner)
	assert.Nil(t, md.ExpiresAt)
}
