package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-licensing/internal/admin"
	"github.com/technosupport/ts-licensing/internal/events"
	"github.com/technosupport/ts-licensing/internal/ledger"
)

const fixedPeriod = 30 * 24 * time.Hour

func newFixed(env *testEnv) *FixedSubscription {
	return NewFixedSubscription(Config{
		Name:     "Monthly License",
		Symbol:   "MLT",
		Contract: "fixed",
		Address:  testAddr(0x02),
		Price:    100,
		Period:   fixedPeriod,
	}, env.deps)
}

func TestFixed_PurchaseSetsExpiry(t *testing.T) {
	env := newTestEnv()
	svc := newFixed(env)
	ctx := context.Background()

	buyer := testAddr(0x10)
	require.NoError(t, env.led.Mint(ctx, ledger.NativeAsset, buyer, 500))

	l, err := svc.Purchase(ctx, buyer, 100)
	require.NoError(t, err)
	require.NotNil(t, l.ExpiresAt)
	assert.Equal(t, env.clk.Now().Add(fixedPeriod), *l.ExpiresAt)

	active, err := svc.IsActive(ctx, l.TokenID)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, []events.Type{events.TypeSubscriptionCreated}, env.emit.types())
}

func TestFixed_ExpiresAfterPeriod(t *testing.T) {
	env := newTestEnv()
	svc := newFixed(env)
	ctx := context.Background()

	buyer := testAddr(0x10)
	require.NoError(t, env.led.Mint(ctx, ledger.NativeAsset, buyer, 500))
	l, err := svc.Purchase(ctx, buyer, 100)
	require.NoError(t, err)

	env.clk.Advance(fixedPeriod)
	active, err := svc.IsActive(ctx, l.TokenID)
	require.NoError(t, err)
	assert.False(t, active, "license must lapse at the exact expiration instant")
}

func TestFixed_Renew_StacksWhileActive(t *testing.T) {
	env := newTestEnv()
	svc := newFixed(env)
	ctx := context.Background()

	buyer := testAddr(0x10)
	require.NoError(t, env.led.Mint(ctx, ledger.NativeAsset, buyer, 500))
	l, err := svc.Purchase(ctx, buyer, 100)
	require.NoError(t, err)
	firstExpiry := *l.ExpiresAt

	// Renew halfway through: the unused half carries over.
	env.clk.Advance(fixedPeriod / 2)
	require.NoError(t, svc.Renew(ctx, buyer, l.TokenID, 100))

	got, err := svc.Get(ctx, l.TokenID)
	require.NoError(t, err)
	assert.Equal(t, firstExpiry.Add(fixedPeriod), *got.ExpiresAt)
}

func TestFixed_Renew_RestartsAfterLapse(t *testing.T) {
	env := newTestEnv()
	svc := newFixed(env)
	ctx := context.Background()

	buyer := testAddr(0x10)
	require.NoError(t, env.led.Mint(ctx, ledger.NativeAsset, buyer, 500))
	l, err := svc.Purchase(ctx, buyer, 100)
	require.NoError(t, err)

	// Come back a week late: no back-dating, the window restarts from now.
	env.clk.Advance(fixedPeriod + 7*24*time.Hour)
	require.NoError(t, svc.Renew(ctx, buyer, l.TokenID, 100))

	got, err := svc.Get(ctx, l.TokenID)
	require.NoError(t, err)
	assert.Equal(t, env.clk.Now().Add(fixedPeriod), *got.ExpiresAt)
}

func TestFixed_Renew_OwnerOnly(t *testing.T) {
	env := newTestEnv()
	svc := newFixed(env)
	ctx := context.Background()

	buyer := testAddr(0x10)
	require.NoError(t, env.led.Mint(ctx, ledger.NativeAsset, buyer, 500))
	require.NoError(t, env.led.Mint(ctx, ledger.NativeAsset, env.admin, 500))
	l, err := svc.Purchase(ctx, buyer, 100)
	require.NoError(t, err)

	err = svc.Renew(ctx, testAddr(0x20), l.TokenID, 100)
	assert.ErrorIs(t, err, ErrNotTokenOwner)

	// Not even the admin renews on the holder's behalf here.
	err = svc.Renew(ctx, env.admin, l.TokenID, 100)
	assert.ErrorIs(t, err, ErrNotTokenOwner)
}

func TestFixed_Renew_Underpaid(t *testing.T) {
	env := newTestEnv()
	svc := newFixed(env)
	ctx := context.Background()

	buyer := testAddr(0x10)
	require.NoError(t, env.led.Mint(ctx, ledger.NativeAsset, buyer, 500))
	l, err := svc.Purchase(ctx, buyer, 100)
	require.NoError(t, err)
	expiry := *l.ExpiresAt

	err = svc.Renew(ctx, buyer, l.TokenID, 99)
	assert.ErrorIs(t, err, ErrInsufficientPayment)

	got, err := svc.Get(ctx, l.TokenID)
	require.NoError(t, err)
	assert.Equal(t, expiry, *got.ExpiresAt, "failed renewal must not move the expiry")
}

func TestFixed_Cancel_AdminOnly(t *testing.T) {
	env := newTestEnv()
	svc := newFixed(env)
	ctx := context.Background()

	buyer := testAddr(0x10)
	require.NoError(t, env.led.Mint(ctx, ledger.NativeAsset, buyer, 500))
	l, err := svc.Purchase(ctx, buyer, 100)
	require.NoError(t, err)

	err = svc.Cancel(ctx, buyer, l.TokenID)
	assert.ErrorIs(t, err, admin.ErrNotAuthorized)

	env.clk.Advance(time.Hour)
	require.NoError(t, svc.Cancel(ctx, env.admin, l.TokenID))

	got, err := svc.Get(ctx, l.TokenID)
	require.NoError(t, err)
	assert.Equal(t, env.clk.Now(), *got.ExpiresAt, "cancellation cuts the window to now")

	active, err := svc.IsActive(ctx, l.TokenID)
	require.NoError(t, err)
	assert.False(t, active)
	assert.Equal(t, events.TypeSubscriptionCanceled, env.emit.last().Type)
}

func TestFixed_RefundEligible(t *testing.T) {
	env := newTestEnv()
	svc := newFixed(env)
	ctx := context.Background()

	buyer := testAddr(0x10)
	require.NoError(t, env.led.Mint(ctx, ledger.NativeAsset, buyer, 500))
	l, err := svc.Purchase(ctx, buyer, 100)
	require.NoError(t, err)

	ok, err := svc.RefundEligible(ctx, l.TokenID, env.clk.Now().Add(fixedPeriod/2))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.RefundEligible(ctx, l.TokenID, env.clk.Now().Add(fixedPeriod))
	require.NoError(t, err)
	assert.False(t, ok)
}
