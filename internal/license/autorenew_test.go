package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-licensing/internal/events"
)

const (
	tokenAsset     = "0x0303030303030303030303030303030303030303"
	autoPrice      = 10
	autoPeriodSecs = 2592000 // 30 days
)

func newAutoRenew(env *testEnv) *AutoRenew {
	return NewAutoRenew(Config{
		Name:     "Token Subscription",
		Symbol:   "TSB",
		Contract: "autorenew",
		Address:  testAddr(0x03),
		Asset:    tokenAsset,
		Price:    autoPrice,
		Period:   autoPeriodSecs * time.Second,
	}, env.deps)
}

// fund gives the subscriber a token balance and a standing allowance for
// the contract.
func fund(t *testing.T, env *testEnv, svc *AutoRenew, holder, balance, allowance uint64) {
	t.Helper()
	ctx := context.Background()
	h := testAddr(byte(holder))
	require.NoError(t, env.led.Mint(ctx, tokenAsset, h, balance))
	require.NoError(t, env.led.Approve(ctx, tokenAsset, h, svc.Address(), allowance))
}

func TestAutoRenew_Purchase_PullsThroughAllowance(t *testing.T) {
	env := newTestEnv()
	svc := newAutoRenew(env)
	ctx := context.Background()

	buyer := testAddr(0x10)
	fund(t, env, svc, 0x10, 10_000_000, 1000)

	l, err := svc.Purchase(ctx, buyer)
	require.NoError(t, err)
	require.NotNil(t, l.ExpiresAt)
	assert.Equal(t, env.clk.Now().Add(autoPeriodSecs*time.Second), *l.ExpiresAt)

	bal, err := env.led.BalanceOf(ctx, tokenAsset, buyer)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000-autoPrice), bal)

	allowance, err := env.led.Allowance(ctx, tokenAsset, buyer, svc.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000-autoPrice), allowance, "each pull consumes allowance")

	assert.Equal(t, []events.Type{events.TypeSubscriptionCreated}, env.emit.types())
}

func TestAutoRenew_Purchase_NotReady(t *testing.T) {
	env := newTestEnv()
	svc := newAutoRenew(env)
	ctx := context.Background()

	// Balance but no allowance.
	a := testAddr(0x10)
	require.NoError(t, env.led.Mint(ctx, tokenAsset, a, 1000))
	_, err := svc.Purchase(ctx, a)
	assert.ErrorIs(t, err, ErrNotReadyOrInsufficientFunds)

	// Allowance but no balance.
	b := testAddr(0x11)
	require.NoError(t, env.led.Approve(ctx, tokenAsset, b, svc.Address(), 1000))
	_, err = svc.Purchase(ctx, b)
	assert.ErrorIs(t, err, ErrNotReadyOrInsufficientFunds)

	n, err := svc.Counter(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAutoRenew_Renew_RejectedWhileActive(t *testing.T) {
	env := newTestEnv()
	svc := newAutoRenew(env)
	ctx := context.Background()

	buyer := testAddr(0x10)
	fund(t, env, svc, 0x10, 10_000_000, 1000)
	l, err := svc.Purchase(ctx, buyer)
	require.NoError(t, err)

	env.clk.Advance(autoPeriodSecs * time.Second / 2)
	err = svc.Renew(ctx, buyer, l.TokenID)
	assert.ErrorIs(t, err, ErrStillActive)
}

func TestAutoRenew_Renew_RestartsWindow(t *testing.T) {
	env := newTestEnv()
	svc := newAutoRenew(env)
	ctx := context.Background()

	buyer := testAddr(0x10)
	fund(t, env, svc, 0x10, 10_000_000, 1000)
	l, err := svc.Purchase(ctx, buyer)
	require.NoError(t, err)

	// One minute past expiration; the admin runs the renewal sweep.
	env.clk.Advance(autoPeriodSecs*time.Second + time.Minute)
	require.NoError(t, svc.Renew(ctx, env.admin, l.TokenID))

	got, err := svc.Get(ctx, l.TokenID)
	require.NoError(t, err)
	assert.Equal(t, env.clk.Now().Add(autoPeriodSecs*time.Second), *got.ExpiresAt,
		"late renewal restarts from now instead of stacking on the lapsed expiry")

	bal, err := env.led.BalanceOf(ctx, tokenAsset, buyer)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000-2*autoPrice), bal)
}

func TestAutoRenew_Renew_OwnerOrAdmin(t *testing.T) {
	env := newTestEnv()
	svc := newAutoRenew(env)
	ctx := context.Background()

	buyer := testAddr(0x10)
	fund(t, env, svc, 0x10, 10_000_000, 1000)
	l, err := svc.Purchase(ctx, buyer)
	require.NoError(t, err)

	env.clk.Advance(autoPeriodSecs * time.Second)
	err = svc.Renew(ctx, testAddr(0x20), l.TokenID)
	assert.ErrorIs(t, err, ErrNotTokenOwner)
}

func TestAutoRenew_Renew_DrainedAllowance(t *testing.T) {
	env := newTestEnv()
	svc := newAutoRenew(env)
	ctx := context.Background()

	buyer := testAddr(0x10)
	fund(t, env, svc, 0x10, 10_000_000, autoPrice) // just enough for purchase
	l, err := svc.Purchase(ctx, buyer)
	require.NoError(t, err)

	env.clk.Advance(autoPeriodSecs * time.Second)
	err = svc.Renew(ctx, buyer, l.TokenID)
	assert.ErrorIs(t, err, ErrNotReadyOrInsufficientFunds)
}

func TestAutoRenew_CancelAndReactivate(t *testing.T) {
	env := newTestEnv()
	svc := newAutoRenew(env)
	ctx := context.Background()

	buyer := testAddr(0x10)
	fund(t, env, svc, 0x10, 10_000_000, 1000)
	l, err := svc.Purchase(ctx, buyer)
	require.NoError(t, err)

	err = svc.CancelByOwner(ctx, testAddr(0x20), l.TokenID)
	assert.ErrorIs(t, err, ErrNotTokenOwner)

	env.clk.Advance(time.Hour)
	require.NoError(t, svc.CancelByOwner(ctx, buyer, l.TokenID))

	active, err := svc.IsActive(ctx, l.TokenID)
	require.NoError(t, err)
	assert.False(t, active, "cancellation deactivates immediately")

	// A canceled subscription never renews, not even by the sweep.
	env.clk.Advance(autoPeriodSecs * time.Second)
	err = svc.Renew(ctx, env.admin, l.TokenID)
	assert.ErrorIs(t, err, ErrCanceled)

	// Reactivation pays for a fresh period and clears the flag.
	require.NoError(t, svc.Reactivate(ctx, buyer, l.TokenID))
	got, err := svc.Get(ctx, l.TokenID)
	require.NoError(t, err)
	assert.False(t, got.Canceled)
	assert.Equal(t, env.clk.Now().Add(autoPeriodSecs*time.Second), *got.ExpiresAt)

	env.clk.Advance(autoPeriodSecs * time.Second)
	require.NoError(t, svc.Renew(ctx, buyer, l.TokenID))
}

func TestAutoRenew_Reactivate_RejectedWhileActive(t *testing.T) {
	env := newTestEnv()
	svc := newAutoRenew(env)
	ctx := context.Background()

	buyer := testAddr(0x10)
	fund(t, env, svc, 0x10, 10_000_000, 1000)
	l, err := svc.Purchase(ctx, buyer)
	require.NoError(t, err)

	err = svc.Reactivate(ctx, buyer, l.TokenID)
	assert.ErrorIs(t, err, ErrStillActive)
}
