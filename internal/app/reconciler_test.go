package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transfa/cash-transfer-service/internal/domain"
)

func newTestReconciler(f *fixture, schedule string) *Reconciler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReconciler(f.store, f.store, f.limits, logger, schedule)
}

func TestReconcile_RepairsDriftedCacheEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{alicePhone: "1000.00", bobPhone: "1000.00", carlaPhone: "0"})
	for _, from := range []string{alicePhone, alicePhone, bobPhone} {
		result, err := f.engine.Execute(ctx, f.request(from, carlaPhone, "10.00"))
		require.NoError(t, err)
		require.True(t, result.Success)
	}

	cache := newMemoryUsageCache()
	day := domain.UTCDay(testNow)
	cache.seed(domain.DailyUsage{AccountID: f.ids[alicePhone], Day: day, TransferCount: 9, TotalAmountOut: money("900")})
	f.limits.SetUsageCache(cache)

	refreshed, err := newTestReconciler(f, "@every 1h").Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed)

	alice, ok, err := cache.Get(ctx, f.ids[alicePhone], day)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, alice.TransferCount)
	assert.True(t, alice.TotalAmountOut.Equal(money("20.00")))

	bob, ok, err := cache.Get(ctx, f.ids[bobPhone], day)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, bob.TransferCount)

	_, ok, err = cache.Get(ctx, f.ids[carlaPhone], day)
	require.NoError(t, err)
	assert.False(t, ok, "accounts that sent nothing today are not cached")
}

func TestReconcile_NoSendersIsNoop(t *testing.T) {
	f := newFixture(t, map[string]string{alicePhone: "1000.00"})
	cache := newMemoryUsageCache()
	f.limits.SetUsageCache(cache)

	refreshed, err := newTestReconciler(f, "@every 1h").Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, refreshed)
	assert.Zero(t, cache.merges)
}

func TestReconciler_StartRejectsInvalidSchedule(t *testing.T) {
	f := newFixture(t, map[string]string{alicePhone: "1000.00"})

	err := newTestReconciler(f, "every now and then").Start()
	assert.Error(t, err)
}

func TestReconciler_StartAndStop(t *testing.T) {
	f := newFixture(t, map[string]string{alicePhone: "1000.00"})
	r := newTestReconciler(f, "@every 1h")

	require.NoError(t, r.Start())
	<-r.Stop().Done()
}

func TestReconcile_RepeatedRunsAreStable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{alicePhone: "1000.00", bobPhone: "0"})
	cache := newMemoryUsageCache()
	f.limits.SetUsageCache(cache)
	for i := 0; i < 3; i++ {
		result, err := f.engine.Execute(ctx, f.request(alicePhone, bobPhone, "10.00"))
		require.NoError(t, err)
		require.True(t, result.Success)
	}

	r := newTestReconciler(f, "@every 1h")
	for i := 0; i < 2; i++ {
		_, err := r.Reconcile(ctx)
		require.NoError(t, err)
	}

	usage, ok, err := cache.Get(ctx, f.ids[alicePhone], testNow)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, usage.TransferCount)
	assert.True(t, usage.TotalAmountOut.Equal(money("30.00")))
}
