package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/cash-transfer-service/internal/domain"
)

func TestNewRedisUsageCache_NormalizesPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "", want: "transfa:daily_usage"},
		{prefix: "  wallet:usage: ", want: "wallet:usage"},
		{prefix: "usage", want: "usage"},
	}

	for _, tt := range tests {
		cache := NewRedisUsageCache(nil, tt.prefix)
		if cache.prefix != tt.want {
			t.Fatalf("prefix %q: expected %q, got %q", tt.prefix, tt.want, cache.prefix)
		}
	}
}

func TestRedisUsageCache_KeyUsesUTCDay(t *testing.T) {
	cache := NewRedisUsageCache(nil, "usage")
	account := uuid.MustParse("7b0e7d1e-3f5a-4c1b-9d43-1f2e3a4b5c6d")
	manila := time.FixedZone("PHT", 8*60*60)

	got := cache.key(account, time.Date(2026, 10, 16, 6, 0, 0, 0, manila))
	want := "usage:7b0e7d1e-3f5a-4c1b-9d43-1f2e3a4b5c6d:2026-10-15"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRedisUsageCache_WithoutClientIsAMiss(t *testing.T) {
	cache := NewRedisUsageCache(nil, "")
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, uuid.New(), testNow)
	if err != nil || ok {
		t.Fatalf("expected silent miss, got ok=%t err=%v", ok, err)
	}
	if err := cache.Increment(ctx, domain.TransactionRecord{ID: uuid.New(), Amount: money("1.00"), Status: domain.StatusCompleted}); err != nil {
		t.Fatalf("expected no-op increment, got %v", err)
	}
	if err := cache.Merge(ctx, uuid.New(), testNow, nil); err != nil {
		t.Fatalf("expected no-op merge, got %v", err)
	}
}

func TestToCents(t *testing.T) {
	tests := map[string]int64{
		"0":         0,
		"5.00":      500,
		"499.99":    49999,
		"100000.00": 10000000,
	}
	for amount, want := range tests {
		if got := toCents(money(amount)); got != want {
			t.Fatalf("toCents(%s): expected %d, got %d", amount, want, got)
		}
	}
}

func TestMergeArgs_KeepsCompletedOutgoingRecords(t *testing.T) {
	account := uuid.MustParse("7b0e7d1e-3f5a-4c1b-9d43-1f2e3a4b5c6d")
	sent := uuid.MustParse("0d3c2b1a-9f8e-4d7c-8b6a-5f4e3d2c1b0a")
	records := []domain.TransactionRecord{
		{ID: sent, SenderAccountID: account, Amount: money("499.99"), Status: domain.StatusCompleted},
		{ID: uuid.New(), SenderAccountID: account, Amount: money("10.00"), Status: domain.StatusFailed},
		{ID: uuid.New(), SenderAccountID: uuid.New(), Amount: money("20.00"), Status: domain.StatusCompleted},
	}

	args := mergeArgs(account, time.Date(2026, 10, 15, 23, 0, 0, 0, time.UTC), records)
	if len(args) != 3 {
		t.Fatalf("expected expiry plus one field pair, got %v", args)
	}
	wantExpiry := time.Date(2026, 10, 16, 1, 0, 0, 0, time.UTC).Unix()
	if args[0] != wantExpiry {
		t.Fatalf("expected expiry %d, got %v", wantExpiry, args[0])
	}
	if args[1] != "tx:"+sent.String() || args[2] != int64(49999) {
		t.Fatalf("unexpected field pair %v=%v", args[1], args[2])
	}
}
