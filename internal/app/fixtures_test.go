package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/transfa/cash-transfer-service/internal/domain"
	"github.com/transfa/cash-transfer-service/internal/store"
	"github.com/transfa/cash-transfer-service/internal/store/memory"
)

const (
	alicePhone = "09171234567"
	bobPhone   = "09181234567"
	carlaPhone = "09191234567"
)

var testNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	store  *memory.Store
	engine *Engine
	limits *LimitTracker
	ids    map[string]uuid.UUID
}

// newFixture seeds one account per phone with the given opening balance.
func newFixture(t *testing.T, balances map[string]string) *fixture {
	t.Helper()
	s := memory.New(memory.WithClock(func() time.Time { return testNow }))
	ids := make(map[string]uuid.UUID, len(balances))
	for phone, amount := range balances {
		id := uuid.New()
		require.NoError(t, s.AddAccount(domain.Account{ID: id, MobileNumber: phone, DisplayName: "Owner of " + phone}, money(amount)))
		ids[phone] = id
	}
	return newFixtureWithRepo(t, s, s, ids)
}

func newFixtureWithRepo(t *testing.T, s *memory.Store, repo store.Repository, ids map[string]uuid.UUID) *fixture {
	t.Helper()
	policy := DefaultTransferPolicy()
	limits := NewLimitTracker(repo, DailyLimits{MaxAmount: policy.MaxDailyAmount, MaxTransfers: policy.MaxDailyTransfers})
	engine := NewEngine(repo, NewThresholdFeePolicy(policy), limits, nil, policy)
	return &fixture{store: s, engine: engine, limits: limits, ids: ids}
}

func (f *fixture) request(fromPhone, toPhone, amount string) domain.TransferRequest {
	return domain.TransferRequest{
		SenderAccountID:     f.ids[fromPhone],
		RecipientIdentifier: toPhone,
		Amount:              money(amount),
	}
}

func (f *fixture) balance(t *testing.T, phone string) decimal.Decimal {
	t.Helper()
	b, err := f.store.GetBalance(context.Background(), f.ids[phone])
	require.NoError(t, err)
	return b.Amount
}

func (f *fixture) totalBalance(t *testing.T) decimal.Decimal {
	t.Helper()
	total := decimal.Zero
	for phone := range f.ids {
		total = total.Add(f.balance(t, phone))
	}
	return total
}

// failingRepo wraps a repository so that units of work fail at a chosen step.
type failingRepo struct {
	store.Repository
	failAppend error
	// failCredit fails the balance adjustment that credits this account.
	failCredit uuid.UUID
	resolves   int
	adjusted   []uuid.UUID
	mu         sync.Mutex
}

func (r *failingRepo) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return r.Repository.WithinTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &failingTx{Tx: tx, repo: r})
	})
}

func (r *failingRepo) Resolve(ctx context.Context, mobileNumber string) (*domain.Account, error) {
	r.mu.Lock()
	r.resolves++
	r.mu.Unlock()
	return r.Repository.Resolve(ctx, mobileNumber)
}

type failingTx struct {
	store.Tx
	repo *failingRepo
}

func (t *failingTx) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	if t.repo.failCredit != uuid.Nil && accountID == t.repo.failCredit && delta.IsPositive() {
		return decimal.Zero, errDiskFull
	}
	amount, err := t.Tx.AdjustBalance(ctx, accountID, delta)
	if err == nil {
		t.repo.mu.Lock()
		t.repo.adjusted = append(t.repo.adjusted, accountID)
		t.repo.mu.Unlock()
	}
	return amount, err
}

func (t *failingTx) AppendTransaction(ctx context.Context, rec *domain.TransactionRecord) error {
	if t.repo.failAppend != nil {
		return t.repo.failAppend
	}
	return t.Tx.AppendTransaction(ctx, rec)
}

var errDiskFull = errors.New("disk full")

// mockPublisher records published events.
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	args := m.Called(ctx, exchange, routingKey, body)
	return args.Error(0)
}

// memoryUsageCache is a UsageCache backed by a map. Like the Redis cache it
// remembers which transactions each entry counted.
type memoryUsageCache struct {
	mu      sync.Mutex
	entries map[string]*cachedUsage
	gets    int
	merges  int
	getErr  error
}

type cachedUsage struct {
	usage   domain.DailyUsage
	counted map[uuid.UUID]decimal.Decimal
}

func newMemoryUsageCache() *memoryUsageCache {
	return &memoryUsageCache{entries: make(map[string]*cachedUsage)}
}

func cacheKey(accountID uuid.UUID, day time.Time) string {
	return accountID.String() + ":" + domain.DayKey(day)
}

// seed stores usage as-is, without any counted transactions behind it.
func (c *memoryUsageCache) seed(usage domain.DailyUsage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	usage.Day = domain.UTCDay(usage.Day)
	c.entries[cacheKey(usage.AccountID, usage.Day)] = &cachedUsage{usage: usage, counted: make(map[uuid.UUID]decimal.Decimal)}
}

func (c *memoryUsageCache) Get(ctx context.Context, accountID uuid.UUID, day time.Time) (domain.DailyUsage, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return domain.DailyUsage{}, false, c.getErr
	}
	entry, ok := c.entries[cacheKey(accountID, day)]
	if !ok {
		return domain.DailyUsage{}, false, nil
	}
	return entry.usage, true, nil
}

func (c *memoryUsageCache) Merge(ctx context.Context, accountID uuid.UUID, day time.Time, records []domain.TransactionRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.merges++
	key := cacheKey(accountID, day)
	entry, ok := c.entries[key]
	if !ok {
		entry = &cachedUsage{counted: make(map[uuid.UUID]decimal.Decimal)}
		c.entries[key] = entry
	}
	for _, rec := range records {
		if rec.Status != domain.StatusCompleted || rec.SenderAccountID != accountID {
			continue
		}
		if _, seen := entry.counted[rec.ID]; !seen {
			entry.counted[rec.ID] = rec.Amount
		}
	}
	usage := domain.DailyUsage{AccountID: accountID, Day: domain.UTCDay(day), TotalAmountOut: decimal.Zero}
	for _, amount := range entry.counted {
		usage = usage.Add(amount)
	}
	entry.usage = usage
	return nil
}

func (c *memoryUsageCache) Increment(ctx context.Context, record domain.TransactionRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[cacheKey(record.SenderAccountID, record.CreatedAt)]
	if !ok {
		return nil
	}
	if _, seen := entry.counted[record.ID]; seen {
		return nil
	}
	entry.counted[record.ID] = record.Amount
	entry.usage = entry.usage.Add(record.Amount)
	return nil
}
