package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/cash-transfer-service/internal/domain"
	"github.com/transfa/cash-transfer-service/internal/store"
	"golang.org/x/sync/singleflight"
)

// usageLookupTimeout bounds a shared log query, which runs detached from the
// cancellation of whichever caller started it.
const usageLookupTimeout = 10 * time.Second

// UsageCache holds DailyUsage snapshots keyed by account and UTC day. It is an
// optimisation only: every value can be rebuilt from the transaction log.
// Entries remember which transactions they counted, so folding the same record
// in twice never changes them.
type UsageCache interface {
	Get(ctx context.Context, accountID uuid.UUID, day time.Time) (domain.DailyUsage, bool, error)
	// Merge folds the day's completed outgoing records into the entry, creating
	// it when missing, and recounts the entry from the transactions it holds.
	Merge(ctx context.Context, accountID uuid.UUID, day time.Time, records []domain.TransactionRecord) error
	// Increment folds one committed record into an existing entry. It does
	// nothing when there is no entry or the record is already counted.
	Increment(ctx context.Context, record domain.TransactionRecord) error
}

// DailyLimits caps the outgoing volume of one account per UTC day.
type DailyLimits struct {
	MaxAmount    decimal.Decimal
	MaxTransfers int
}

// LimitTracker derives daily usage from the transaction log and checks it
// against DailyLimits.
type LimitTracker struct {
	txLog  store.TransactionLog
	limits DailyLimits
	cache  UsageCache
	group  singleflight.Group
}

func NewLimitTracker(txLog store.TransactionLog, limits DailyLimits) *LimitTracker {
	return &LimitTracker{txLog: txLog, limits: limits}
}

// SetUsageCache enables the read-through cache. Call before serving traffic.
func (t *LimitTracker) SetUsageCache(cache UsageCache) {
	t.cache = cache
}

// DailyUsage returns the usage of accountID on the UTC day containing day,
// preferring the cache and falling back to the log. Concurrent misses for the
// same key share one log query.
func (t *LimitTracker) DailyUsage(ctx context.Context, accountID uuid.UUID, day time.Time) (domain.DailyUsage, error) {
	usage, _, err := t.dailyUsage(ctx, accountID, day)
	return usage, err
}

// CheckTransfer reports whether one more transfer of amount fits today's limits.
// Cached usage may admit a transfer but never rejects one on its own: a
// rejection is confirmed against the log first.
func (t *LimitTracker) CheckTransfer(ctx context.Context, accountID uuid.UUID, day time.Time, amount decimal.Decimal) (*TransferError, error) {
	usage, cached, err := t.dailyUsage(ctx, accountID, day)
	if err != nil {
		return nil, err
	}
	rej := t.Check(usage, amount)
	if rej == nil || !cached {
		return rej, nil
	}

	usage, err = t.Recompute(ctx, accountID, day)
	if err != nil {
		return nil, err
	}
	return t.Check(usage, amount), nil
}

func (t *LimitTracker) dailyUsage(ctx context.Context, accountID uuid.UUID, day time.Time) (domain.DailyUsage, bool, error) {
	day = domain.UTCDay(day)
	if t.cache != nil {
		usage, ok, err := t.cache.Get(ctx, accountID, day)
		if err != nil {
			log.Printf("level=warn component=usage_cache msg=\"cache read failed; using transaction log\" account_id=%s day=%s err=%v", accountID, domain.DayKey(day), err)
		} else if ok {
			return usage, true, nil
		}
	}

	key := accountID.String() + ":" + domain.DayKey(day)
	flight := t.group.DoChan(key, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), usageLookupTimeout)
		defer cancel()
		return t.Recompute(shared, accountID, day)
	})

	select {
	case <-ctx.Done():
		return domain.DailyUsage{}, false, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return domain.DailyUsage{}, false, res.Err
		}
		return res.Val.(domain.DailyUsage), false, nil
	}
}

// Recompute reads usage from the log and merges it into the cached entry.
func (t *LimitTracker) Recompute(ctx context.Context, accountID uuid.UUID, day time.Time) (domain.DailyUsage, error) {
	day = domain.UTCDay(day)
	records, err := t.txLog.QueryCompletedBySenderAndDay(ctx, accountID, day)
	if err != nil {
		return domain.DailyUsage{}, err
	}
	usage := domain.UsageFromRecords(accountID, day, records)
	if t.cache != nil {
		if err := t.cache.Merge(ctx, accountID, day, records); err != nil {
			log.Printf("level=warn component=usage_cache msg=\"cache merge failed\" account_id=%s day=%s err=%v", accountID, domain.DayKey(day), err)
		}
	}
	return usage, nil
}

// RecordTransfer folds a committed transfer into the cached usage, if any.
func (t *LimitTracker) RecordTransfer(ctx context.Context, record domain.TransactionRecord) {
	if t.cache == nil {
		return
	}
	if err := t.cache.Increment(ctx, record); err != nil {
		log.Printf("level=warn component=usage_cache msg=\"cache increment failed\" account_id=%s transaction_id=%s err=%v", record.SenderAccountID, record.ID, err)
	}
}

// Check returns a DailyLimitExceeded rejection if one more transfer of amount
// would break either cap, or nil. The count cap is checked first.
func (t *LimitTracker) Check(usage domain.DailyUsage, amount decimal.Decimal) *TransferError {
	if usage.TransferCount >= t.limits.MaxTransfers {
		return newTransferError(ErrDailyLimitExceeded,
			"Daily transfer limit exceeded. Maximum %d transfers per day.", t.limits.MaxTransfers)
	}
	if usage.TotalAmountOut.Add(amount).GreaterThan(t.limits.MaxAmount) {
		return newTransferError(ErrDailyLimitExceeded,
			"Daily transfer limit exceeded. Limit: %s, Already used: %s, Requested: %s",
			domain.FormatPeso(t.limits.MaxAmount),
			domain.FormatPeso(usage.TotalAmountOut),
			domain.FormatPeso(amount))
	}
	return nil
}

// Summary reports usage together with what is still allowed that day.
func (t *LimitTracker) Summary(usage domain.DailyUsage) domain.DailySummary {
	remainingAmount := t.limits.MaxAmount.Sub(usage.TotalAmountOut)
	if remainingAmount.IsNegative() {
		remainingAmount = decimal.Zero
	}
	remainingCount := t.limits.MaxTransfers - usage.TransferCount
	if remainingCount < 0 {
		remainingCount = 0
	}
	return domain.DailySummary{
		AccountID:       usage.AccountID,
		Day:             domain.DayKey(usage.Day),
		TotalAmountOut:  usage.TotalAmountOut,
		TransferCount:   usage.TransferCount,
		RemainingAmount: remainingAmount,
		RemainingCount:  remainingCount,
	}
}
