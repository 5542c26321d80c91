package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/transfa/cash-transfer-service/internal/domain"
)

// Each counted transaction is kept as a "tx:<id>" field holding its cents, so
// a record is folded in at most once no matter how often it is replayed.
//
// Increment applies only to a key that already holds a full snapshot, so a
// partial counter is never created from increments alone.
var usageIncrementScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HSETNX", KEYS[1], ARGV[1], ARGV[2]) == 0 then
  return 0
end
redis.call("HINCRBY", KEYS[1], "count", 1)
redis.call("HINCRBY", KEYS[1], "cents", ARGV[2])
return 1
`)

// Merge adds the snapshot's transactions that are not yet present, then
// rewrites count and cents from the full set of transaction fields.
var usageMergeScript = redis.NewScript(`
for i = 2, #ARGV, 2 do
  redis.call("HSETNX", KEYS[1], ARGV[i], ARGV[i + 1])
end
local count = 0
local cents = 0
local fields = redis.call("HGETALL", KEYS[1])
for i = 1, #fields, 2 do
  if string.sub(fields[i], 1, 3) == "tx:" then
    count = count + 1
    cents = cents + tonumber(fields[i + 1])
  end
end
redis.call("HSET", KEYS[1], "count", count, "cents", cents)
redis.call("EXPIREAT", KEYS[1], ARGV[1])
return count
`)

const usageKeyGrace = time.Hour

// RedisUsageCache stores daily usage as a hash {count, cents, tx:<id>...} per account and day.
type RedisUsageCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisUsageCache(client redis.UniversalClient, prefix string) *RedisUsageCache {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "transfa:daily_usage"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisUsageCache{
		client: client,
		prefix: trimmedPrefix,
	}
}

func (c *RedisUsageCache) key(accountID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, accountID, domain.DayKey(day))
}

func (c *RedisUsageCache) Get(ctx context.Context, accountID uuid.UUID, day time.Time) (domain.DailyUsage, bool, error) {
	usage := domain.DailyUsage{AccountID: accountID, Day: domain.UTCDay(day), TotalAmountOut: decimal.Zero}
	if c == nil || c.client == nil {
		return usage, false, nil
	}

	fields, err := c.client.HGetAll(ctx, c.key(accountID, day)).Result()
	if err != nil {
		return usage, false, err
	}
	rawCount, hasCount := fields["count"]
	rawCents, hasCents := fields["cents"]
	if !hasCount || !hasCents {
		return usage, false, nil
	}

	count, err := strconv.Atoi(rawCount)
	if err != nil {
		return usage, false, fmt.Errorf("unexpected usage count %q: %w", rawCount, err)
	}
	cents, err := strconv.ParseInt(rawCents, 10, 64)
	if err != nil {
		return usage, false, fmt.Errorf("unexpected usage cents %q: %w", rawCents, err)
	}

	usage.TransferCount = count
	usage.TotalAmountOut = decimal.New(cents, -2)
	return usage, true, nil
}

func (c *RedisUsageCache) Merge(ctx context.Context, accountID uuid.UUID, day time.Time, records []domain.TransactionRecord) error {
	if c == nil || c.client == nil {
		return nil
	}
	return usageMergeScript.Run(ctx, c.client, []string{c.key(accountID, day)}, mergeArgs(accountID, day, records)...).Err()
}

func (c *RedisUsageCache) Increment(ctx context.Context, record domain.TransactionRecord) error {
	if c == nil || c.client == nil || record.Status != domain.StatusCompleted {
		return nil
	}
	key := c.key(record.SenderAccountID, record.CreatedAt)
	return usageIncrementScript.Run(ctx, c.client, []string{key}, usageField(record.ID), toCents(record.Amount)).Err()
}

// mergeArgs lays out the merge script arguments: the expiry as a unix
// timestamp, then one field/cents pair per completed outgoing record.
func mergeArgs(accountID uuid.UUID, day time.Time, records []domain.TransactionRecord) []interface{} {
	expireAt := domain.UTCDay(day).AddDate(0, 0, 1).Add(usageKeyGrace)
	args := make([]interface{}, 0, 1+2*len(records))
	args = append(args, expireAt.Unix())
	for _, rec := range records {
		if rec.Status != domain.StatusCompleted || rec.SenderAccountID != accountID {
			continue
		}
		args = append(args, usageField(rec.ID), toCents(rec.Amount))
	}
	return args
}

func usageField(transactionID uuid.UUID) string {
	return "tx:" + transactionID.String()
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}
