package app

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferPolicy holds the tunable limits of the engine.
type TransferPolicy struct {
	MinAmount         decimal.Decimal
	MaxAmount         decimal.Decimal
	FlatFee           decimal.Decimal
	FreeThreshold     decimal.Decimal
	MaxDailyAmount    decimal.Decimal
	MaxDailyTransfers int
	Timeout           time.Duration
}

// DefaultTransferPolicy returns the production limits: ₱1.00 to ₱50,000.00 per
// transfer, a ₱5.00 fee below ₱500.00, and ₱100,000.00 or 20 transfers per day.
func DefaultTransferPolicy() TransferPolicy {
	return TransferPolicy{
		MinAmount:         decimal.RequireFromString("1.00"),
		MaxAmount:         decimal.RequireFromString("50000.00"),
		FlatFee:           decimal.RequireFromString("5.00"),
		FreeThreshold:     decimal.RequireFromString("500.00"),
		MaxDailyAmount:    decimal.RequireFromString("100000.00"),
		MaxDailyTransfers: 20,
		Timeout:           10 * time.Second,
	}
}

// FeePolicy maps a transfer amount to the service fee charged on top of it.
// Implementations must be pure.
type FeePolicy interface {
	Fee(amount decimal.Decimal) decimal.Decimal
}

// ThresholdFeePolicy charges FlatFee below FreeThreshold and nothing at or above it.
type ThresholdFeePolicy struct {
	FlatFee       decimal.Decimal
	FreeThreshold decimal.Decimal
}

func NewThresholdFeePolicy(policy TransferPolicy) ThresholdFeePolicy {
	return ThresholdFeePolicy{FlatFee: policy.FlatFee, FreeThreshold: policy.FreeThreshold}
}

func (p ThresholdFeePolicy) Fee(amount decimal.Decimal) decimal.Decimal {
	if amount.GreaterThanOrEqual(p.FreeThreshold) {
		return decimal.Zero
	}
	return p.FlatFee
}
