/**
 * @description
 * This file defines the core domain models for the cash-transfer-service.
 * These structs represent the accounts, balances, transfer requests and ledger
 * records used throughout the engine, the storage layer and the HTTP API.
 *
 * @notes
 * - Amounts are `decimal.Decimal` values held at two decimal places (centavos).
 *   Binary floating point is never used for money.
 * - A TransactionRecord is immutable once written; there is no update path.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state persisted with a transaction record.
type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
	StatusCancelled TransactionStatus = "CANCELLED"
)

// Account is the directory view of a wallet: who owns it and how it is addressed.
type Account struct {
	ID           uuid.UUID `json:"id"`
	MobileNumber string    `json:"mobile_number"`
	DisplayName  string    `json:"display_name"`
}

// Balance maps directly to the `balances` table.
type Balance struct {
	AccountID uuid.UUID       `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TransferRequest is the input to a single transfer attempt. It is never persisted.
type TransferRequest struct {
	SenderAccountID     uuid.UUID       `json:"sender_account_id"`
	RecipientIdentifier string          `json:"recipient_phone"`
	Amount              decimal.Decimal `json:"amount"`
	Description         string          `json:"description"`
}

// TransactionRecord is the ledger entry written for every transfer that reaches commit.
// This struct maps directly to the `transactions` table in the database.
type TransactionRecord struct {
	ID                  uuid.UUID         `json:"id"`
	SenderAccountID     uuid.UUID         `json:"sender_account_id"`
	RecipientAccountID  uuid.UUID         `json:"recipient_account_id"`
	SenderIdentifier    string            `json:"sender_phone"`
	RecipientIdentifier string            `json:"recipient_phone"`
	Amount              decimal.Decimal   `json:"amount"`
	Fee                 decimal.Decimal   `json:"fee"`
	Status              TransactionStatus `json:"status"`
	Description         string            `json:"description"`
	CreatedAt           time.Time         `json:"created_at"`
}

// TotalDebit is what the sender pays for a transfer of amount: the amount
// itself plus the fee. The recipient is credited the amount only.
func TotalDebit(amount, fee decimal.Decimal) decimal.Decimal {
	return amount.Add(fee)
}

// DailyUsage is the outgoing volume of one account over one UTC calendar day,
// counted over COMPLETED records only.
type DailyUsage struct {
	AccountID      uuid.UUID       `json:"account_id"`
	Day            time.Time       `json:"day"`
	TotalAmountOut decimal.Decimal `json:"total_amount_out"`
	TransferCount  int             `json:"transfer_count"`
}

// Add returns the usage after one more outgoing transfer of amount.
func (u DailyUsage) Add(amount decimal.Decimal) DailyUsage {
	u.TotalAmountOut = u.TotalAmountOut.Add(amount)
	u.TransferCount++
	return u
}

// DailySummary is DailyUsage plus what is still allowed today.
type DailySummary struct {
	AccountID       uuid.UUID       `json:"account_id"`
	Day             string          `json:"day"`
	TotalAmountOut  decimal.Decimal `json:"total_amount_out"`
	TransferCount   int             `json:"transfer_count"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	RemainingCount  int             `json:"remaining_count"`
}

// UsageFromRecords folds completed outgoing records into a DailyUsage.
// Records with any other status are ignored.
func UsageFromRecords(accountID uuid.UUID, day time.Time, records []TransactionRecord) DailyUsage {
	usage := DailyUsage{AccountID: accountID, Day: UTCDay(day), TotalAmountOut: decimal.Zero}
	for _, rec := range records {
		if rec.Status != StatusCompleted || rec.SenderAccountID != accountID {
			continue
		}
		usage = usage.Add(rec.Amount)
	}
	return usage
}
