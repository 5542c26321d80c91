/**
 * @description
 * This file defines the storage contracts required by the cash-transfer-service:
 * the ledger of balances, the append-only transaction log, the account directory,
 * and the unit of work that binds balance mutations and log appends into one
 * all-or-nothing step. The engine depends only on these interfaces; PostgreSQL and
 * in-memory implementations live alongside.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/google/uuid: Account and transaction identifiers.
 * - github.com/shopspring/decimal: Fixed-point money values.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/cash-transfer-service/internal/domain"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrBalanceNotLocked    = errors.New("balance not locked in this unit of work")
)

// Tx is the view of storage available inside a unit of work. Everything written
// through a Tx becomes visible together on commit or not at all.
type Tx interface {
	// Now returns the store clock.
	Now(ctx context.Context) (time.Time, error)
	// LockBalances takes exclusive locks on the balances of ids in ascending id
	// order and returns their current amounts.
	LockBalances(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	// AdjustBalance adds delta to a locked balance and returns the new amount.
	// A result below zero fails with ErrInsufficientFunds and changes nothing.
	AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
	// AppendTransaction assigns ID and CreatedAt and stages the record.
	AppendTransaction(ctx context.Context, rec *domain.TransactionRecord) error
	// DailyUsage reads the log as seen from inside this unit of work.
	DailyUsage(ctx context.Context, accountID uuid.UUID, day time.Time) (domain.DailyUsage, error)
}

// UnitOfWork runs fn atomically. If fn returns an error, or the commit fails,
// nothing fn wrote is kept.
type UnitOfWork interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// LedgerStore reads committed balances and the store clock.
type LedgerStore interface {
	GetBalance(ctx context.Context, accountID uuid.UUID) (*domain.Balance, error)
	Now(ctx context.Context) (time.Time, error)
}

// TransactionLog reads committed transaction records.
type TransactionLog interface {
	QueryCompletedBySenderAndDay(ctx context.Context, accountID uuid.UUID, day time.Time) ([]domain.TransactionRecord, error)
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.TransactionRecord, error)
	// ListTransactionsByAccount returns records where the account is sender or
	// recipient, newest first.
	ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID, limit int, offset int) ([]domain.TransactionRecord, error)
	// ListSendersForDay returns every account with at least one completed
	// outgoing transfer on day.
	ListSendersForDay(ctx context.Context, day time.Time) ([]uuid.UUID, error)
}

// Directory resolves public identifiers to accounts. It is read-only.
type Directory interface {
	Resolve(ctx context.Context, mobileNumber string) (*domain.Account, error)
	DisplayName(ctx context.Context, accountID uuid.UUID) (string, error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
}

// Repository is everything the transfer engine needs from storage.
type Repository interface {
	UnitOfWork
	LedgerStore
	TransactionLog
	Directory
}

// DayBounds returns the half-open interval [start, end) of the UTC day containing day.
func DayBounds(day time.Time) (time.Time, time.Time) {
	start := domain.UTCDay(day)
	return start, start.AddDate(0, 0, 1)
}
