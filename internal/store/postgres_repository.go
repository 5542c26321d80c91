/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains the SQL for the balances ledger, the transactions log and the
 * accounts directory, and runs units of work on a single pgx transaction so that
 * a transfer's debit, credit and log append commit or roll back together.
 *
 * @dependencies
 * - context, errors, fmt, sort, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Money values are exchanged with the database as numeric text.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/transfa/cash-transfer-service/internal/domain"
)

const transactionColumns = `id, sender_account_id, recipient_account_id, sender_phone, recipient_phone,
	amount::text, fee::text, status, description, created_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

// WithinTransaction runs fn on a READ COMMITTED transaction. Row locks taken with
// LockBalances are held until commit or rollback.
func (r *PostgresRepository) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &postgresTx{tx: tx, locked: make(map[uuid.UUID]struct{})}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetBalance reads the committed balance of an account without locking it.
func (r *PostgresRepository) GetBalance(ctx context.Context, accountID uuid.UUID) (*domain.Balance, error) {
	balance := domain.Balance{AccountID: accountID}
	var amount string
	err := r.db.QueryRow(ctx, "SELECT amount::text, updated_at FROM balances WHERE account_id = $1", accountID).Scan(&amount, &balance.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if balance.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse balance for account %s: %w", accountID, err)
	}
	return &balance, nil
}

// Now returns the database clock.
func (r *PostgresRepository) Now(ctx context.Context) (time.Time, error) {
	return queryNow(ctx, r.db)
}

// QueryCompletedBySenderAndDay returns the completed outgoing records of one account on one UTC day.
func (r *PostgresRepository) QueryCompletedBySenderAndDay(ctx context.Context, accountID uuid.UUID, day time.Time) ([]domain.TransactionRecord, error) {
	start, end := DayBounds(day)
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE sender_account_id = $1 AND status = $2 AND created_at >= $3 AND created_at < $4
		ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, accountID, string(domain.StatusCompleted), start, end)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// FindTransactionByID retrieves a single transaction record.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.TransactionRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, transactionID)
	rec, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListTransactionsByAccount returns records where the account is sender or recipient, newest first.
func (r *PostgresRepository) ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID, limit int, offset int) ([]domain.TransactionRecord, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE sender_account_id = $1 OR recipient_account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// ListSendersForDay returns every account with a completed outgoing transfer on day.
func (r *PostgresRepository) ListSendersForDay(ctx context.Context, day time.Time) ([]uuid.UUID, error) {
	start, end := DayBounds(day)
	rows, err := r.db.Query(ctx, `SELECT DISTINCT sender_account_id FROM transactions
		WHERE status = $1 AND created_at >= $2 AND created_at < $3`, string(domain.StatusCompleted), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Resolve looks up an account by its mobile number.
func (r *PostgresRepository) Resolve(ctx context.Context, mobileNumber string) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, "SELECT id, mobile_number, display_name FROM accounts WHERE mobile_number = $1", mobileNumber))
}

// FindAccountByID looks up an account by id.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, "SELECT id, mobile_number, display_name FROM accounts WHERE id = $1", accountID))
}

// DisplayName returns the name shown to senders when they confirm a recipient.
func (r *PostgresRepository) DisplayName(ctx context.Context, accountID uuid.UUID) (string, error) {
	account, err := r.FindAccountByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	return account.DisplayName, nil
}

// postgresTx implements Tx on top of a pgx transaction.
type postgresTx struct {
	tx     pgx.Tx
	locked map[uuid.UUID]struct{}
}

func (t *postgresTx) Now(ctx context.Context) (time.Time, error) {
	return queryNow(ctx, t.tx)
}

// LockBalances locks rows one at a time in ascending id order so that two
// transfers touching the same pair of accounts always queue in the same order.
func (t *postgresTx) LockBalances(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	ordered := sortedUnique(ids)
	balances := make(map[uuid.UUID]decimal.Decimal, len(ordered))
	for _, id := range ordered {
		var amount string
		// Use FOR UPDATE to lock the row until the transaction ends.
		err := t.tx.QueryRow(ctx, "SELECT amount::text FROM balances WHERE account_id = $1 FOR UPDATE", id).Scan(&amount)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("lock balance %s: %w", id, ErrAccountNotFound)
			}
			return nil, fmt.Errorf("lock balance %s: %w", id, err)
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse balance for account %s: %w", id, err)
		}
		balances[id] = value
		t.locked[id] = struct{}{}
	}
	return balances, nil
}

func (t *postgresTx) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	if _, ok := t.locked[accountID]; !ok {
		return decimal.Zero, fmt.Errorf("adjust balance %s: %w", accountID, ErrBalanceNotLocked)
	}

	var amount string
	err := t.tx.QueryRow(ctx, `UPDATE balances
		SET amount = amount + $2::numeric, updated_at = now()
		WHERE account_id = $1 AND amount + $2::numeric >= 0
		RETURNING amount::text`, accountID, delta.StringFixed(2)).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrInsufficientFunds
		}
		return decimal.Zero, fmt.Errorf("adjust balance %s: %w", accountID, err)
	}
	return decimal.NewFromString(amount)
}

func (t *postgresTx) AppendTransaction(ctx context.Context, rec *domain.TransactionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	query := `INSERT INTO transactions
		(id, sender_account_id, recipient_account_id, sender_phone, recipient_phone, amount, fee, status, description)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9)
		RETURNING created_at`
	err := t.tx.QueryRow(ctx, query,
		rec.ID,
		rec.SenderAccountID,
		rec.RecipientAccountID,
		rec.SenderIdentifier,
		rec.RecipientIdentifier,
		rec.Amount.StringFixed(2),
		rec.Fee.StringFixed(2),
		string(rec.Status),
		rec.Description,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func (t *postgresTx) DailyUsage(ctx context.Context, accountID uuid.UUID, day time.Time) (domain.DailyUsage, error) {
	return queryDailyUsage(ctx, t.tx, accountID, day)
}

func queryNow(ctx context.Context, q querier) (time.Time, error) {
	var now time.Time
	if err := q.QueryRow(ctx, "SELECT now()").Scan(&now); err != nil {
		return time.Time{}, err
	}
	return now.UTC(), nil
}

func queryDailyUsage(ctx context.Context, q querier, accountID uuid.UUID, day time.Time) (domain.DailyUsage, error) {
	start, end := DayBounds(day)
	usage := domain.DailyUsage{AccountID: accountID, Day: start}

	var total string
	var count int64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::text, COUNT(*) FROM transactions
		WHERE sender_account_id = $1 AND status = $2 AND created_at >= $3 AND created_at < $4`,
		accountID, string(domain.StatusCompleted), start, end).Scan(&total, &count)
	if err != nil {
		return usage, fmt.Errorf("daily usage for account %s: %w", accountID, err)
	}

	usage.TotalAmountOut, err = decimal.NewFromString(total)
	if err != nil {
		return usage, fmt.Errorf("parse daily usage for account %s: %w", accountID, err)
	}
	usage.TransferCount = int(count)
	return usage, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	if err := row.Scan(&account.ID, &account.MobileNumber, &account.DisplayName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func scanTransaction(row pgx.Row) (*domain.TransactionRecord, error) {
	var rec domain.TransactionRecord
	var amount, fee, status string
	err := row.Scan(
		&rec.ID,
		&rec.SenderAccountID,
		&rec.RecipientAccountID,
		&rec.SenderIdentifier,
		&rec.RecipientIdentifier,
		&amount,
		&fee,
		&status,
		&rec.Description,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount of transaction %s: %w", rec.ID, err)
	}
	if rec.Fee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("parse fee of transaction %s: %w", rec.ID, err)
	}
	rec.Status = domain.TransactionStatus(status)
	return &rec, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.TransactionRecord, error) {
	defer rows.Close()

	records := make([]domain.TransactionRecord, 0)
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func sortedUnique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// SortedAccountIDs returns ids deduplicated in the order locks must be taken.
func SortedAccountIDs(ids ...uuid.UUID) []uuid.UUID {
	return sortedUnique(ids)
}
