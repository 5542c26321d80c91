// Package memory is an in-process implementation of store.Repository.
// It backs the test suites and the demo mode of cmd when no DATABASE_URL is set.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/cash-transfer-service/internal/domain"
	"github.com/transfa/cash-transfer-service/internal/store"
)

var ErrDuplicateMobileNumber = errors.New("mobile number already registered")

// Store keeps accounts, balances and the transaction log in memory.
// Units of work serialize per account; disjoint accounts proceed in parallel.
type Store struct {
	mu       sync.RWMutex // guards every map and slice below
	accounts map[uuid.UUID]domain.Account
	byMobile map[string]uuid.UUID
	balances map[uuid.UUID]domain.Balance
	records  []domain.TransactionRecord
	locks    map[uuid.UUID]chan struct{}
	clock    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now as the store clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		accounts: make(map[uuid.UUID]domain.Account),
		byMobile: make(map[string]uuid.UUID),
		balances: make(map[uuid.UUID]domain.Balance),
		locks:    make(map[uuid.UUID]chan struct{}),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Repository = (*Store)(nil)

// AddAccount registers an account with an opening balance.
func (s *Store) AddAccount(account domain.Account, opening decimal.Decimal) error {
	if opening.IsNegative() {
		return fmt.Errorf("opening balance for %s: %w", account.MobileNumber, store.ErrInsufficientFunds)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byMobile[account.MobileNumber]; exists {
		return fmt.Errorf("%s: %w", account.MobileNumber, ErrDuplicateMobileNumber)
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	s.accounts[account.ID] = account
	s.byMobile[account.MobileNumber] = account.ID
	s.balances[account.ID] = domain.Balance{AccountID: account.ID, Amount: opening.Round(2), UpdatedAt: s.now()}
	return nil
}

// Transactions returns a copy of the whole log in append order.
func (s *Store) Transactions() []domain.TransactionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]domain.TransactionRecord, len(s.records))
	copy(copied, s.records)
	return copied
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

// WithinTransaction runs fn with staged writes that are applied only if fn
// succeeds and ctx is still live. Account locks are released on return.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx := &memoryTx{
		store:  s,
		held:   make(map[uuid.UUID]chan struct{}),
		staged: make(map[uuid.UUID]decimal.Decimal),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, amount := range tx.staged {
		s.balances[id] = domain.Balance{AccountID: id, Amount: amount, UpdatedAt: now}
	}
	s.records = append(s.records, tx.pending...)
	return nil
}

func (s *Store) GetBalance(ctx context.Context, accountID uuid.UUID) (*domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance, ok := s.balances[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return &balance, nil
}

func (s *Store) Now(ctx context.Context) (time.Time, error) {
	return s.now(), nil
}

func (s *Store) QueryCompletedBySenderAndDay(ctx context.Context, accountID uuid.UUID, day time.Time) ([]domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return completedOnDay(s.records, accountID, day), nil
}

func (s *Store) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.ID == transactionID {
			found := rec
			return &found, nil
		}
	}
	return nil, store.ErrTransactionNotFound
}

func (s *Store) ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID, limit int, offset int) ([]domain.TransactionRecord, error) {
	s.mu.RLock()
	matched := make([]domain.TransactionRecord, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.SenderAccountID == accountID || rec.RecipientAccountID == accountID {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	if offset >= len(matched) {
		return []domain.TransactionRecord{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) ListSendersForDay(ctx context.Context, day time.Time) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end := store.DayBounds(day)
	seen := make(map[uuid.UUID]struct{})
	var senders []uuid.UUID
	for _, rec := range s.records {
		if rec.Status != domain.StatusCompleted || rec.CreatedAt.Before(start) || !rec.CreatedAt.Before(end) {
			continue
		}
		if _, ok := seen[rec.SenderAccountID]; ok {
			continue
		}
		seen[rec.SenderAccountID] = struct{}{}
		senders = append(senders, rec.SenderAccountID)
	}
	return senders, nil
}

func (s *Store) Resolve(ctx context.Context, mobileNumber string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byMobile[mobileNumber]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	account := s.accounts[id]
	return &account, nil
}

func (s *Store) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return &account, nil
}

func (s *Store) DisplayName(ctx context.Context, accountID uuid.UUID) (string, error) {
	account, err := s.FindAccountByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	return account.DisplayName, nil
}

func (s *Store) lockFor(id uuid.UUID) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	return ch
}

func completedOnDay(records []domain.TransactionRecord, accountID uuid.UUID, day time.Time) []domain.TransactionRecord {
	start, end := store.DayBounds(day)
	out := make([]domain.TransactionRecord, 0)
	for _, rec := range records {
		if rec.SenderAccountID != accountID || rec.Status != domain.StatusCompleted {
			continue
		}
		if rec.CreatedAt.Before(start) || !rec.CreatedAt.Before(end) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// memoryTx is one unit of work. It is used by a single goroutine.
type memoryTx struct {
	store   *Store
	held    map[uuid.UUID]chan struct{}
	staged  map[uuid.UUID]decimal.Decimal
	pending []domain.TransactionRecord
}

func (t *memoryTx) Now(ctx context.Context) (time.Time, error) {
	return t.store.now(), nil
}

func (t *memoryTx) LockBalances(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	ordered := store.SortedAccountIDs(ids...)
	for _, id := range ordered {
		if _, ok := t.held[id]; ok {
			continue
		}
		t.store.mu.RLock()
		_, exists := t.store.balances[id]
		t.store.mu.RUnlock()
		if !exists {
			return nil, fmt.Errorf("lock balance %s: %w", id, store.ErrAccountNotFound)
		}

		ch := t.store.lockFor(id)
		select {
		case ch <- struct{}{}:
			t.held[id] = ch
		case <-ctx.Done():
			return nil, fmt.Errorf("lock balance %s: %w", id, ctx.Err())
		}
	}

	balances := make(map[uuid.UUID]decimal.Decimal, len(ordered))
	for _, id := range ordered {
		balances[id] = t.current(id)
	}
	return balances, nil
}

func (t *memoryTx) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	if _, ok := t.held[accountID]; !ok {
		return decimal.Zero, fmt.Errorf("adjust balance %s: %w", accountID, store.ErrBalanceNotLocked)
	}
	next := t.current(accountID).Add(delta)
	if next.IsNegative() {
		return decimal.Zero, store.ErrInsufficientFunds
	}
	t.staged[accountID] = next
	return next, nil
}

func (t *memoryTx) AppendTransaction(ctx context.Context, rec *domain.TransactionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = t.store.now()
	t.pending = append(t.pending, *rec)
	return nil
}

func (t *memoryTx) DailyUsage(ctx context.Context, accountID uuid.UUID, day time.Time) (domain.DailyUsage, error) {
	t.store.mu.RLock()
	records := completedOnDay(t.store.records, accountID, day)
	t.store.mu.RUnlock()

	records = append(records, completedOnDay(t.pending, accountID, day)...)
	return domain.UsageFromRecords(accountID, day, records), nil
}

func (t *memoryTx) current(id uuid.UUID) decimal.Decimal {
	if amount, ok := t.staged[id]; ok {
		return amount
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.balances[id].Amount
}

func (t *memoryTx) release() {
	for id, ch := range t.held {
		<-ch
		delete(t.held, id)
	}
}
