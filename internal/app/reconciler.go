/**
 * @description
 * Cron-driven reconciliation of the daily usage cache. Every run reads today's
 * completed transfers from the transaction log for each account that sent money
 * today and merges them into the cached entry, repairing drift from skipped
 * increments. Merging is keyed by transaction id, so a run that races a
 * post-commit increment never counts the same transfer twice.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/transfa/cash-transfer-service/internal/domain"
	"github.com/transfa/cash-transfer-service/internal/store"
)

const reconcileRunTimeout = 2 * time.Minute

// Reconciler manages the usage reconciliation job.
type Reconciler struct {
	cron     *cron.Cron
	ledger   store.LedgerStore
	txLog    store.TransactionLog
	limits   *LimitTracker
	logger   *slog.Logger
	schedule string
}

// NewReconciler creates a reconciler that runs on schedule (cron spec or @every).
func NewReconciler(ledger store.LedgerStore, txLog store.TransactionLog, limits *LimitTracker, logger *slog.Logger, schedule string) *Reconciler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Reconciler{
		cron:     c,
		ledger:   ledger,
		txLog:    txLog,
		limits:   limits,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the job and starts the cron scheduler.
func (r *Reconciler) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.runScheduled); err != nil {
		r.logger.Error("failed to schedule usage reconciliation job", "error", err)
		return fmt.Errorf("schedule usage reconciliation %q: %w", r.schedule, err)
	}
	r.logger.Info("scheduled usage reconciliation job", "schedule", r.schedule)
	r.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler.
func (r *Reconciler) Stop() context.Context {
	return r.cron.Stop()
}

func (r *Reconciler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileRunTimeout)
	defer cancel()

	if _, err := r.Reconcile(ctx); err != nil {
		r.logger.Error("usage reconciliation failed", "error", err)
	}
}

// Reconcile rebuilds today's cached usage for every active sender and returns
// how many accounts were refreshed. A failure on one account does not stop the run.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	now, err := r.ledger.Now(ctx)
	if err != nil {
		return 0, fmt.Errorf("read store clock: %w", err)
	}
	day := domain.UTCDay(now)

	senders, err := r.txLog.ListSendersForDay(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("list senders for %s: %w", domain.DayKey(day), err)
	}

	refreshed := 0
	for _, accountID := range senders {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if _, err := r.limits.Recompute(ctx, accountID, day); err != nil {
			r.logger.Warn("usage recompute failed", "account_id", accountID.String(), "error", err)
			continue
		}
		refreshed++
	}

	r.logger.Info("usage reconciliation finished", "day", domain.DayKey(day), "accounts", len(senders), "refreshed", refreshed)
	return refreshed, nil
}
