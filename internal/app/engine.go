/**
 * @description
 * This file contains the funds-transfer engine, the core business logic of the
 * cash-transfer-service. The engine validates a transfer request, computes the
 * service fee, enforces the sender's daily limits and then moves the money in one
 * unit of work: both balance rows are locked, sufficiency and limits are checked
 * again under the locks, the sender is debited amount plus fee, the recipient is
 * credited the amount and the transaction record is appended. Either all of it
 * commits or none of it does.
 *
 * @dependencies
 * - context, errors, fmt, log: Standard Go libraries.
 * - github.com/google/uuid: Account and transaction identifiers.
 * - github.com/shopspring/decimal: Fixed-point money arithmetic.
 * - internal/domain, internal/store: Domain models and storage contracts.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/cash-transfer-service/internal/domain"
	"github.com/transfa/cash-transfer-service/internal/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	defaultEventTopic   = "wallet.events"
)

// EventPublisher is implemented by the RabbitMQ and Kafka producers.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// TransferResult is the outcome of Engine.Execute. Err is nil exactly when Success is true.
type TransferResult struct {
	Success     bool                      `json:"success"`
	Code        string                    `json:"code,omitempty"`
	Message     string                    `json:"message"`
	Transaction *domain.TransactionRecord `json:"transaction,omitempty"`
	Err         error                     `json:"-"`
}

// Engine executes transfers. It holds no per-request state and is safe for concurrent use.
type Engine struct {
	repo       store.Repository
	fees       FeePolicy
	limits     *LimitTracker
	publisher  EventPublisher
	eventTopic string
	policy     TransferPolicy
}

// NewEngine wires the engine. publisher may be nil, in which case no events are emitted.
func NewEngine(repo store.Repository, fees FeePolicy, limits *LimitTracker, publisher EventPublisher, policy TransferPolicy) *Engine {
	return &Engine{
		repo:       repo,
		fees:       fees,
		limits:     limits,
		publisher:  publisher,
		eventTopic: defaultEventTopic,
		policy:     policy,
	}
}

// SetEventTopic overrides the exchange (RabbitMQ) or topic (Kafka) events go to.
func (e *Engine) SetEventTopic(topic string) {
	if topic != "" {
		e.eventTopic = topic
	}
}

// Execute runs one transfer attempt. Rejections come back in the result with a
// nil error; the error is non-nil only when storage failed, in which case no
// money moved and no record was written.
func (e *Engine) Execute(ctx context.Context, req domain.TransferRequest) (TransferResult, error) {
	recipientPhone := domain.NormalizeMobileNumber(req.RecipientIdentifier)

	if rej := e.validateAmount(req.Amount); rej != nil {
		return e.reject(req, rej), nil
	}
	if !domain.IsValidMobileNumber(recipientPhone) {
		return e.reject(req, newTransferError(ErrInvalidRecipientFormat,
			"Invalid mobile number format. Must be 11 digits starting with 09.")), nil
	}

	sender, err := e.repo.FindAccountByID(ctx, req.SenderAccountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return e.reject(req, senderNotFound()), nil
		}
		return e.fail(req, fmt.Errorf("find sender: %w", err))
	}
	if sender.MobileNumber == recipientPhone {
		return e.reject(req, selfTransfer()), nil
	}

	recipient, err := e.repo.Resolve(ctx, recipientPhone)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return e.reject(req, newTransferError(ErrRecipientNotFound,
				"Recipient account not found. Please verify the mobile number.")), nil
		}
		return e.fail(req, fmt.Errorf("resolve recipient: %w", err))
	}
	if recipient.ID == sender.ID {
		return e.reject(req, selfTransfer()), nil
	}

	fee := e.fees.Fee(req.Amount)
	totalDebit := domain.TotalDebit(req.Amount, fee)

	balance, err := e.repo.GetBalance(ctx, sender.ID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return e.reject(req, senderNotFound()), nil
		}
		return e.fail(req, fmt.Errorf("read sender balance: %w", err))
	}
	if balance.Amount.LessThan(totalDebit) {
		return e.reject(req, insufficientFunds(totalDebit, balance.Amount)), nil
	}

	now, err := e.repo.Now(ctx)
	if err != nil {
		return e.fail(req, fmt.Errorf("read store clock: %w", err))
	}
	rej, err := e.limits.CheckTransfer(ctx, sender.ID, now, req.Amount)
	if err != nil {
		return e.fail(req, fmt.Errorf("read daily usage: %w", err))
	}
	if rej != nil {
		return e.reject(req, rej), nil
	}

	record, err := e.commit(ctx, sender, recipient, req, fee)
	if err != nil {
		var rej *TransferError
		if errors.As(err, &rej) {
			return e.reject(req, rej), nil
		}
		return e.fail(req, err)
	}

	e.afterCommit(ctx, record)

	log.Printf("level=info component=engine msg=\"transfer completed\" transaction_id=%s sender_account_id=%s recipient_account_id=%s amount=%s fee=%s",
		record.ID, record.SenderAccountID, record.RecipientAccountID, record.Amount.StringFixed(2), record.Fee.StringFixed(2))

	return TransferResult{
		Success: true,
		Message: fmt.Sprintf("Transfer successful! %s sent to %s. Service fee: %s",
			domain.FormatPeso(record.Amount), record.RecipientIdentifier, domain.FormatPeso(record.Fee)),
		Transaction: &record,
	}, nil
}

// commit performs the atomic part of a transfer. Balance sufficiency and daily
// limits are re-derived under the row locks because the pre-checks in Execute
// may be stale by the time the locks are granted.
func (e *Engine) commit(ctx context.Context, sender, recipient *domain.Account, req domain.TransferRequest, fee decimal.Decimal) (domain.TransactionRecord, error) {
	if e.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.policy.Timeout)
		defer cancel()
	}

	amount := req.Amount
	totalDebit := domain.TotalDebit(amount, fee)
	var record domain.TransactionRecord

	err := e.repo.WithinTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		balances, err := tx.LockBalances(ctx, sender.ID, recipient.ID)
		if err != nil {
			return err
		}
		available := balances[sender.ID]
		if available.LessThan(totalDebit) {
			return insufficientFunds(totalDebit, available)
		}

		now, err := tx.Now(ctx)
		if err != nil {
			return err
		}
		usage, err := tx.DailyUsage(ctx, sender.ID, now)
		if err != nil {
			return err
		}
		if rej := e.limits.Check(usage, amount); rej != nil {
			return rej
		}

		if _, err := tx.AdjustBalance(ctx, sender.ID, totalDebit.Neg()); err != nil {
			if errors.Is(err, store.ErrInsufficientFunds) {
				return insufficientFunds(totalDebit, available)
			}
			return err
		}
		if _, err := tx.AdjustBalance(ctx, recipient.ID, amount); err != nil {
			return err
		}

		rec := domain.TransactionRecord{
			SenderAccountID:     sender.ID,
			RecipientAccountID:  recipient.ID,
			SenderIdentifier:    sender.MobileNumber,
			RecipientIdentifier: recipient.MobileNumber,
			Amount:              amount,
			Fee:                 fee,
			Status:              domain.StatusCompleted,
			Description:         req.Description,
		}
		if err := tx.AppendTransaction(ctx, &rec); err != nil {
			return err
		}
		record = rec
		return nil
	})
	if err != nil {
		return domain.TransactionRecord{}, err
	}
	return record, nil
}

// afterCommit updates the usage cache and publishes the completion event.
// Neither can undo the transfer, so failures are only logged.
func (e *Engine) afterCommit(ctx context.Context, record domain.TransactionRecord) {
	e.limits.RecordTransfer(ctx, record)

	if e.publisher == nil {
		return
	}
	event := domain.NewTransferCompletedEvent(record)
	if err := e.publisher.Publish(ctx, e.eventTopic, domain.TransferCompletedRoutingKey, event); err != nil {
		log.Printf("level=warn component=engine msg=\"transfer event publish failed\" transaction_id=%s err=%v", record.ID, err)
	}
}

func (e *Engine) validateAmount(amount decimal.Decimal) *TransferError {
	if !amount.IsPositive() {
		return newTransferError(ErrInvalidAmount, "Transfer amount must be greater than zero.")
	}
	if !domain.HasCentavoPrecision(amount) {
		return newTransferError(ErrInvalidAmount, "Transfer amount cannot have more than 2 decimal places.")
	}
	if amount.LessThan(e.policy.MinAmount) {
		return newTransferError(ErrInvalidAmount, "Minimum transfer amount is %s", domain.FormatPeso(e.policy.MinAmount))
	}
	if amount.GreaterThan(e.policy.MaxAmount) {
		return newTransferError(ErrInvalidAmount, "Maximum transfer amount is %s", domain.FormatPeso(e.policy.MaxAmount))
	}
	return nil
}

func (e *Engine) reject(req domain.TransferRequest, rej *TransferError) TransferResult {
	log.Printf("level=warn component=engine msg=\"transfer rejected\" code=%s sender_account_id=%s recipient_phone=%q amount=%s reason=%q",
		rej.Code(), req.SenderAccountID, req.RecipientIdentifier, req.Amount.String(), rej.Message)
	return TransferResult{Success: false, Code: rej.Code(), Message: rej.Message, Err: rej}
}

func (e *Engine) fail(req domain.TransferRequest, cause error) (TransferResult, error) {
	terr := &TransferError{
		Kind:    ErrPersistenceFailure,
		Message: "Transfer could not be completed. Please try again later.",
		Cause:   cause,
	}
	log.Printf("level=error component=engine msg=\"transfer failed\" sender_account_id=%s recipient_phone=%q amount=%s err=%v",
		req.SenderAccountID, req.RecipientIdentifier, req.Amount.String(), cause)
	return TransferResult{Success: false, Code: terr.Code(), Message: terr.Message, Err: terr}, terr
}

// PreviewFee returns the fee a transfer of amount would be charged. It has no side effects.
func (e *Engine) PreviewFee(amount decimal.Decimal) decimal.Decimal {
	return e.fees.Fee(amount)
}

// DailySummary reports today's outgoing usage of an account and what remains.
func (e *Engine) DailySummary(ctx context.Context, accountID uuid.UUID) (domain.DailySummary, error) {
	if _, err := e.repo.FindAccountByID(ctx, accountID); err != nil {
		return domain.DailySummary{}, err
	}
	now, err := e.repo.Now(ctx)
	if err != nil {
		return domain.DailySummary{}, fmt.Errorf("read store clock: %w", err)
	}
	usage, err := e.limits.DailyUsage(ctx, accountID, now)
	if err != nil {
		return domain.DailySummary{}, err
	}
	return e.limits.Summary(usage), nil
}

// FindTransfer returns a single transaction record.
func (e *Engine) FindTransfer(ctx context.Context, transactionID uuid.UUID) (*domain.TransactionRecord, error) {
	return e.repo.FindTransactionByID(ctx, transactionID)
}

// TransferPage is one page of an account's transfer history. Limit and Offset
// are the values actually applied after clamping.
type TransferPage struct {
	Transfers []domain.TransactionRecord `json:"transfers"`
	Limit     int                        `json:"limit"`
	Offset    int                        `json:"offset"`
}

// TransferHistory lists transfers sent or received by an account, newest first.
// A non-positive limit means the default page size; larger limits are capped.
func (e *Engine) TransferHistory(ctx context.Context, accountID uuid.UUID, limit int, offset int) (TransferPage, error) {
	if _, err := e.repo.FindAccountByID(ctx, accountID); err != nil {
		return TransferPage{}, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	records, err := e.repo.ListTransactionsByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return TransferPage{}, err
	}
	if records == nil {
		records = []domain.TransactionRecord{}
	}
	return TransferPage{Transfers: records, Limit: limit, Offset: offset}, nil
}

// LookupRecipient resolves a mobile number for the sender to confirm before sending.
func (e *Engine) LookupRecipient(ctx context.Context, mobileNumber string) (*domain.Account, error) {
	phone := domain.NormalizeMobileNumber(mobileNumber)
	if !domain.IsValidMobileNumber(phone) {
		return nil, newTransferError(ErrInvalidRecipientFormat, "Invalid mobile number format. Must be 11 digits starting with 09.")
	}
	account, err := e.repo.Resolve(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, newTransferError(ErrRecipientNotFound, "Recipient account not found. Please verify the mobile number.")
		}
		return nil, err
	}
	name, err := e.repo.DisplayName(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	account.DisplayName = name
	return account, nil
}

// Policy returns the limits the engine enforces.
func (e *Engine) Policy() TransferPolicy {
	return e.policy
}

func senderNotFound() *TransferError {
	return newTransferError(ErrSenderNotFound, "Sender account not found.")
}

func selfTransfer() *TransferError {
	return newTransferError(ErrSelfTransfer, "Cannot transfer to your own account.")
}

func insufficientFunds(required, available decimal.Decimal) *TransferError {
	return newTransferError(ErrInsufficientFunds, "Insufficient balance. Required: %s, Available: %s",
		domain.FormatPeso(required), domain.FormatPeso(available))
}
