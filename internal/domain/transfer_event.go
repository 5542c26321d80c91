package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferCompletedRoutingKey is the routing key (RabbitMQ) or message key (Kafka)
// used for TransferCompletedEvent.
const TransferCompletedRoutingKey = "transfer.completed"

// TransferCompletedEvent is published after a transfer has been committed.
type TransferCompletedEvent struct {
	EventID            string          `json:"event_id"`
	EventType          string          `json:"event_type"`
	TransactionID      uuid.UUID       `json:"transaction_id"`
	SenderAccountID    uuid.UUID       `json:"sender_account_id"`
	RecipientAccountID uuid.UUID       `json:"recipient_account_id"`
	RecipientPhone     string          `json:"recipient_phone"`
	Amount             decimal.Decimal `json:"amount"`
	Fee                decimal.Decimal `json:"fee"`
	Currency           string          `json:"currency"`
	OccurredAt         time.Time       `json:"occurred_at"`
}

// NewTransferCompletedEvent builds the event for a committed record.
func NewTransferCompletedEvent(rec TransactionRecord) TransferCompletedEvent {
	return TransferCompletedEvent{
		EventID:            uuid.NewString(),
		EventType:          TransferCompletedRoutingKey,
		TransactionID:      rec.ID,
		SenderAccountID:    rec.SenderAccountID,
		RecipientAccountID: rec.RecipientAccountID,
		RecipientPhone:     rec.RecipientIdentifier,
		Amount:             rec.Amount,
		Fee:                rec.Fee,
		Currency:           CurrencyCode,
		OccurredAt:         rec.CreatedAt,
	}
}
