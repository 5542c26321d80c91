/**
 * @description
 * This file contains the HTTP handlers for the cash-transfer-service's API endpoints.
 * Handlers parse incoming requests, call the transfer engine and write the HTTP
 * response. They act as the bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameters.
 * - github.com/google/uuid, github.com/shopspring/decimal: Identifier and amount parsing.
 * - internal/app, internal/domain, internal/store: Engine, models and storage errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/cash-transfer-service/internal/app"
	"github.com/transfa/cash-transfer-service/internal/domain"
	"github.com/transfa/cash-transfer-service/internal/store"
)

// TransferHandlers holds the engine the handlers delegate to.
type TransferHandlers struct {
	engine *app.Engine
}

// NewTransferHandlers creates a new instance of TransferHandlers.
func NewTransferHandlers(engine *app.Engine) *TransferHandlers {
	return &TransferHandlers{engine: engine}
}

type transferRequestBody struct {
	SenderAccountID string          `json:"sender_account_id"`
	RecipientPhone  string          `json:"recipient_phone"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
}

type transferFailureResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type feePreviewResponse struct {
	Amount     decimal.Decimal `json:"amount"`
	Fee        decimal.Decimal `json:"fee"`
	TotalDebit decimal.Decimal `json:"total_debit"`
}

type transferLimitsResponse struct {
	MinAmount         decimal.Decimal `json:"min_amount"`
	MaxAmount         decimal.Decimal `json:"max_amount"`
	FlatFee           decimal.Decimal `json:"flat_fee"`
	FreeThreshold     decimal.Decimal `json:"free_threshold"`
	DailyMaxAmount    decimal.Decimal `json:"daily_max_amount"`
	DailyMaxTransfers int             `json:"daily_max_transfers"`
}

type recipientResponse struct {
	AccountID   uuid.UUID `json:"account_id"`
	DisplayName string    `json:"display_name"`
}

// CreateTransferHandler executes a transfer.
func (h *TransferHandlers) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	var body transferRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	senderID, err := uuid.Parse(strings.TrimSpace(body.SenderAccountID))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid sender account ID format")
		return
	}

	result, err := h.engine.Execute(r.Context(), domain.TransferRequest{
		SenderAccountID:     senderID,
		RecipientIdentifier: body.RecipientPhone,
		Amount:              body.Amount,
		Description:         strings.TrimSpace(body.Description),
	})
	if err != nil {
		log.Printf("level=error component=api endpoint=create_transfer outcome=failed sender_account_id=%s err=%v", senderID, err)
	}
	if !result.Success {
		h.writeJSON(w, statusForOutcome(result.Err), transferFailureResponse{
			Success: false,
			Code:    result.Code,
			Message: result.Message,
		})
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// PreviewFeeHandler reports the fee for an amount without moving money.
func (h *TransferHandlers) PreviewFeeHandler(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("amount"))
	amount, err := decimal.NewFromString(raw)
	if err != nil || !amount.IsPositive() {
		h.writeError(w, http.StatusBadRequest, "Query parameter 'amount' must be a positive decimal")
		return
	}
	fee := h.engine.PreviewFee(amount)
	h.writeJSON(w, http.StatusOK, feePreviewResponse{Amount: amount, Fee: fee, TotalDebit: domain.TotalDebit(amount, fee)})
}

// TransferLimitsHandler reports the amount bounds, fee schedule and daily caps.
func (h *TransferHandlers) TransferLimitsHandler(w http.ResponseWriter, r *http.Request) {
	policy := h.engine.Policy()
	h.writeJSON(w, http.StatusOK, transferLimitsResponse{
		MinAmount:         policy.MinAmount,
		MaxAmount:         policy.MaxAmount,
		FlatFee:           policy.FlatFee,
		FreeThreshold:     policy.FreeThreshold,
		DailyMaxAmount:    policy.MaxDailyAmount,
		DailyMaxTransfers: policy.MaxDailyTransfers,
	})
}

// GetTransferHandler returns one transaction record.
func (h *TransferHandlers) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseUUIDParam(w, r, "transactionID", "Invalid transaction ID format")
	if !ok {
		return
	}
	record, err := h.engine.FindTransfer(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			h.writeError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_transfer transaction_id=%s err=%v", id, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to retrieve transaction")
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// DailySummaryHandler reports today's usage and remaining allowance for an account.
func (h *TransferHandlers) DailySummaryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseUUIDParam(w, r, "accountID", "Invalid account ID format")
	if !ok {
		return
	}
	summary, err := h.engine.DailySummary(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=daily_summary account_id=%s err=%v", id, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to retrieve daily summary")
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// ListTransfersHandler lists transfers an account sent or received, newest first.
func (h *TransferHandlers) ListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseUUIDParam(w, r, "accountID", "Invalid account ID format")
	if !ok {
		return
	}
	limit, ok := h.parseIntQuery(w, r, "limit", 20)
	if !ok {
		return
	}
	offset, ok := h.parseIntQuery(w, r, "offset", 0)
	if !ok {
		return
	}

	page, err := h.engine.TransferHistory(r.Context(), id, limit, offset)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=list_transfers account_id=%s err=%v", id, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to retrieve transfers")
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

// LookupRecipientHandler confirms a recipient's display name before sending.
func (h *TransferHandlers) LookupRecipientHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.engine.LookupRecipient(r.Context(), chi.URLParam(r, "phone"))
	if err != nil {
		if category := app.CategoryOf(err); category != app.CategoryNone {
			h.writeJSON(w, statusForOutcome(err), transferFailureResponse{
				Success: false,
				Code:    app.ErrorCode(err),
				Message: outcomeMessage(err),
			})
			return
		}
		log.Printf("level=error component=api endpoint=lookup_recipient err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to look up recipient")
		return
	}
	h.writeJSON(w, http.StatusOK, recipientResponse{AccountID: account.ID, DisplayName: account.DisplayName})
}

func (h *TransferHandlers) parseUUIDParam(w http.ResponseWriter, r *http.Request, name string, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, message)
		return uuid.Nil, false
	}
	return id, true
}

func (h *TransferHandlers) parseIntQuery(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		h.writeError(w, http.StatusBadRequest, "Query parameter '"+name+"' must be a non-negative integer")
		return 0, false
	}
	return value, true
}

// statusForOutcome maps a transfer outcome kind to an HTTP status.
func statusForOutcome(err error) int {
	switch {
	case errors.Is(err, app.ErrPersistenceFailure):
		return http.StatusServiceUnavailable
	case errors.Is(err, app.ErrInvalidAmount), errors.Is(err, app.ErrInvalidRecipientFormat):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrRecipientNotFound), errors.Is(err, app.ErrSenderNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, app.ErrSelfTransfer):
		return http.StatusConflict
	case errors.Is(err, app.ErrDailyLimitExceeded):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func outcomeMessage(err error) string {
	var terr *app.TransferError
	if errors.As(err, &terr) {
		return terr.Message
	}
	return err.Error()
}

// writeJSON is a helper for writing JSON responses.
func (h *TransferHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *TransferHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
