package app

import (
	"errors"
	"fmt"
)

// Transfer outcome kinds. Every rejection or failure returned by the engine
// wraps exactly one of these, so callers can branch with errors.Is.
var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidRecipientFormat = errors.New("invalid recipient format")
	ErrSelfTransfer           = errors.New("self transfer not allowed")
	ErrRecipientNotFound      = errors.New("recipient not found")
	ErrSenderNotFound         = errors.New("sender not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrDailyLimitExceeded     = errors.New("daily limit exceeded")
	ErrPersistenceFailure     = errors.New("persistence failure")
)

// ErrorCategory groups outcome kinds by who has to act on them.
type ErrorCategory string

const (
	CategoryNone           ErrorCategory = ""
	CategoryInput          ErrorCategory = "input"
	CategoryBusiness       ErrorCategory = "business"
	CategoryInfrastructure ErrorCategory = "infrastructure"
)

var errorCodes = map[error]string{
	ErrInvalidAmount:          "INVALID_AMOUNT",
	ErrInvalidRecipientFormat: "INVALID_RECIPIENT_FORMAT",
	ErrSelfTransfer:           "SELF_TRANSFER",
	ErrRecipientNotFound:      "RECIPIENT_NOT_FOUND",
	ErrSenderNotFound:         "SENDER_NOT_FOUND",
	ErrInsufficientFunds:      "INSUFFICIENT_FUNDS",
	ErrDailyLimitExceeded:     "DAILY_LIMIT_EXCEEDED",
	ErrPersistenceFailure:     "PERSISTENCE_FAILURE",
}

// TransferError carries an outcome kind and the message shown to the user.
// Cause is set only for infrastructure failures.
type TransferError struct {
	Kind    error
	Message string
	Cause   error
}

func newTransferError(kind error, format string, args ...any) *TransferError {
	return &TransferError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *TransferError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TransferError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// Code is the stable machine-readable name of the kind, e.g. INSUFFICIENT_FUNDS.
func (e *TransferError) Code() string {
	return errorCodes[e.Kind]
}

// ErrorCode returns the code of the first outcome kind found in err's chain.
func ErrorCode(err error) string {
	for kind, code := range errorCodes {
		if errors.Is(err, kind) {
			return code
		}
	}
	return ""
}

// CategoryOf classifies err. Errors that are not transfer outcomes are CategoryNone.
func CategoryOf(err error) ErrorCategory {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, ErrPersistenceFailure):
		return CategoryInfrastructure
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidRecipientFormat):
		return CategoryInput
	case errors.Is(err, ErrSelfTransfer),
		errors.Is(err, ErrRecipientNotFound),
		errors.Is(err, ErrSenderNotFound),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrDailyLimitExceeded):
		return CategoryBusiness
	default:
		return CategoryNone
	}
}
