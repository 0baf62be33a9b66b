package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrZeroAmount             ErrorType = "ZERO_AMOUNT"
	ErrInvalidMarket          ErrorType = "INVALID_MARKET"
	ErrSlippageExceeded       ErrorType = "SLIPPAGE_EXCEEDED"
	ErrInsufficientCollateral ErrorType = "INSUFFICIENT_COLLATERAL"
	ErrReentrantCall          ErrorType = "REENTRANT_CALL"
	ErrUnauthorized           ErrorType = "UNAUTHORIZED"
	ErrRiskReject             ErrorType = "RISK_REJECT"
	ErrInvalidRequest         ErrorType = "INVALID_REQUEST"
	ErrInternal               ErrorType = "INTERNAL_ERROR"
	ErrNotFound               ErrorType = "NOT_FOUND"
	ErrUpstream               ErrorType = "UPSTREAM_ERROR"
	ErrReadOnly               ErrorType = "READ_ONLY"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match two AppErrors by type, so callers can compare
// against a sentinel-style value without caring about the message.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func Newf(errType ErrorType, format string, args ...interface{}) *AppError {
	return New(errType, fmt.Sprintf(format, args...), nil)
}

func NewZeroAmount(op string) *AppError {
	return New(ErrZeroAmount, fmt.Sprintf("%s: amount must be positive", op), nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewUpstream(msg string, cause error) *AppError {
	return New(ErrUpstream, msg, cause)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrZeroAmount, ErrInvalidMarket, ErrInvalidRequest, ErrRiskReject:
		return http.StatusBadRequest
	case ErrSlippageExceeded, ErrInsufficientCollateral:
		return http.StatusUnprocessableEntity
	case ErrReentrantCall:
		return http.StatusConflict
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUpstream:
		return http.StatusBadGateway
	case ErrReadOnly:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrZeroAmount:
		return "Provide a positive amount."
	case ErrInvalidMarket:
		return "Check market addresses and the LLTV value."
	case ErrSlippageExceeded:
		return "Lower min_shares or retry when market conditions improve."
	case ErrInsufficientCollateral:
		return "Supply more collateral before borrowing."
	case ErrReentrantCall:
		return "Wait for the in-flight operation to finish, then retry."
	case ErrUnauthorized:
		return "Check API keys and owner credentials."
	case ErrUpstream:
		return "The ledger RPC rejected the call; retry later."
	default:
		return ""
	}
}
