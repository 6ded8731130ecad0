package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a specific error type
type ErrorCode string

const (
	// Bet placement errors
	ErrBettingClosed     ErrorCode = "BETTING_CLOSED"
	ErrRoundLocked       ErrorCode = "ROUND_LOCKED"
	ErrPeriodMismatch    ErrorCode = "PERIOD_MISMATCH"
	ErrInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	ErrInvalidStake      ErrorCode = "INVALID_STAKE"
	ErrInvalidBet        ErrorCode = "INVALID_BET"
	ErrUnknownMode       ErrorCode = "UNKNOWN_MODE"

	// Caller errors
	ErrUnauthenticated  ErrorCode = "UNAUTHENTICATED"
	ErrPermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	ErrNotFound         ErrorCode = "NOT_FOUND"

	// System errors
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
	ErrNetworkError  ErrorCode = "NETWORK_ERROR"
	ErrDatabaseError ErrorCode = "DATABASE_ERROR"
	ErrRateLimited   ErrorCode = "RATE_LIMITED"
)

// GameError represents a game-related error
type GameError struct {
	Code    ErrorCode
	Message string
	Err     error // Underlying error, if any
}

// Error implements the error interface
func (e *GameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *GameError) Unwrap() error {
	return e.Err
}

// NewGameError creates a new GameError
func NewGameError(code ErrorCode, message string) *GameError {
	return &GameError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error in a GameError
func WrapError(code ErrorCode, message string, err error) *GameError {
	return &GameError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsGameError checks if an error is a GameError and has a specific code
func IsGameError(err error, code ErrorCode) bool {
	var gameErr *GameError
	if err == nil {
		return false
	}
	if ok := As(err, &gameErr); !ok {
		return false
	}
	return gameErr.Code == code
}

// As finds the first GameError in err's chain
func As(err error, target **GameError) bool {
	if target == nil {
		return false
	}
	return errors.As(err, target)
}

// IsValidation reports whether err is a rejection caused by the caller's input
// rather than by infrastructure.
func IsValidation(err error) bool {
	var gameErr *GameError
	if !As(err, &gameErr) {
		return false
	}
	switch gameErr.Code {
	case ErrInternalError, ErrNetworkError, ErrDatabaseError:
		return false
	}
	return true
}
