package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidRole            = errors.New("invalid role")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidTransition      = errors.New("status does not allow this transition")
	ErrVersionConflict        = errors.New("version conflict")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrPrescriptionRequired   = errors.New("prescription required")
	ErrInsufficientFunds      = errors.New("insufficient balance")
	ErrVerificationIncomplete = errors.New("verification documents incomplete")
	ErrBlocked                = errors.New("user is blocked")
	ErrNotParticipant         = errors.New("not a participant of this conversation")
)

// LedgerError is a precondition failure raised by one of the ledgers. Code is a
// stable string the API hands to clients.
type LedgerError struct {
	Op   string
	Code string
	Err  error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func ledgerErr(op string, err error) error {
	return &LedgerError{Op: op, Code: errorCode(err), Err: err}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAlreadyExists):
		return "ALREADY_EXISTS"
	case errors.Is(err, ErrInvalidRole):
		return "INVALID_ROLE"
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrVersionConflict):
		return "VERSION_CONFLICT"
	case errors.Is(err, ErrEmptyCart):
		return "EMPTY_CART"
	case errors.Is(err, ErrPrescriptionRequired):
		return "PRESCRIPTION_REQUIRED"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrVerificationIncomplete):
		return "VERIFICATION_INCOMPLETE"
	case errors.Is(err, ErrBlocked):
		return "BLOCKED"
	case errors.Is(err, ErrNotParticipant):
		return "NOT_PARTICIPANT"
	default:
		return "INVALID_INPUT"
	}
}
