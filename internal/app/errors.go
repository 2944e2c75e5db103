package app

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount rejects zero or negative payment amounts.
	ErrInvalidAmount = errors.New("amount must be a positive number")

	// ErrTermNotFound means the student has no billing entry for the term key.
	ErrTermNotFound = errors.New("term not found for student")

	// ErrConflict is surfaced when the optimistic-concurrency retry budget is
	// exhausted. The request can simply be retried by the caller.
	ErrConflict = errors.New("concurrent update conflict, please retry")

	// ErrGatewayUnavailable means the payment gateway could not be reached or
	// rejected our status query. It is NOT a payment decline.
	ErrGatewayUnavailable = errors.New("unable to check payment status with gateway")

	// ErrProcessingFailed is the gateway-confirmed-but-local-apply-failed
	// state. It is persisted on the transaction record as
	// StatusProcessingError and requires manual reconciliation.
	ErrProcessingFailed = errors.New("payment confirmed but failed to update student account")

	// ErrWrongPassword rejects a password change with a bad current password.
	ErrWrongPassword = errors.New("current password is incorrect")
)

// ValidationError is a caller-input problem, mapped to a 400 by the API.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ExceedsBalanceError rejects a cash payment larger than the term's remaining
// balance. It carries the remaining balance so the caller can correct the
// amount and retry.
type ExceedsBalanceError struct {
	RemainingBalance decimal.Decimal
}

func (e *ExceedsBalanceError) Error() string {
	return fmt.Sprintf("payment amount exceeds remaining balance of %s", e.RemainingBalance.String())
}
