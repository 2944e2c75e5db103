/**
 * @description
 * This file defines the `Repository` interface: the contract between the ledger
 * core and the backing document store. The ledger only needs point reads, a
 * secondary lookup by order reference, and one atomic multi-path write
 * primitive (`Apply`), so the interface stays deliberately narrow and is easy
 * to substitute with the in-memory implementation in tests.
 *
 * Concurrency contract: student financials carry an optimistic version token
 * and transaction status transitions carry an expected-status precondition.
 * `Apply` must reject the whole write when either precondition fails, which is
 * what closes the read-modify-write race between concurrent payments and the
 * check-then-act race between poll and webhook confirmation.
 *
 * @dependencies
 * - context, encoding/json, errors: Standard Go libraries.
 * - github.com/shopspring/decimal: Exact decimal arithmetic for money.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/mhs/fees-service/internal/domain"
)

var (
	ErrStudentNotFound        = errors.New("student not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrConfigNotFound         = errors.New("school configuration not found")
	ErrDuplicateStudentNumber = errors.New("student number already exists")

	// ErrVersionConflict means the student's financial sub-document changed
	// between read and write. Callers retry with a fresh read.
	ErrVersionConflict = errors.New("student version conflict")

	// ErrStatusConflict means the transaction was no longer in the expected
	// status when a transition was attempted. For gateway payments this is the
	// duplicate-confirmation guard, not an error the caller should surface.
	ErrStatusConflict = errors.New("transaction status conflict")
)

// StudentUpdate is a compare-and-swap write of one student's financial
// sub-document. The write only lands if the stored version still equals
// ExpectedVersion; the store bumps the version on success.
type StudentUpdate struct {
	StudentID       string
	ExpectedVersion int64
	Terms           map[string]domain.TermBalance
	Balance         decimal.Decimal
}

// StatusChange transitions one transaction's status in place, conditioned on
// its current persisted status.
type StatusChange struct {
	TransactionID   string
	ExpectedStatus  domain.TransactionStatus
	NewStatus       domain.TransactionStatus
	DisplayStatus   string
	GatewayResponse json.RawMessage
	LastError       string
}

// LedgerWrite is the atomic multi-path write primitive. All non-nil parts are
// applied together or not at all; a partially applied write is a correctness
// violation the implementations must make impossible.
type LedgerWrite struct {
	Student        *StudentUpdate
	NewTransaction *domain.Transaction
	StatusChange   *StatusChange
	Adjustment     *domain.FeeAdjustment
	Activity       *domain.BursarActivity
	NewStudent     *domain.Student
	NewUser        *domain.User
}

// Repository defines the document-store operations the ledger core depends on.
type Repository interface {
	FindStudentByID(ctx context.Context, id string) (*domain.Student, error)
	StudentNumberExists(ctx context.Context, studentNumber string) (bool, error)
	ListStudentIDs(ctx context.Context) ([]string, error)

	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	// FindTransactionByOrderReference resolves the secondary index used by
	// gateway webhook delivery.
	FindTransactionByOrderReference(ctx context.Context, orderReference string) (*domain.Transaction, error)

	GetConfig(ctx context.Context) (*domain.SchoolConfig, error)
	SaveConfig(ctx context.Context, cfg *domain.SchoolConfig) error

	FindUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error

	// CreateNotification is fire-and-forget from the caller's point of view:
	// it runs outside any ledger write and its failure is logged, not
	// propagated.
	CreateNotification(ctx context.Context, n domain.Notification) error

	// Apply performs one atomic multi-path write.
	Apply(ctx context.Context, w LedgerWrite) error
}
