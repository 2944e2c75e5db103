/**
 * @description
 * This file defines the immutable transaction record and its status state machine.
 * Exactly one transaction record exists per financial event; gateway-driven status
 * changes mutate the same record's status in place rather than appending new rows.
 *
 * The machine-readable TransactionStatus enum is deliberately separate from the
 * free-text DisplayStatus shown to users, so state-machine logic never string
 * matches against display text.
 *
 * @dependencies
 * - encoding/json, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Exact decimal arithmetic for money.
 */

package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType discriminates the financial event kind.
type TransactionType string

const (
	TransactionTypeCash       TransactionType = "cash"
	TransactionTypeZbPay      TransactionType = "zbpay"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

// TransactionStatus is the state-machine discriminant.
//
// Cash payments and fee adjustments are created directly in StatusCompleted.
// Gateway payments start Pending and transition exactly once to Succeeded,
// Failed, or ProcessingError (payment confirmed upstream but the local ledger
// write failed; requires manual reconciliation).
type TransactionStatus string

const (
	StatusPending         TransactionStatus = "pending"
	StatusCompleted       TransactionStatus = "completed"
	StatusSucceeded       TransactionStatus = "succeeded"
	StatusFailed          TransactionStatus = "failed"
	StatusProcessingError TransactionStatus = "processing_error"
)

// Terminal reports whether no further transitions are allowed.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusSucceeded || s == StatusFailed || s == StatusProcessingError
}

// Human-readable display statuses, kept verbatim from the frontend's
// expectations. These live in Transaction.DisplayStatus only.
const (
	DisplayCompleted            = "Completed"
	DisplayPendingConfirmation  = "Pending ZB Confirmation"
	DisplayPaymentSuccessful    = "ZB Payment Successful"
	DisplayPaymentFailed        = "ZB Payment Failed"
	DisplayWebhookSuccessful    = "ZB Payment Successful (Webhook)"
	DisplayWebhookFailed        = "ZB Payment Failed (Webhook)"
	DisplayWebhookUnknownStatus = "ZB Payment Unknown Status (Webhook)"
	DisplayProcessingError      = "ZB Payment Processing Error"
)

// AdjustmentType classifies a fee adjustment. The sign of the adjustment
// amount is caller-determined; Credit is conventionally negative.
type AdjustmentType string

const (
	AdjustmentCredit AdjustmentType = "Credit"
	AdjustmentDebit  AdjustmentType = "Debit"
)

func (a AdjustmentType) Valid() bool {
	return a == AdjustmentCredit || a == AdjustmentDebit
}

// Transaction is the append-only record of one financial event. Amount is the
// unsigned magnitude of money moved. Type-specific fields are populated per
// the event kind and left zero otherwise.
type Transaction struct {
	ID            string            `json:"id"`
	StudentID     string            `json:"studentId"`
	Amount        decimal.Decimal   `json:"amount"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	DisplayStatus string            `json:"displayStatus"`
	TermKey       string            `json:"termKey"`

	// Cash payment fields.
	ReceiptNumber  string `json:"receiptNumber,omitempty"`
	BursarID       string `json:"bursarId,omitempty"`
	BursarUsername string `json:"bursarUsername,omitempty"`

	// Gateway payment fields. OrderReference is the secondary lookup key used
	// by webhook delivery; GatewayResponse holds the raw upstream payload.
	OrderReference  string          `json:"orderReference,omitempty"`
	GatewayResponse json.RawMessage `json:"gatewayResponse,omitempty"`

	// Adjustment fields.
	Reason         string          `json:"reason,omitempty"`
	AdjustmentType AdjustmentType  `json:"adjustmentType,omitempty"`
	SignedAmount   decimal.Decimal `json:"signedAmount,omitempty"`
	AdminID        string          `json:"adminId,omitempty"`

	// LastError records why a gateway payment landed in StatusProcessingError.
	LastError string `json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FeeAdjustment is the audit side record written atomically with an
// adjustment transaction. It captures the before/after fee for the term.
type FeeAdjustment struct {
	ID               string          `json:"id"`
	StudentID        string          `json:"studentId"`
	AdjustmentAmount decimal.Decimal `json:"adjustmentAmount"`
	TermKey          string          `json:"termKey"`
	Reason           string          `json:"reason"`
	AdjustmentType   AdjustmentType  `json:"adjustmentType"`
	AdminID          string          `json:"adminId"`
	OldFee           decimal.Decimal `json:"oldFee"`
	NewFee           decimal.Decimal `json:"newFee"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// BursarActivity is the audit side record written atomically with a cash
// payment transaction.
type BursarActivity struct {
	ID             string          `json:"id"`
	BursarID       string          `json:"bursarId"`
	BursarUsername string          `json:"bursarUsername"`
	StudentID      string          `json:"studentId"`
	StudentName    string          `json:"studentName"`
	Amount         decimal.Decimal `json:"amount"`
	TermKey        string          `json:"termKey"`
	ReceiptNumber  string          `json:"receiptNumber"`
	CreatedAt      time.Time       `json:"createdAt"`
}
