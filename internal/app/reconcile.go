/**
 * @description
 * Gateway payment reconciliation. A ZbPay payment starts as a pending
 * transaction record, the payer completes checkout on the gateway's hosted
 * page, and confirmation arrives through two independent channels: frontend
 * status polling and the gateway webhook. Both channels converge on the same
 * fund application path, and the expected-status precondition on the pending
 * record guarantees funds apply exactly once no matter how many confirmations
 * race.
 *
 * The one non-terminal failure mode is StatusProcessingError: the gateway
 * confirmed the money but our own ledger write failed. That state is persisted
 * with the failure reason and left for manual reconciliation; it is never
 * silently retried into a double application.
 *
 * @dependencies
 * - context, errors, fmt, log, strings, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Exact decimal arithmetic for money.
 * - internal/domain, internal/store, pkg/zbpay.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mhs/fees-service/internal/domain"
	"github.com/mhs/fees-service/internal/store"
	"github.com/mhs/fees-service/pkg/zbpay"
)

// Gateway status words, matched exactly after upper-casing.
var (
	successStatuses = map[string]bool{"PAID": true, "SUCCESS": true, "SUCCESSFUL": true}
	failureStatuses = map[string]bool{"FAILED": true, "CANCELED": true, "CANCELLED": true}
)

// InitiatePaymentInput starts a hosted-checkout payment for one term.
type InitiatePaymentInput struct {
	StudentID string
	TermKey   string
	Amount    decimal.Decimal
	ReturnURL string
	ResultURL string
}

// InitiatePaymentResult carries the checkout redirect plus the identifiers
// the frontend needs for status polling.
type InitiatePaymentResult struct {
	PaymentURL     string
	TransactionID  string
	OrderReference string
}

// InitiateGatewayPayment records a pending transaction, then asks the gateway
// for a checkout URL. The pending record is written first so a confirmation
// arriving through the webhook always finds something to transition. If the
// gateway rejects the initiation the record is marked failed; if the gateway
// is unreachable the record stays pending and times out on the gateway side.
func (s *Service) InitiateGatewayPayment(ctx context.Context, in InitiatePaymentInput) (*InitiatePaymentResult, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	student, err := s.repo.FindStudentByID(ctx, in.StudentID)
	if err != nil {
		return nil, err
	}
	if _, ok := student.Financials.Terms[in.TermKey]; !ok {
		return nil, ErrTermNotFound
	}

	cfg, err := s.repo.GetConfig(ctx)
	if err != nil && !errors.Is(err, store.ErrConfigNotFound) {
		return nil, err
	}
	currencyCode := defaultCurrencyCode
	if cfg != nil {
		currencyCode = cfg.CurrencyCode
	}

	now := time.Now().UTC()
	transactionID := NewTransactionID(now)
	orderReference := NewOrderReference(now)

	tx := &domain.Transaction{
		ID:             transactionID,
		StudentID:      in.StudentID,
		Amount:         in.Amount,
		Type:           domain.TransactionTypeZbPay,
		Status:         domain.StatusPending,
		DisplayStatus:  domain.DisplayPendingConfirmation,
		TermKey:        in.TermKey,
		OrderReference: orderReference,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Apply(ctx, store.LedgerWrite{NewTransaction: tx}); err != nil {
		return nil, err
	}

	resp, err := s.gateway.Initiate(ctx, zbpay.InitiateRequest{
		Amount:         in.Amount,
		CurrencyCode:   currencyCode,
		ReturnURL:      in.ReturnURL,
		ResultURL:      in.ResultURL,
		OrderReference: orderReference,
		TransactionID:  transactionID,
		StudentID:      in.StudentID,
		TermKey:        in.TermKey,
	})
	if err != nil {
		var apiErr *zbpay.APIError
		if errors.As(err, &apiErr) {
			// The gateway rejected the initiation outright; close the record.
			if ferr := s.repo.Apply(ctx, store.LedgerWrite{StatusChange: &store.StatusChange{
				TransactionID:  transactionID,
				ExpectedStatus: domain.StatusPending,
				NewStatus:      domain.StatusFailed,
				DisplayStatus:  domain.DisplayPaymentFailed,
				LastError:      apiErr.Error(),
			}}); ferr != nil {
				log.Printf("level=error component=reconcile op=initiate transaction_id=%s msg=\"failed to mark rejected initiation\" err=%v", transactionID, ferr)
			}
			return nil, err
		}
		// Transport error: the initiation may or may not have landed on the
		// gateway side, so the record stays pending.
		log.Printf("level=warn component=reconcile op=initiate transaction_id=%s msg=\"gateway unreachable\" err=%v", transactionID, err)
		return nil, ErrGatewayUnavailable
	}

	return &InitiatePaymentResult{
		PaymentURL:     resp.PaymentURL,
		TransactionID:  transactionID,
		OrderReference: orderReference,
	}, nil
}

// StatusCheckResult is the polling answer: the normalized status (PAID,
// FAILED, PENDING or UNKNOWN), whether the transaction is settled locally,
// and the current transaction record.
type StatusCheckResult struct {
	Status      string
	Settled     bool
	Message     string
	Transaction *domain.Transaction
}

// CheckStatus resolves the current state of a gateway payment for the polling
// frontend. Transactions already in a terminal state answer from the local
// record without touching the gateway. Otherwise the gateway is queried and a
// confirmed payment is applied to the student's account atomically with the
// pending-to-succeeded transition.
func (s *Service) CheckStatus(ctx context.Context, orderReference, transactionID string) (*StatusCheckResult, error) {
	tx, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.OrderReference != orderReference {
		return nil, store.ErrTransactionNotFound
	}

	switch tx.Status {
	case domain.StatusSucceeded:
		return &StatusCheckResult{Status: "PAID", Settled: true, Message: "Payment already processed", Transaction: tx}, nil
	case domain.StatusFailed:
		return &StatusCheckResult{Status: "FAILED", Settled: true, Message: "Payment failed", Transaction: tx}, nil
	case domain.StatusProcessingError:
		return &StatusCheckResult{Status: "UNKNOWN", Settled: true, Message: "Payment requires manual reconciliation", Transaction: tx}, nil
	}

	result, err := s.gateway.QueryStatus(ctx, orderReference)
	if err != nil {
		// Both gateway rejection and transport failure mean we simply do not
		// know yet. Nothing is mutated; the caller polls again.
		log.Printf("level=warn component=reconcile op=check_status order_reference=%s msg=\"status query failed\" err=%v", orderReference, err)
		return &StatusCheckResult{Status: "UNKNOWN", Message: "Unable to check payment status", Transaction: tx}, nil
	}

	status := strings.ToUpper(result.RawStatus)
	switch {
	case successStatuses[status]:
		if err := s.applyGatewayFunds(ctx, tx, domain.DisplayPaymentSuccessful, result.RawPayload); err != nil {
			return nil, err
		}
		return s.statusResult(ctx, tx.ID, "PAID", true, "Payment successful"), nil
	case failureStatuses[status]:
		if err := s.markGatewayFailure(ctx, tx, domain.DisplayPaymentFailed, result.RawPayload); err != nil {
			return nil, err
		}
		return s.statusResult(ctx, tx.ID, "FAILED", true, "Payment failed"), nil
	default:
		return &StatusCheckResult{Status: "PENDING", Message: "Payment still pending", Transaction: tx}, nil
	}
}

// statusResult reloads the transaction so the caller sees the post-transition
// record. A failed reload degrades to a result without the record.
func (s *Service) statusResult(ctx context.Context, transactionID, status string, settled bool, message string) *StatusCheckResult {
	out := &StatusCheckResult{Status: status, Settled: settled, Message: message}
	tx, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		log.Printf("level=warn component=reconcile op=check_status transaction_id=%s msg=\"reload after transition failed\" err=%v", transactionID, err)
		return out
	}
	out.Transaction = tx
	return out
}

// WebhookResult is the acknowledgement body for the gateway callback.
type WebhookResult struct {
	Message string
}

// HandleWebhook processes an asynchronous confirmation from the gateway. A
// transaction already in a terminal state is acknowledged without changes, so
// redelivered webhooks and poll/webhook races are harmless.
func (s *Service) HandleWebhook(ctx context.Context, orderReference, status string, payload []byte) (*WebhookResult, error) {
	tx, err := s.repo.FindTransactionByOrderReference(ctx, orderReference)
	if err != nil {
		return nil, err
	}
	if tx.Status.Terminal() {
		return &WebhookResult{Message: "Already processed"}, nil
	}

	upper := strings.ToUpper(status)
	switch {
	case successStatuses[upper]:
		if err := s.applyGatewayFunds(ctx, tx, domain.DisplayWebhookSuccessful, payload); err != nil {
			return nil, err
		}
		return &WebhookResult{Message: "Payment processed"}, nil
	case failureStatuses[upper]:
		if err := s.markGatewayFailure(ctx, tx, domain.DisplayWebhookFailed, payload); err != nil {
			return nil, err
		}
		return &WebhookResult{Message: "Payment marked as failed"}, nil
	default:
		// Unknown status word: record it for visibility but keep the machine
		// state pending so a later definitive confirmation can still land.
		if err := s.repo.Apply(ctx, store.LedgerWrite{StatusChange: &store.StatusChange{
			TransactionID:   tx.ID,
			ExpectedStatus:  domain.StatusPending,
			NewStatus:       domain.StatusPending,
			DisplayStatus:   domain.DisplayWebhookUnknownStatus,
			GatewayResponse: payload,
		}}); err != nil && !errors.Is(err, store.ErrStatusConflict) {
			return nil, err
		}
		return &WebhookResult{Message: fmt.Sprintf("Unhandled payment status: %s", status)}, nil
	}
}

// applyGatewayFunds credits the paid figure of the transaction's term and
// flips the transaction pending-to-succeeded in one atomic write. A status
// conflict means another confirmation won the race, which is success from the
// caller's point of view. Any other apply failure persists
// StatusProcessingError with the reason and surfaces ErrProcessingFailed.
func (s *Service) applyGatewayFunds(ctx context.Context, tx *domain.Transaction, displayStatus string, payload []byte) error {
	err := s.withStudentRetry(ctx, func(ctx context.Context) error {
		student, err := s.repo.FindStudentByID(ctx, tx.StudentID)
		if err != nil {
			return err
		}
		term, ok := student.Financials.Terms[tx.TermKey]
		if !ok {
			return ErrTermNotFound
		}

		terms := cloneTerms(student.Financials.Terms)
		term.Paid = term.Paid.Add(tx.Amount)
		terms[tx.TermKey] = term

		return s.repo.Apply(ctx, store.LedgerWrite{
			Student: &store.StudentUpdate{
				StudentID:       tx.StudentID,
				ExpectedVersion: student.Version,
				Terms:           terms,
				Balance:         RecomputeBalance(terms),
			},
			StatusChange: &store.StatusChange{
				TransactionID:   tx.ID,
				ExpectedStatus:  domain.StatusPending,
				NewStatus:       domain.StatusSucceeded,
				DisplayStatus:   displayStatus,
				GatewayResponse: payload,
			},
		})
	})
	if err == nil {
		termLabel := strings.ReplaceAll(tx.TermKey, "_", " ")
		s.notifier.Emit(ctx, "Payment Successful",
			fmt.Sprintf("ZbPay payment of $%s for %s was successful", tx.Amount.String(), termLabel),
			"success", tx.StudentID, "student")
		return nil
	}
	if errors.Is(err, store.ErrStatusConflict) {
		// Another confirmation channel already applied the funds.
		return nil
	}

	// The money is confirmed on the gateway side but our ledger write failed.
	// Persist the state so nobody re-applies funds and reconciliation can
	// find the record.
	log.Printf("level=error component=reconcile op=apply_funds transaction_id=%s msg=\"fund application failed\" err=%v", tx.ID, err)
	if perr := s.repo.Apply(ctx, store.LedgerWrite{StatusChange: &store.StatusChange{
		TransactionID:   tx.ID,
		ExpectedStatus:  domain.StatusPending,
		NewStatus:       domain.StatusProcessingError,
		DisplayStatus:   domain.DisplayProcessingError,
		GatewayResponse: payload,
		LastError:       err.Error(),
	}}); perr != nil && !errors.Is(perr, store.ErrStatusConflict) {
		log.Printf("level=error component=reconcile op=apply_funds transaction_id=%s msg=\"failed to persist processing error\" err=%v", tx.ID, perr)
	}
	s.notifier.Emit(ctx, "Payment Needs Attention",
		fmt.Sprintf("Transaction %s was confirmed by ZbPay but could not be applied to the student account", tx.ID),
		"error", "", "admin")
	return ErrProcessingFailed
}

// markGatewayFailure flips the transaction pending-to-failed. Funds never
// moved, so no student write is involved.
func (s *Service) markGatewayFailure(ctx context.Context, tx *domain.Transaction, displayStatus string, payload []byte) error {
	err := s.repo.Apply(ctx, store.LedgerWrite{StatusChange: &store.StatusChange{
		TransactionID:   tx.ID,
		ExpectedStatus:  domain.StatusPending,
		NewStatus:       domain.StatusFailed,
		DisplayStatus:   displayStatus,
		GatewayResponse: payload,
	}})
	if err != nil && !errors.Is(err, store.ErrStatusConflict) {
		return err
	}
	s.notifier.Emit(ctx, "Payment Failed",
		fmt.Sprintf("ZbPay payment of $%s did not complete", tx.Amount.String()),
		"error", tx.StudentID, "student")
	return nil
}
