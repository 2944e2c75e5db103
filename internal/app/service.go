/**
 * @description
 * This file contains the core business logic of the fees-service: the
 * transaction ledger. Each operation loads the student, validates its
 * preconditions, recomputes the per-term figures and aggregate balance, and
 * lands everything in one atomic multi-path store write: the updated financial
 * sub-document, the immutable transaction record, and the event-specific audit
 * side record.
 *
 * Concurrent mutations on the same student are serialized with optimistic
 * concurrency: the write is conditioned on the student's version token, and on
 * conflict the whole read-compute-write cycle is retried with exponential
 * backoff up to a small attempt cap.
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

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 20 * time.Millisecond

	// ISO 4217 numeric code for USD, used when no config row exists yet.
	defaultCurrencyCode = 840
)

// GatewayClient is the narrow surface of the ZbPay client the service needs.
type GatewayClient interface {
	Initiate(ctx context.Context, payload zbpay.InitiateRequest) (*zbpay.InitiateResponse, error)
	QueryStatus(ctx context.Context, orderReference string) (*zbpay.StatusResult, error)
}

// Service provides the ledger and reconciliation operations.
type Service struct {
	repo          store.Repository
	gateway       GatewayClient
	notifier      *Notifier
	retryAttempts int
	retryBackoff  time.Duration
}

// NewService creates a new ledger service instance.
func NewService(repo store.Repository, gateway GatewayClient, notifier *Notifier) *Service {
	return &Service{
		repo:          repo,
		gateway:       gateway,
		notifier:      notifier,
		retryAttempts: defaultRetryAttempts,
		retryBackoff:  defaultRetryBackoff,
	}
}

// SetRetryAttempts overrides the optimistic-concurrency retry budget.
func (s *Service) SetRetryAttempts(n int) {
	if n > 0 {
		s.retryAttempts = n
	}
}

// withStudentRetry runs one read-compute-write cycle, retrying on version
// conflicts with exponential backoff. Any other error aborts immediately.
func (s *Service) withStudentRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := s.retryBackoff
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		err := fn(ctx)
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return ErrConflict
}

// CashPaymentInput is a bursar-entered cash payment against one term.
type CashPaymentInput struct {
	StudentID      string
	TermKey        string
	Amount         decimal.Decimal
	BursarID       string
	BursarUsername string
}

// CashPaymentResult is returned to the caller on success.
type CashPaymentResult struct {
	ReceiptNumber string
	TransactionID string
	NewBalance    decimal.Decimal
}

// ApplyCashPayment credits a term's paid figure by the payment amount,
// rejecting payments that exceed the term's remaining balance, and records
// the transaction plus a bursar-activity audit entry in one atomic write.
func (s *Service) ApplyCashPayment(ctx context.Context, in CashPaymentInput) (*CashPaymentResult, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	now := time.Now().UTC()
	receiptNumber := NewReceiptNumber(now)
	transactionID := NewTransactionID(now)

	var result *CashPaymentResult
	var studentName string
	err := s.withStudentRetry(ctx, func(ctx context.Context) error {
		student, err := s.repo.FindStudentByID(ctx, in.StudentID)
		if err != nil {
			return err
		}
		term, ok := student.Financials.Terms[in.TermKey]
		if !ok {
			return ErrTermNotFound
		}

		remaining := term.Remaining()
		if in.Amount.GreaterThan(remaining) {
			return &ExceedsBalanceError{RemainingBalance: remaining}
		}

		terms := cloneTerms(student.Financials.Terms)
		term.Paid = term.Paid.Add(in.Amount)
		terms[in.TermKey] = term
		newBalance := RecomputeBalance(terms)

		tx := &domain.Transaction{
			ID:             transactionID,
			StudentID:      in.StudentID,
			Amount:         in.Amount,
			Type:           domain.TransactionTypeCash,
			Status:         domain.StatusCompleted,
			DisplayStatus:  domain.DisplayCompleted,
			TermKey:        in.TermKey,
			ReceiptNumber:  receiptNumber,
			BursarID:       in.BursarID,
			BursarUsername: in.BursarUsername,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		activity := &domain.BursarActivity{
			ID:             transactionID,
			BursarID:       in.BursarID,
			BursarUsername: in.BursarUsername,
			StudentID:      in.StudentID,
			StudentName:    student.FullName(),
			Amount:         in.Amount,
			TermKey:        in.TermKey,
			ReceiptNumber:  receiptNumber,
			CreatedAt:      now,
		}

		if err := s.repo.Apply(ctx, store.LedgerWrite{
			Student: &store.StudentUpdate{
				StudentID:       in.StudentID,
				ExpectedVersion: student.Version,
				Terms:           terms,
				Balance:         newBalance,
			},
			NewTransaction: tx,
			Activity:       activity,
		}); err != nil {
			return err
		}

		studentName = student.FullName()
		result = &CashPaymentResult{
			ReceiptNumber: receiptNumber,
			TransactionID: transactionID,
			NewBalance:    newBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	termLabel := strings.ReplaceAll(in.TermKey, "_", " ")
	s.notifier.Emit(ctx, "Payment Received",
		fmt.Sprintf("Cash payment of $%s received for %s. Receipt: %s", in.Amount.String(), termLabel, receiptNumber),
		"success", in.StudentID, "student")
	s.notifier.Emit(ctx, "Cash Payment Processed",
		fmt.Sprintf("Bursar %s processed payment of $%s for %s. Receipt: %s", in.BursarUsername, in.Amount.String(), studentName, receiptNumber),
		"info", "", "admin")

	return result, nil
}

// FeeAdjustmentInput is an admin fee correction on one term. The sign of
// Amount is caller-determined: Credit conventionally negative, Debit positive.
type FeeAdjustmentInput struct {
	StudentID      string
	TermKey        string
	Amount         decimal.Decimal
	Reason         string
	AdjustmentType domain.AdjustmentType
	AdminID        string
}

// FeeAdjustmentResult is returned to the caller on success.
type FeeAdjustmentResult struct {
	AdjustmentID  string
	TransactionID string
	NewBalance    decimal.Decimal
}

// ApplyFeeAdjustment adds the signed amount to the term's fee (not its paid
// figure) and records the transaction plus a fee-adjustment audit entry
// capturing the old and new fee. No lower bound is enforced on the new fee.
func (s *Service) ApplyFeeAdjustment(ctx context.Context, in FeeAdjustmentInput) (*FeeAdjustmentResult, error) {
	now := time.Now().UTC()
	transactionID := NewTransactionID(now)
	adjustmentID := NewAdjustmentID(now)

	var result *FeeAdjustmentResult
	var studentName string
	err := s.withStudentRetry(ctx, func(ctx context.Context) error {
		student, err := s.repo.FindStudentByID(ctx, in.StudentID)
		if err != nil {
			return err
		}
		term, ok := student.Financials.Terms[in.TermKey]
		if !ok {
			return ErrTermNotFound
		}

		oldFee := term.Fee
		newFee := term.Fee.Add(in.Amount)

		terms := cloneTerms(student.Financials.Terms)
		term.Fee = newFee
		terms[in.TermKey] = term
		newBalance := RecomputeBalance(terms)

		tx := &domain.Transaction{
			ID:             transactionID,
			StudentID:      in.StudentID,
			Amount:         in.Amount.Abs(),
			Type:           domain.TransactionTypeAdjustment,
			Status:         domain.StatusCompleted,
			DisplayStatus:  domain.DisplayCompleted,
			TermKey:        in.TermKey,
			Reason:         in.Reason,
			AdjustmentType: in.AdjustmentType,
			SignedAmount:   in.Amount,
			AdminID:        in.AdminID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		adjustment := &domain.FeeAdjustment{
			ID:               adjustmentID,
			StudentID:        in.StudentID,
			AdjustmentAmount: in.Amount,
			TermKey:          in.TermKey,
			Reason:           in.Reason,
			AdjustmentType:   in.AdjustmentType,
			AdminID:          in.AdminID,
			OldFee:           oldFee,
			NewFee:           newFee,
			CreatedAt:        now,
		}

		if err := s.repo.Apply(ctx, store.LedgerWrite{
			Student: &store.StudentUpdate{
				StudentID:       in.StudentID,
				ExpectedVersion: student.Version,
				Terms:           terms,
				Balance:         newBalance,
			},
			NewTransaction: tx,
			Adjustment:     adjustment,
		}); err != nil {
			return err
		}

		studentName = student.FullName()
		result = &FeeAdjustmentResult{
			AdjustmentID:  adjustmentID,
			TransactionID: transactionID,
			NewBalance:    newBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	termLabel := strings.ReplaceAll(in.TermKey, "_", " ")
	s.notifier.Emit(ctx, "Fee Adjustment Applied",
		fmt.Sprintf("Fee adjustment of $%s applied to %s. Reason: %s", in.Amount.String(), termLabel, in.Reason),
		"info", in.StudentID, "student")
	s.notifier.Emit(ctx, "Fee Adjustment Processed",
		fmt.Sprintf("Admin applied fee adjustment of $%s for %s - %s", in.Amount.String(), studentName, termLabel),
		"info", "", "admin")

	return result, nil
}

// UpdateConfig applies a partial admin update to the singleton school
// configuration. When the update adds active terms, every existing student is
// billed for each new term at their fee rate.
func (s *Service) UpdateConfig(ctx context.Context, upd domain.ConfigUpdate, adminID string) error {
	cfg, err := s.repo.GetConfig(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrConfigNotFound) {
			return err
		}
		cfg = &domain.SchoolConfig{CurrencyCode: defaultCurrencyCode}
	}

	previousTerms := make(map[string]bool, len(cfg.ActiveTerms))
	for _, key := range cfg.ActiveTerms {
		previousTerms[key] = true
	}

	if upd.CurrencyCode != nil {
		cfg.CurrencyCode = *upd.CurrencyCode
	}
	if upd.Fees != nil {
		cfg.Fees = *upd.Fees
	}
	if upd.ActiveTerms != nil {
		cfg.ActiveTerms = upd.ActiveTerms
	}

	if err := s.repo.SaveConfig(ctx, cfg); err != nil {
		return err
	}

	var newTerms []string
	for _, key := range cfg.ActiveTerms {
		if !previousTerms[key] {
			newTerms = append(newTerms, key)
		}
	}
	for _, termKey := range newTerms {
		s.billNewTerm(ctx, cfg, termKey)
	}

	s.notifier.Emit(ctx, "Configuration Updated", "System configuration updated by admin", "info", "", "admin")
	return nil
}

// billNewTerm pre-bills every student for a newly activated term. Each
// student is billed in their own CAS write together with a billing
// transaction recording the charge; individual failures are logged and
// skipped so one bad record cannot block the rest of the school.
func (s *Service) billNewTerm(ctx context.Context, cfg *domain.SchoolConfig, termKey string) {
	ids, err := s.repo.ListStudentIDs(ctx)
	if err != nil {
		log.Printf("level=error component=ledger op=bill_new_term term=%s msg=\"student listing failed\" err=%v", termKey, err)
		return
	}

	billed := 0
	for _, id := range ids {
		now := time.Now().UTC()
		transactionID := NewTransactionID(now)
		err := s.withStudentRetry(ctx, func(ctx context.Context) error {
			student, err := s.repo.FindStudentByID(ctx, id)
			if err != nil {
				return err
			}
			if _, ok := student.Financials.Terms[termKey]; ok {
				return nil // already billed
			}

			fee := BaseFee(cfg.Fees, student.StudentType, student.GradeCategory, student.Grade)
			terms := cloneTerms(student.Financials.Terms)
			terms[termKey] = domain.TermBalance{
				Fee:  fee,
				Paid: decimal.Zero,
			}
			return s.repo.Apply(ctx, store.LedgerWrite{
				Student: &store.StudentUpdate{
					StudentID:       id,
					ExpectedVersion: student.Version,
					Terms:           terms,
					Balance:         RecomputeBalance(terms),
				},
				NewTransaction: &domain.Transaction{
					ID:             transactionID,
					StudentID:      id,
					Amount:         fee,
					Type:           domain.TransactionTypeAdjustment,
					Status:         domain.StatusCompleted,
					DisplayStatus:  domain.DisplayCompleted,
					TermKey:        termKey,
					Reason:         "New term billing",
					AdjustmentType: domain.AdjustmentDebit,
					SignedAmount:   fee,
					CreatedAt:      now,
					UpdatedAt:      now,
				},
			})
		})
		if err != nil {
			log.Printf("level=error component=ledger op=bill_new_term term=%s student_id=%s err=%v", termKey, id, err)
			continue
		}
		billed++
	}
	log.Printf("level=info component=ledger op=bill_new_term term=%s billed=%d of=%d", termKey, billed, len(ids))
}
