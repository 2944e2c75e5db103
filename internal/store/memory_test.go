package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mhs/fees-service/internal/domain"
)

func seedLedger(t *testing.T) *Memory {
	t.Helper()
	mem := NewMemory()
	err := mem.Apply(context.Background(), LedgerWrite{
		NewStudent: &domain.Student{
			ID:            "MHS-1",
			Name:          "Tatenda",
			Surname:       "Moyo",
			StudentNumber: "SN-1",
			Financials: domain.Financials{
				Balance: decimal.RequireFromString("400"),
				Terms: map[string]domain.TermBalance{
					"2026_Term_1": {Fee: decimal.RequireFromString("400"), Paid: decimal.Zero},
				},
			},
			Version: 1,
		},
		NewTransaction: &domain.Transaction{
			ID:             "TXN-1",
			StudentID:      "MHS-1",
			Status:         domain.StatusPending,
			OrderReference: "ORD-1",
		},
	})
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}
	return mem
}

func TestApplyVersionPrecondition(t *testing.T) {
	mem := seedLedger(t)

	stale := LedgerWrite{Student: &StudentUpdate{
		StudentID:       "MHS-1",
		ExpectedVersion: 99,
		Terms:           map[string]domain.TermBalance{},
		Balance:         decimal.Zero,
	}}
	if err := mem.Apply(context.Background(), stale); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	// The student is untouched after the rejected write.
	s, err := mem.FindStudentByID(context.Background(), "MHS-1")
	if err != nil {
		t.Fatalf("loading student: %v", err)
	}
	if s.Version != 1 || len(s.Financials.Terms) != 1 {
		t.Fatalf("student mutated by rejected write: version=%d terms=%d", s.Version, len(s.Financials.Terms))
	}
}

func TestApplyStatusPrecondition(t *testing.T) {
	mem := seedLedger(t)

	first := LedgerWrite{StatusChange: &StatusChange{
		TransactionID:  "TXN-1",
		ExpectedStatus: domain.StatusPending,
		NewStatus:      domain.StatusSucceeded,
		DisplayStatus:  domain.DisplayPaymentSuccessful,
	}}
	if err := mem.Apply(context.Background(), first); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	// The same transition again must be rejected: the guard that makes
	// duplicate confirmations harmless.
	if err := mem.Apply(context.Background(), first); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected status conflict, got %v", err)
	}
}

func TestApplyAllOrNothing(t *testing.T) {
	mem := seedLedger(t)

	// A multi-path write with one failing precondition must leave every
	// other path unapplied.
	w := LedgerWrite{
		Student: &StudentUpdate{
			StudentID:       "MHS-1",
			ExpectedVersion: 1,
			Terms: map[string]domain.TermBalance{
				"2026_Term_1": {Fee: decimal.RequireFromString("400"), Paid: decimal.RequireFromString("400")},
			},
			Balance: decimal.Zero,
		},
		StatusChange: &StatusChange{
			TransactionID:  "TXN-1",
			ExpectedStatus: domain.StatusSucceeded, // actually pending
			NewStatus:      domain.StatusSucceeded,
		},
	}
	if err := mem.Apply(context.Background(), w); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected status conflict, got %v", err)
	}

	s, err := mem.FindStudentByID(context.Background(), "MHS-1")
	if err != nil {
		t.Fatalf("loading student: %v", err)
	}
	if !s.Financials.Terms["2026_Term_1"].Paid.IsZero() {
		t.Fatal("student write applied despite failed status precondition")
	}
	if s.Version != 1 {
		t.Fatalf("version bumped despite failed write: %d", s.Version)
	}
}

func TestApplyDuplicateStudentNumber(t *testing.T) {
	mem := seedLedger(t)

	err := mem.Apply(context.Background(), LedgerWrite{NewStudent: &domain.Student{
		ID:            "MHS-2",
		StudentNumber: "SN-1",
	}})
	if !errors.Is(err, ErrDuplicateStudentNumber) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}

func TestOrderReferenceLookup(t *testing.T) {
	mem := seedLedger(t)

	tx, err := mem.FindTransactionByOrderReference(context.Background(), "ORD-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if tx.ID != "TXN-1" {
		t.Fatalf("unexpected transaction %s", tx.ID)
	}

	if _, err := mem.FindTransactionByOrderReference(context.Background(), "ORD-missing"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
