/**
 * @description
 * This file defines the student domain model and its financial state. A student's
 * financials are a per-term map of {fee, paid} figures plus a cached aggregate
 * balance. The balance is derived data: every write that touches a term must
 * recompute and persist the aggregate in the same atomic store operation.
 *
 * @dependencies
 * - time: Standard Go library.
 * - github.com/shopspring/decimal: Exact decimal arithmetic for money.
 */

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StudentType selects the boarding axis of the fee table.
type StudentType string

const (
	StudentTypeDayScholar StudentType = "Day Scholar"
	StudentTypeBoarder    StudentType = "Boarder"
)

// Valid reports whether the wire value is a known student type.
func (s StudentType) Valid() bool {
	return s == StudentTypeDayScholar || s == StudentTypeBoarder
}

// GradeCategory selects the academic axis of the fee table.
type GradeCategory string

const (
	GradeCategoryZJC    GradeCategory = "ZJC"
	GradeCategoryOLevel GradeCategory = "OLevel"
	GradeCategoryALevel GradeCategory = "ALevel"
)

func (g GradeCategory) Valid() bool {
	return g == GradeCategoryZJC || g == GradeCategoryOLevel || g == GradeCategoryALevel
}

// TermBalance holds the billed fee and the amount paid to date for one term.
type TermBalance struct {
	Fee  decimal.Decimal `json:"fee"`
	Paid decimal.Decimal `json:"paid"`
}

// Remaining is the outstanding amount for the term, never negative.
func (t TermBalance) Remaining() decimal.Decimal {
	rem := t.Fee.Sub(t.Paid)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// Financials is the student's financial sub-document. Balance is the cached
// aggregate of Remaining() over all terms and must never be persisted without
// being recomputed from the post-mutation terms map.
type Financials struct {
	Balance decimal.Decimal        `json:"balance"`
	Terms   map[string]TermBalance `json:"terms"`
}

// Student is the identity + academic + financial record. Version is the
// optimistic-concurrency token on the financial sub-document; every ledger
// write is conditioned on it.
type Student struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	Surname             string        `json:"surname"`
	StudentNumber       string        `json:"studentNumber"`
	StudentType         StudentType   `json:"studentType"`
	GradeCategory       GradeCategory `json:"gradeCategory"`
	Grade               string        `json:"grade"`
	GuardianPhoneNumber string        `json:"guardianPhoneNumber"`
	Financials          Financials    `json:"financials"`
	Version             int64         `json:"-"`
	CreatedAt           time.Time     `json:"createdAt"`
}

// FullName is used in notifications and audit records.
func (s *Student) FullName() string {
	return s.Name + " " + s.Surname
}
