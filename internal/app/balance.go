/**
 * @description
 * Pure balance and fee-rate calculations. No I/O lives here: callers load the
 * student, mutate a copy of the terms map, and pass the post-mutation map in.
 * All arithmetic is exact decimal, so repeated additions never accumulate
 * cent-level drift the way binary floating point would.
 *
 * @dependencies
 * - strings: Standard Go library.
 * - github.com/shopspring/decimal: Exact decimal arithmetic for money.
 * - internal/domain: Domain models.
 */

package app

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mhs/fees-service/internal/domain"
)

// RecomputeBalance returns the aggregate outstanding balance for a terms map:
// the sum of max(0, fee - paid) over all terms. Overpaid terms contribute
// zero, never a negative credit against other terms.
//
// It must always be called with the post-mutation terms map; persisting a
// balance computed from pre-mutation terms breaks the cached-aggregate
// invariant.
func RecomputeBalance(terms map[string]domain.TermBalance) decimal.Decimal {
	total := decimal.Zero
	for _, term := range terms {
		total = total.Add(term.Remaining())
	}
	return total
}

// BaseFee selects the per-term fee for a student from the fee table.
//
// ZJC and OLevel students share the oLevel rate. ALevel students branch on
// their grade text: a case-insensitive "sciences" or "commercials" substring
// selects the matching rate, anything else defaults to arts.
func BaseFee(fees domain.FeeTable, studentType domain.StudentType, gradeCategory domain.GradeCategory, grade string) decimal.Decimal {
	card := fees.DayScholar
	if studentType == domain.StudentTypeBoarder {
		card = fees.Boarder
	}

	switch gradeCategory {
	case domain.GradeCategoryZJC, domain.GradeCategoryOLevel:
		return card.OLevel
	case domain.GradeCategoryALevel:
		lower := strings.ToLower(grade)
		switch {
		case strings.Contains(lower, "sciences"):
			return card.ALevelSciences
		case strings.Contains(lower, "commercials"):
			return card.ALevelCommercials
		default:
			return card.ALevelArts
		}
	}
	return decimal.Zero
}

// cloneTerms copies a terms map so an operation can mutate its own view
// before handing it to the store.
func cloneTerms(terms map[string]domain.TermBalance) map[string]domain.TermBalance {
	out := make(map[string]domain.TermBalance, len(terms))
	for k, v := range terms {
		out[k] = v
	}
	return out
}
