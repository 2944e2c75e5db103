/**
 * @description
 * Process-wide school configuration: the fee-rate table keyed by
 * {student type x grade class} and the list of currently active term keys used
 * when billing new students and new terms. Seeded once, mutable by admins.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Exact decimal arithmetic for money.
 */

package domain

import "github.com/shopspring/decimal"

// RateCard is one boarding-axis column of the fee table.
type RateCard struct {
	OLevel            decimal.Decimal `json:"oLevel"`
	ALevelSciences    decimal.Decimal `json:"aLevelSciences"`
	ALevelCommercials decimal.Decimal `json:"aLevelCommercials"`
	ALevelArts        decimal.Decimal `json:"aLevelArts"`
}

// FeeTable maps a student's type and grade class onto a base term fee.
type FeeTable struct {
	DayScholar RateCard `json:"dayScholar"`
	Boarder    RateCard `json:"boarder"`
}

// SchoolConfig is the singleton configuration record.
type SchoolConfig struct {
	// CurrencyCode is the ISO 4217 numeric code sent to the payment gateway.
	CurrencyCode int      `json:"currencyCode"`
	ActiveTerms  []string `json:"activeTerms"`
	Fees         FeeTable `json:"fees"`
}

// ConfigUpdate carries a partial admin update. Nil fields are left untouched;
// ActiveTerms replaces the whole list when present.
type ConfigUpdate struct {
	CurrencyCode *int      `json:"currencyCode,omitempty"`
	ActiveTerms  []string  `json:"activeTerms,omitempty"`
	Fees         *FeeTable `json:"fees,omitempty"`
}
