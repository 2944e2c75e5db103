package app

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mhs/fees-service/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRecomputeBalance(t *testing.T) {
	tests := []struct {
		name  string
		terms map[string]domain.TermBalance
		want  string
	}{
		{
			name:  "empty terms",
			terms: map[string]domain.TermBalance{},
			want:  "0",
		},
		{
			name: "sums remaining across terms",
			terms: map[string]domain.TermBalance{
				"2026_Term_1": {Fee: d("500"), Paid: d("200")},
				"2026_Term_2": {Fee: d("500"), Paid: d("0")},
			},
			want: "800",
		},
		{
			name: "overpaid term contributes zero",
			terms: map[string]domain.TermBalance{
				"2026_Term_1": {Fee: d("500"), Paid: d("650")},
				"2026_Term_2": {Fee: d("500"), Paid: d("100")},
			},
			want: "400",
		},
		{
			name: "exact cents",
			terms: map[string]domain.TermBalance{
				"2026_Term_1": {Fee: d("433.20"), Paid: d("100.10")},
			},
			want: "333.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecomputeBalance(tt.terms)
			if !got.Equal(d(tt.want)) {
				t.Fatalf("expected balance %s, got %s", tt.want, got)
			}
		})
	}
}

func TestBaseFee(t *testing.T) {
	fees := domain.FeeTable{
		DayScholar: domain.RateCard{
			OLevel:            d("200"),
			ALevelSciences:    d("280"),
			ALevelCommercials: d("260"),
			ALevelArts:        d("240"),
		},
		Boarder: domain.RateCard{
			OLevel:            d("500"),
			ALevelSciences:    d("580"),
			ALevelCommercials: d("560"),
			ALevelArts:        d("540"),
		},
	}

	tests := []struct {
		name        string
		studentType domain.StudentType
		category    domain.GradeCategory
		grade       string
		want        string
	}{
		{"zjc shares olevel rate", domain.StudentTypeDayScholar, domain.GradeCategoryZJC, "Form 1", "200"},
		{"olevel day scholar", domain.StudentTypeDayScholar, domain.GradeCategoryOLevel, "Form 4", "200"},
		{"olevel boarder", domain.StudentTypeBoarder, domain.GradeCategoryOLevel, "Form 3", "500"},
		{"alevel sciences", domain.StudentTypeBoarder, domain.GradeCategoryALevel, "Lower 6 Sciences", "580"},
		{"alevel commercials", domain.StudentTypeDayScholar, domain.GradeCategoryALevel, "Upper 6 Commercials", "260"},
		{"alevel defaults to arts", domain.StudentTypeDayScholar, domain.GradeCategoryALevel, "Upper 6 Humanities", "240"},
		{"grade match is case-insensitive", domain.StudentTypeBoarder, domain.GradeCategoryALevel, "LOWER 6 SCIENCES", "580"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BaseFee(fees, tt.studentType, tt.category, tt.grade)
			if !got.Equal(d(tt.want)) {
				t.Fatalf("expected fee %s, got %s", tt.want, got)
			}
		})
	}
}

func TestTermRemainingNeverNegative(t *testing.T) {
	term := domain.TermBalance{Fee: d("100"), Paid: d("150")}
	if !term.Remaining().IsZero() {
		t.Fatalf("expected zero remaining for overpaid term, got %s", term.Remaining())
	}
}
