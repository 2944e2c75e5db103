package app

import (
	"regexp"
	"testing"
	"time"
)

func TestIdentifierFormats(t *testing.T) {
	now := time.UnixMilli(1756713600123).UTC()

	tests := []struct {
		name    string
		value   string
		pattern string
	}{
		{"receipt number", NewReceiptNumber(now), `^MHS-600123-\d{3}$`},
		{"student id", NewStudentID(now), `^MHS-600123$`},
		{"transaction id", NewTransactionID(now), `^TXN-1756713600123-[0-9a-z]{9}$`},
		{"order reference", NewOrderReference(now), `^ORD-1756713600123-[0-9a-z]{6}$`},
		{"adjustment id", NewAdjustmentID(now), `^ADJ-1756713600123$`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !regexp.MustCompile(tt.pattern).MatchString(tt.value) {
				t.Fatalf("value %q does not match %s", tt.value, tt.pattern)
			}
		})
	}
}
