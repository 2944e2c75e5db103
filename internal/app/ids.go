package app

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"
)

// Identifier formats carried over from the frontend's expectations. Receipt
// numbers are probabilistically unique (timestamp tail plus a 3-digit random
// suffix); collisions are an accepted low-probability risk, not an invariant.

func timestampTail(now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return ms
}

func randomBase36(n int) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}

// NewReceiptNumber returns e.g. "MHS-847293-041".
func NewReceiptNumber(now time.Time) string {
	return fmt.Sprintf("MHS-%s-%03d", timestampTail(now), rand.Intn(1000))
}

// NewStudentID returns e.g. "MHS-847293".
func NewStudentID(now time.Time) string {
	return "MHS-" + timestampTail(now)
}

// NewTransactionID returns e.g. "TXN-1756713600000-k3j9d02xq".
func NewTransactionID(now time.Time) string {
	return fmt.Sprintf("TXN-%d-%s", now.UnixMilli(), randomBase36(9))
}

// NewOrderReference returns e.g. "ORD-1756713600000-a8x2m1".
func NewOrderReference(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), randomBase36(6))
}

// NewAdjustmentID returns e.g. "ADJ-1756713600000".
func NewAdjustmentID(now time.Time) string {
	return fmt.Sprintf("ADJ-%d", now.UnixMilli())
}
