package billing

import (
	"fmt"
	"time"
)

// receiptSeqWidth pads the per-month sequence to four digits.
const receiptSeqWidth = 4

// ReceiptPrefix returns the receipt-number prefix for the calendar month of t,
// e.g. "RCP202608". The sequence within a month restarts at 1.
func ReceiptPrefix(t time.Time) string {
	return fmt.Sprintf("RCP%04d%02d", t.Year(), int(t.Month()))
}

// FormatReceiptNumber combines a month prefix with a 1-based sequence number.
// Sequence allocation must be serialized through the record store: counting
// and writing in separate steps races under concurrent requests.
func FormatReceiptNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s%0*d", prefix, receiptSeqWidth, seq)
}
