package mandate

import (
	"strings"

	"github.com/google/uuid"
)

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// NewIntentID returns a fresh intent mandate id.
func NewIntentID() string { return newID("intent_") }

// NewCartID returns a fresh cart mandate id.
func NewCartID() string { return newID("cart_") }

// NewPaymentID returns a fresh payment mandate id.
func NewPaymentID() string { return newID("payment_") }

// NewTransactionID returns a fresh transaction id.
func NewTransactionID() string { return newID("txn_") }

// NewJobID returns a fresh monitoring job id.
func NewJobID() string { return newID("job_") }
