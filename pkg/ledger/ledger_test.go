package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ghostcart/ghostcart/pkg/mandate"
	"github.com/ghostcart/ghostcart/pkg/validator"
)

type memStore struct {
	saved []*mandate.Transaction
	err   error
}

func (m *memStore) SaveTransaction(ctx context.Context, tx *mandate.Transaction) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, tx)
	return nil
}

func testCart() *mandate.CartMandate {
	return &mandate.CartMandate{
		ID:     mandate.NewCartID(),
		UserID: "user_demo_001",
		Total: mandate.Total{
			SubtotalCents:   6900,
			TaxCents:        552,
			ShippingCents:   1000,
			GrandTotalCents: 8452,
			Currency:        mandate.DefaultCurrency,
		},
	}
}

func testResult(cart *mandate.CartMandate) *validator.Result {
	txID := mandate.NewTransactionID()
	return &validator.Result{
		Payment: &mandate.PaymentMandate{
			ID:          mandate.NewPaymentID(),
			UserID:      cart.UserID,
			References:  mandate.PaymentReferences{CartMandateID: cart.ID, TransactionID: txID},
			AmountCents: cart.Total.GrandTotalCents,
			Currency:    cart.Total.Currency,
		},
		TransactionID:     txID,
		AuthorizationCode: "auth_abc123def456",
	}
}

func TestRecordAuthorized(t *testing.T) {
	store := &memStore{}
	rec := NewRecorder(store).WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})
	cart := testCart()
	res := testResult(cart)
	intentID := mandate.NewIntentID()

	tx, err := rec.RecordAuthorized(context.Background(), res, cart, intentID)
	if err != nil {
		t.Fatalf("RecordAuthorized failed: %v", err)
	}

	if tx.ID != res.TransactionID {
		t.Error("transaction id differs from the one in the payment references")
	}
	if tx.Status != mandate.StatusAuthorized {
		t.Errorf("status %s, want authorized", tx.Status)
	}
	if tx.AuthorizationCode == "" || tx.DeclineReason != "" || tx.DeclineCode != "" {
		t.Error("authorized transaction carries wrong outcome fields")
	}
	if tx.IntentMandateID != intentID || tx.CartMandateID != cart.ID || tx.PaymentMandateID != res.Payment.ID {
		t.Error("mandate chain links missing")
	}
	if tx.AmountCents != 8452 {
		t.Errorf("amount %d, want 8452", tx.AmountCents)
	}
	if len(store.saved) != 1 {
		t.Errorf("saved %d transactions, want 1", len(store.saved))
	}
}

func TestRecordDeclined(t *testing.T) {
	store := &memStore{}
	rec := NewRecorder(store)
	cart := testCart()

	verr := mandate.ErrPaymentDeclined("insufficient_funds")
	tx, err := rec.RecordDeclined(context.Background(), cart, "", verr)
	if err != nil {
		t.Fatalf("RecordDeclined failed: %v", err)
	}

	if tx.Status != mandate.StatusDeclined {
		t.Errorf("status %s, want declined", tx.Status)
	}
	if tx.DeclineReason != "insufficient_funds" {
		t.Errorf("reason %q", tx.DeclineReason)
	}
	if tx.DeclineCode != "ap2:payment:declined" {
		t.Errorf("code %q", tx.DeclineCode)
	}
	if tx.AuthorizationCode != "" {
		t.Error("declined transaction has an authorization code")
	}
	if tx.PaymentMandateID != "" {
		t.Error("declined transaction references a payment mandate")
	}
}

func TestRecordFailed(t *testing.T) {
	store := &memStore{}
	rec := NewRecorder(store)
	cart := testCart()

	verr := mandate.ErrConstraintsViolated(cart.ID, "max_price", "over ceiling")
	tx, err := rec.RecordFailed(context.Background(), cart, "intent_x", verr)
	if err != nil {
		t.Fatalf("RecordFailed failed: %v", err)
	}
	if tx.Status != mandate.StatusFailed {
		t.Errorf("status %s, want failed", tx.Status)
	}
	if tx.DeclineCode != "ap2:mandate:constraints_violated" {
		t.Errorf("code %q", tx.DeclineCode)
	}
}

func TestInvariantsRejectBadRecords(t *testing.T) {
	store := &memStore{}
	rec := NewRecorder(store)
	cart := testCart()

	// Authorized without a code must not persist.
	res := testResult(cart)
	res.AuthorizationCode = ""
	if _, err := rec.RecordAuthorized(context.Background(), res, cart, ""); err == nil {
		t.Error("authorized transaction without code accepted")
	}
	if len(store.saved) != 0 {
		t.Error("invalid transaction reached the store")
	}
}

func TestStoreErrorPropagates(t *testing.T) {
	sentinel := errors.New("disk full")
	rec := NewRecorder(&memStore{err: sentinel})
	cart := testCart()

	_, err := rec.RecordAuthorized(context.Background(), testResult(cart), cart, "")
	if !errors.Is(err, sentinel) {
		t.Errorf("store error not propagated: %v", err)
	}
}
