// Package ledger finalizes authorization outcomes into immutable
// Transaction records linked back to their mandate chain.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/ghostcart/ghostcart/pkg/mandate"
	"github.com/ghostcart/ghostcart/pkg/validator"
)

// Store is the durability contract the recorder writes through.
type Store interface {
	SaveTransaction(ctx context.Context, tx *mandate.Transaction) error
}

// Recorder turns validator results into Transaction records. It never
// mutates a transaction after writing it.
type Recorder struct {
	store Store
	now   func() time.Time
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// RecordAuthorized writes the transaction for a successful
// authorization. The transaction id was allocated by the validator and
// already appears in the payment mandate's references.
func (r *Recorder) RecordAuthorized(ctx context.Context, res *validator.Result, cart *mandate.CartMandate, intentID string) (*mandate.Transaction, error) {
	if res == nil || res.Payment == nil {
		return nil, fmt.Errorf("record authorized: missing validator result")
	}
	tx := &mandate.Transaction{
		ID:                res.TransactionID,
		IntentMandateID:   intentID,
		CartMandateID:     cart.ID,
		PaymentMandateID:  res.Payment.ID,
		UserID:            cart.UserID,
		Status:            mandate.StatusAuthorized,
		AuthorizationCode: res.AuthorizationCode,
		AmountCents:       res.Payment.AmountCents,
		Currency:          res.Payment.Currency,
		CreatedAt:         r.now().UTC(),
	}
	return r.save(ctx, tx)
}

// RecordDeclined writes the transaction for a payment the network
// rejected. No payment mandate exists for a declined charge.
func (r *Recorder) RecordDeclined(ctx context.Context, cart *mandate.CartMandate, intentID string, verr *mandate.Error) (*mandate.Transaction, error) {
	tx := &mandate.Transaction{
		ID:              mandate.NewTransactionID(),
		IntentMandateID: intentID,
		CartMandateID:   cart.ID,
		UserID:          cart.UserID,
		Status:          mandate.StatusDeclined,
		DeclineReason:   verr.Message,
		DeclineCode:     verr.Code(),
		AmountCents:     cart.Total.GrandTotalCents,
		Currency:        cart.Total.Currency,
		CreatedAt:       r.now().UTC(),
	}
	return r.save(ctx, tx)
}

// RecordFailed writes the transaction for a deferred purchase attempt
// that failed chain validation before reaching the network.
func (r *Recorder) RecordFailed(ctx context.Context, cart *mandate.CartMandate, intentID string, verr *mandate.Error) (*mandate.Transaction, error) {
	tx := &mandate.Transaction{
		ID:              mandate.NewTransactionID(),
		IntentMandateID: intentID,
		CartMandateID:   cart.ID,
		UserID:          cart.UserID,
		Status:          mandate.StatusFailed,
		DeclineReason:   verr.Message,
		DeclineCode:     verr.Code(),
		AmountCents:     cart.Total.GrandTotalCents,
		Currency:        cart.Total.Currency,
		CreatedAt:       r.now().UTC(),
	}
	return r.save(ctx, tx)
}

func (r *Recorder) save(ctx context.Context, tx *mandate.Transaction) (*mandate.Transaction, error) {
	if err := checkInvariants(tx); err != nil {
		return nil, err
	}
	if err := r.store.SaveTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("save transaction %s: %w", tx.ID, err)
	}
	return tx, nil
}

func checkInvariants(tx *mandate.Transaction) error {
	switch tx.Status {
	case mandate.StatusAuthorized:
		if tx.AuthorizationCode == "" {
			return fmt.Errorf("transaction %s: authorized without authorization code", tx.ID)
		}
		if tx.DeclineReason != "" || tx.DeclineCode != "" {
			return fmt.Errorf("transaction %s: authorized with decline fields set", tx.ID)
		}
	case mandate.StatusDeclined, mandate.StatusFailed:
		if tx.DeclineReason == "" || tx.DeclineCode == "" {
			return fmt.Errorf("transaction %s: %s without decline reason and code", tx.ID, tx.Status)
		}
		if tx.AuthorizationCode != "" {
			return fmt.Errorf("transaction %s: %s with authorization code set", tx.ID, tx.Status)
		}
	case mandate.StatusExpired:
	default:
		return fmt.Errorf("transaction %s: unknown status %q", tx.ID, tx.Status)
	}
	return nil
}
