package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ghostcart/ghostcart/pkg/mandate"
)

// Mandate kinds as stored.
const (
	KindIntent  = "intent"
	KindCart    = "cart"
	KindPayment = "payment"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

func (s *Store) saveMandate(ctx context.Context, id, kind, userID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s mandate: %w", kind, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mandates (mandate_id, kind, user_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, kind, userID, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert %s mandate: %w", kind, err)
	}
	return nil
}

func (s *Store) loadMandate(ctx context.Context, id, kind string, v any) error {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM mandates WHERE mandate_id = ? AND kind = ?
	`, id, kind).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load %s mandate: %w", kind, err)
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("unmarshal %s mandate: %w", kind, err)
	}
	return nil
}

// SaveIntent persists an intent mandate. Mandates are immutable, so a
// duplicate id is an error, never an update.
func (s *Store) SaveIntent(ctx context.Context, m *mandate.IntentMandate) error {
	return s.saveMandate(ctx, m.ID, KindIntent, m.UserID, m)
}

func (s *Store) GetIntent(ctx context.Context, id string) (*mandate.IntentMandate, error) {
	var m mandate.IntentMandate
	if err := s.loadMandate(ctx, id, KindIntent, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) SaveCart(ctx context.Context, m *mandate.CartMandate) error {
	return s.saveMandate(ctx, m.ID, KindCart, m.UserID, m)
}

func (s *Store) GetCart(ctx context.Context, id string) (*mandate.CartMandate, error) {
	var m mandate.CartMandate
	if err := s.loadMandate(ctx, id, KindCart, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) SavePayment(ctx context.Context, m *mandate.PaymentMandate) error {
	return s.saveMandate(ctx, m.ID, KindPayment, m.UserID, m)
}

func (s *Store) GetPayment(ctx context.Context, id string) (*mandate.PaymentMandate, error) {
	var m mandate.PaymentMandate
	if err := s.loadMandate(ctx, id, KindPayment, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// LinkTransaction groups the given mandates under a transaction id so
// the full chain can be fetched by transaction.
func (s *Store) LinkTransaction(ctx context.Context, transactionID string, mandateIDs ...string) error {
	for _, id := range mandateIDs {
		if id == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `
			UPDATE mandates SET transaction_id = ? WHERE mandate_id = ?
		`, transactionID, id); err != nil {
			return fmt.Errorf("failed to link mandate %s: %w", id, err)
		}
	}
	return nil
}

// ChainByTransaction returns every stored mandate payload grouped
// under a transaction, keyed by kind.
func (s *Store) ChainByTransaction(ctx context.Context, transactionID string) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, payload FROM mandates WHERE transaction_id = ?
	`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain: %w", err)
	}
	defer rows.Close()

	chain := make(map[string]json.RawMessage)
	for rows.Next() {
		var kind, payload string
		if err := rows.Scan(&kind, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan chain row: %w", err)
		}
		chain[kind] = json.RawMessage(payload)
	}
	return chain, rows.Err()
}
