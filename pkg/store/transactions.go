package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ghostcart/ghostcart/pkg/mandate"
)

// SaveTransaction writes an immutable transaction record. Duplicate
// ids fail the insert; transactions are never updated.
func (s *Store) SaveTransaction(ctx context.Context, tx *mandate.Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
			(transaction_id, intent_mandate_id, cart_mandate_id, payment_mandate_id,
			 user_id, status, authorization_code, decline_reason, decline_code,
			 amount_cents, currency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.ID, nullString(tx.IntentMandateID), tx.CartMandateID, nullString(tx.PaymentMandateID),
		tx.UserID, string(tx.Status), nullString(tx.AuthorizationCode),
		nullString(tx.DeclineReason), nullString(tx.DeclineCode),
		int64(tx.AmountCents), tx.Currency, tx.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// GetTransaction returns a transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id string) (*mandate.Transaction, error) {
	row := s.db.QueryRowContext(ctx, txSelect+` WHERE transaction_id = ?`, id)
	return scanTransaction(row)
}

// TransactionsByUser returns a user's transactions, newest first.
func (s *Store) TransactionsByUser(ctx context.Context, userID string) ([]*mandate.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, txSelect+`
		WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by user: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// TransactionsByStatus returns all transactions in a status, newest
// first.
func (s *Store) TransactionsByStatus(ctx context.Context, status mandate.TransactionStatus) ([]*mandate.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, txSelect+`
		WHERE status = ? ORDER BY created_at DESC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by status: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

const txSelect = `
	SELECT transaction_id, intent_mandate_id, cart_mandate_id, payment_mandate_id,
	       user_id, status, authorization_code, decline_reason, decline_code,
	       amount_cents, currency, created_at
	FROM transactions`

func scanTransaction(row rowScanner) (*mandate.Transaction, error) {
	var (
		tx        mandate.Transaction
		intentID  sql.NullString
		paymentID sql.NullString
		authCode  sql.NullString
		reason    sql.NullString
		code      sql.NullString
		status    string
		amount    int64
	)
	err := row.Scan(&tx.ID, &intentID, &tx.CartMandateID, &paymentID,
		&tx.UserID, &status, &authCode, &reason, &code,
		&amount, &tx.Currency, &tx.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	tx.IntentMandateID = intentID.String
	tx.PaymentMandateID = paymentID.String
	tx.AuthorizationCode = authCode.String
	tx.DeclineReason = reason.String
	tx.DeclineCode = code.String
	tx.Status = mandate.TransactionStatus(status)
	tx.AmountCents = mandate.Cents(amount)
	return &tx, nil
}

func collectTransactions(rows *sql.Rows) ([]*mandate.Transaction, error) {
	var txs []*mandate.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
