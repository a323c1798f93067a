// Package provider defines the three external capabilities the
// authorization core consumes: catalog lookup, tokenized credential
// lookup, and payment authorization. Implementations may block; all
// methods take a context and callers apply timeouts.
package provider

import (
	"context"

	"github.com/ghostcart/ghostcart/pkg/mandate"
)

// Product is a single catalog observation.
type Product struct {
	ProductID            string        `json:"product_id"`
	Name                 string        `json:"name"`
	Description          string        `json:"description"`
	Category             string        `json:"category"`
	PriceCents           mandate.Cents `json:"price_cents"`
	InStock              bool          `json:"in_stock"`
	DeliveryEstimateDays int           `json:"delivery_estimate_days"`
}

// Catalog looks up products by free-text query. The boolean is false
// when nothing matches.
type Catalog interface {
	Lookup(ctx context.Context, query string) (Product, bool, error)
}

// CredentialVault resolves a user to an opaque tokenized payment
// credential. It never returns raw payment data. The boolean is false
// when the user has no usable credential.
type CredentialVault interface {
	GetToken(ctx context.Context, userID string) (string, bool, error)
}

// AuthResult is the outcome of a payment authorization attempt.
type AuthResult struct {
	Approved          bool   `json:"approved"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
	DeclineReason     string `json:"decline_reason,omitempty"`
}

// PaymentNetwork is the only capability permitted to move money.
type PaymentNetwork interface {
	Authorize(ctx context.Context, token string, amount mandate.Cents, currency string) (AuthResult, error)
}
