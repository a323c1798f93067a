package mandate

import (
	"strings"
	"time"
)

// Expiration window bounds for deferred intents at creation time.
const (
	MinIntentLifetime = time.Hour
	MaxIntentLifetime = 30 * 24 * time.Hour
)

// ValidateIntent checks an IntentMandate for structural defects. The
// checks are context-free: flow- and signature-aware rules belong to
// the chain validator.
func ValidateIntent(m *IntentMandate) *Error {
	if m == nil {
		return errMalformed("", "intent", "intent mandate is nil")
	}
	if !strings.HasPrefix(m.ID, "intent_") {
		return errMalformed(m.ID, "intent.mandate_id", "malformed intent id %q", m.ID)
	}
	if m.UserID == "" {
		return errMalformed(m.ID, "intent.user_id", "user id is required")
	}
	if m.Scenario != ScenarioImmediate && m.Scenario != ScenarioDeferred {
		return errMalformed(m.ID, "intent.scenario", "unknown scenario %q", m.Scenario)
	}
	if m.Query == "" {
		return errMalformed(m.ID, "intent.query", "query is required")
	}
	if m.Scenario == ScenarioDeferred {
		if m.Constraints == nil {
			return errMalformed(m.ID, "intent.constraints", "deferred intent requires constraints")
		}
		if err := validateConstraints(m.ID, m.Constraints); err != nil {
			return err
		}
		if m.Expiration == nil {
			return errMalformed(m.ID, "intent.expiration", "deferred intent requires expiration")
		}
		if m.Signature == nil {
			return errMalformed(m.ID, "intent.signature", "deferred intent requires a signature")
		}
		if m.Signature.SignerIdentity != m.UserID {
			return errMalformed(m.ID, "intent.signature.signer_identity",
				"deferred intent must be signed by its user: signer %q != user %q",
				m.Signature.SignerIdentity, m.UserID)
		}
	}
	return nil
}

func validateConstraints(mandateID string, c *Constraints) *Error {
	if c.MaxPriceCents <= 0 {
		return errMalformed(mandateID, "constraints.max_price_cents", "max price must be positive, got %d", c.MaxPriceCents)
	}
	if c.MaxDeliveryDays <= 0 {
		return errMalformed(mandateID, "constraints.max_delivery_days", "max delivery days must be positive, got %d", c.MaxDeliveryDays)
	}
	if c.Currency != DefaultCurrency {
		return errMalformed(mandateID, "constraints.currency", "unsupported currency %q", c.Currency)
	}
	return nil
}

// CheckExpirationWindow enforces the creation-time sanity bounds on a
// deferred intent's expiration: between one hour and thirty days ahead.
func CheckExpirationWindow(now, expiration time.Time) *Error {
	if expiration.Before(now.Add(MinIntentLifetime)) {
		return errMalformed("", "intent.expiration", "expiration must be at least %s in the future", MinIntentLifetime)
	}
	if expiration.After(now.Add(MaxIntentLifetime)) {
		return errMalformed("", "intent.expiration", "expiration cannot exceed %s from now", MaxIntentLifetime)
	}
	return nil
}

// ValidateCart checks a CartMandate for structural defects, including
// the totals arithmetic.
func ValidateCart(m *CartMandate) *Error {
	if m == nil {
		return errMalformed("", "cart", "cart mandate is nil")
	}
	if !strings.HasPrefix(m.ID, "cart_") {
		return errMalformed(m.ID, "cart.mandate_id", "malformed cart id %q", m.ID)
	}
	if m.UserID == "" {
		return errMalformed(m.ID, "cart.user_id", "user id is required")
	}
	if len(m.Items) == 0 {
		return errMalformed(m.ID, "cart.items", "cart has no items")
	}
	var subtotal Cents
	for i, item := range m.Items {
		if item.Quantity <= 0 {
			return errMalformed(m.ID, "cart.items.quantity", "item %d: quantity must be positive, got %d", i, item.Quantity)
		}
		if item.UnitPriceCents < 0 {
			return errMalformed(m.ID, "cart.items.unit_price_cents", "item %d: negative unit price %d", i, item.UnitPriceCents)
		}
		expected := Cents(item.Quantity) * item.UnitPriceCents
		if item.LineTotalCents != expected {
			return errMalformed(m.ID, "cart.items.line_total_cents",
				"item %d: line total %d != quantity(%d) x unit price(%d)",
				i, item.LineTotalCents, item.Quantity, item.UnitPriceCents)
		}
		subtotal += item.LineTotalCents
	}
	if m.Total.SubtotalCents != subtotal {
		return errMalformed(m.ID, "cart.total.subtotal_cents",
			"subtotal %d != sum of line totals %d", m.Total.SubtotalCents, subtotal)
	}
	if m.Total.TaxCents < 0 || m.Total.ShippingCents < 0 {
		return errMalformed(m.ID, "cart.total", "negative tax or shipping")
	}
	if got, want := m.Total.GrandTotalCents, m.Total.SubtotalCents+m.Total.TaxCents+m.Total.ShippingCents; got != want {
		return errMalformed(m.ID, "cart.total.grand_total_cents",
			"grand total %d != subtotal+tax+shipping %d", got, want)
	}
	if m.Total.Currency != DefaultCurrency {
		return errMalformed(m.ID, "cart.total.currency", "unsupported currency %q", m.Total.Currency)
	}
	if m.DeliveryEstimateDays < 0 {
		return errMalformed(m.ID, "cart.delivery_estimate_days", "negative delivery estimate %d", m.DeliveryEstimateDays)
	}
	if m.Signature == nil {
		return errMalformed(m.ID, "cart.signature", "cart requires a signature")
	}
	return nil
}

// ValidatePayment checks a PaymentMandate for structural defects.
func ValidatePayment(m *PaymentMandate) *Error {
	if m == nil {
		return errMalformed("", "payment", "payment mandate is nil")
	}
	if !strings.HasPrefix(m.ID, "payment_") {
		return errMalformed(m.ID, "payment.mandate_id", "malformed payment id %q", m.ID)
	}
	if m.References.CartMandateID == "" {
		return errMalformed(m.ID, "payment.references.cart_mandate_id", "cart reference is required")
	}
	if m.References.TransactionID == "" {
		return errMalformed(m.ID, "payment.references.transaction_id", "transaction reference is required")
	}
	if m.AmountCents <= 0 {
		return errMalformed(m.ID, "payment.amount_cents", "amount must be positive, got %d", m.AmountCents)
	}
	if !strings.HasPrefix(m.CredentialToken, "tok_") {
		return errMalformed(m.ID, "payment.credential_token", "credential token must be tokenized (tok_*)")
	}
	if m.Signature == nil {
		return errMalformed(m.ID, "payment.signature", "payment requires a signature")
	}
	if m.Signature.SignerIdentity != SignerEngine {
		return errMalformed(m.ID, "payment.signature.signer_identity",
			"payment must be engine-signed, got %q", m.Signature.SignerIdentity)
	}
	return nil
}
