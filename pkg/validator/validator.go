// Package validator implements the payment authorization engine. It
// validates complete mandate chains for the immediate and deferred
// flows, enforces cross-mandate constraints, and classifies every
// failure into the fixed error taxonomy. It holds no mutable state
// across invocations and is safe for concurrent use.
package validator

import (
	"context"
	"time"

	"github.com/ghostcart/ghostcart/pkg/mandate"
	"github.com/ghostcart/ghostcart/pkg/provider"
	"github.com/ghostcart/ghostcart/pkg/signature"
)

const (
	defaultCredentialTimeout = 5 * time.Second
	defaultAuthorizeTimeout  = 10 * time.Second
)

// Result is a successful authorization: the engine-signed
// PaymentMandate plus the transaction id the caller records under.
type Result struct {
	Payment           *mandate.PaymentMandate
	TransactionID     string
	AuthorizationCode string
}

// Validator authorizes mandate chains. Construct with New.
type Validator struct {
	signer  *signature.Service
	vault   provider.CredentialVault
	network provider.PaymentNetwork

	credentialTimeout time.Duration
	authorizeTimeout  time.Duration
	now               func() time.Time
}

// Option customizes a Validator.
type Option func(*Validator)

// WithTimeouts overrides the credential lookup and payment
// authorization deadlines.
func WithTimeouts(credential, authorize time.Duration) Option {
	return func(v *Validator) {
		v.credentialTimeout = credential
		v.authorizeTimeout = authorize
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

func New(signer *signature.Service, vault provider.CredentialVault, network provider.PaymentNetwork, opts ...Option) *Validator {
	v := &Validator{
		signer:            signer,
		vault:             vault,
		network:           network,
		credentialTimeout: defaultCredentialTimeout,
		authorizeTimeout:  defaultAuthorizeTimeout,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// AuthorizeImmediate validates a user-signed cart and, if the chain
// holds, charges it and returns the engine-signed PaymentMandate.
// Rules run in a fixed order and short-circuit on the first violation
// so identical inputs always classify identically.
func (v *Validator) AuthorizeImmediate(ctx context.Context, cart *mandate.CartMandate) (*Result, *mandate.Error) {
	if err := mandate.ValidateCart(cart); err != nil {
		return nil, err.Publish()
	}
	if cart.Signature.SignerIdentity != cart.UserID {
		return nil, mandate.ErrSignatureInvalid(cart.ID, "cart_signer",
			"cart signer %q is not the buyer %q", cart.Signature.SignerIdentity, cart.UserID)
	}
	if !v.signer.Verify(cart.SigningContent(), cart.Signature, signature.RoleUser) {
		return nil, mandate.ErrSignatureInvalid(cart.ID, "cart_signature",
			"cart signature does not verify against the user key")
	}
	return v.settle(ctx, cart, false)
}

// AuthorizeDeferred validates a full deferred chain: a user-signed,
// unexpired Intent and an agent-signed cart acting strictly inside the
// Intent's constraints. A human-signed cart in this path is rejected
// as signatureInvalid; the role mismatch is itself a chain violation.
func (v *Validator) AuthorizeDeferred(ctx context.Context, intent *mandate.IntentMandate, cart *mandate.CartMandate) (*Result, *mandate.Error) {
	if err := mandate.ValidateIntent(intent); err != nil {
		return nil, err.Publish()
	}
	if err := mandate.ValidateCart(cart); err != nil {
		return nil, err.Publish()
	}
	if intent.Scenario != mandate.ScenarioDeferred {
		return nil, mandate.ErrChainInvalid(intent.ID, "intent_scenario",
			"intent %s is not a deferred authorization", intent.ID)
	}
	if intent.Signature == nil || intent.Signature.SignerIdentity != intent.UserID {
		return nil, mandate.ErrSignatureInvalid(intent.ID, "intent_signer",
			"intent is not signed by its user")
	}
	if !v.signer.Verify(intent.SigningContent(), intent.Signature, signature.RoleUser) {
		return nil, mandate.ErrSignatureInvalid(intent.ID, "intent_signature",
			"intent signature does not verify against the user key")
	}
	if intent.Expiration == nil || v.now().After(*intent.Expiration) {
		return nil, mandate.ErrExpired(intent.ID, "intent expired at %s", intent.Expiration)
	}
	if cart.Signature.SignerIdentity != mandate.SignerAgent {
		return nil, mandate.ErrSignatureInvalid(cart.ID, "cart_signer",
			"deferred cart must be agent-signed, got %q", cart.Signature.SignerIdentity)
	}
	if !v.signer.Verify(cart.SigningContent(), cart.Signature, signature.RoleAgent) {
		return nil, mandate.ErrSignatureInvalid(cart.ID, "cart_signature",
			"cart signature does not verify against the agent key")
	}
	if cart.References.IntentMandateID == "" || cart.References.IntentMandateID != intent.ID {
		return nil, mandate.ErrChainInvalid(cart.ID, "cart_reference",
			"cart references intent %q, expected %q", cart.References.IntentMandateID, intent.ID)
	}
	c := intent.Constraints
	if cart.Total.GrandTotalCents > c.MaxPriceCents {
		return nil, mandate.ErrConstraintsViolated(cart.ID, "max_price",
			"cart total %s exceeds ceiling %s", cart.Total.GrandTotalCents, c.MaxPriceCents)
	}
	if cart.DeliveryEstimateDays > c.MaxDeliveryDays {
		return nil, mandate.ErrConstraintsViolated(cart.ID, "max_delivery",
			"delivery estimate %d days exceeds ceiling %d", cart.DeliveryEstimateDays, c.MaxDeliveryDays)
	}
	if c.Currency != "" && cart.Total.Currency != c.Currency {
		return nil, mandate.ErrConstraintsViolated(cart.ID, "currency",
			"cart currency %q does not match intent currency %q", cart.Total.Currency, c.Currency)
	}
	return v.settle(ctx, cart, true)
}

// settle runs the shared tail of both flows: credential lookup,
// network authorization, and construction of the engine-signed
// PaymentMandate.
func (v *Validator) settle(ctx context.Context, cart *mandate.CartMandate, humanNotPresent bool) (*Result, *mandate.Error) {
	token, err := v.lookupToken(ctx, cart.UserID)
	if err != nil {
		return nil, err
	}

	authCtx, cancel := context.WithTimeout(ctx, v.authorizeTimeout)
	defer cancel()
	auth, aerr := v.network.Authorize(authCtx, token, cart.Total.GrandTotalCents, cart.Total.Currency)
	if aerr != nil {
		// Timeouts and transport faults are never success.
		return nil, mandate.ErrPaymentDeclined("network_failure")
	}
	if !auth.Approved {
		return nil, mandate.ErrPaymentDeclined(auth.DeclineReason)
	}

	payment := &mandate.PaymentMandate{
		ID:     mandate.NewPaymentID(),
		UserID: cart.UserID,
		References: mandate.PaymentReferences{
			CartMandateID: cart.ID,
			TransactionID: mandate.NewTransactionID(),
		},
		AmountCents:     cart.Total.GrandTotalCents,
		Currency:        cart.Total.Currency,
		CredentialToken: token,
		HumanNotPresent: humanNotPresent,
		Timestamp:       v.now().UTC(),
	}
	sig, serr := v.signer.Sign(payment.SigningContent(), signature.RoleEngine, mandate.SignerEngine)
	if serr != nil {
		return nil, mandate.ErrSignatureInvalid(payment.ID, "engine_signature",
			"sign payment mandate: %v", serr)
	}
	payment.Signature = sig

	return &Result{
		Payment:           payment,
		TransactionID:     payment.References.TransactionID,
		AuthorizationCode: auth.AuthorizationCode,
	}, nil
}

func (v *Validator) lookupToken(ctx context.Context, userID string) (string, *mandate.Error) {
	credCtx, cancel := context.WithTimeout(ctx, v.credentialTimeout)
	defer cancel()
	token, ok, err := v.vault.GetToken(credCtx, userID)
	if err != nil {
		return "", mandate.ErrCredentialsUnavailable("credential lookup for %s failed: %v", userID, err)
	}
	if !ok || token == "" {
		return "", mandate.ErrCredentialsUnavailable("no usable payment credential for %s", userID)
	}
	return token, nil
}
