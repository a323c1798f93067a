package mandate

import "time"

// Scenario distinguishes the two authorization flows.
type Scenario string

const (
	// ScenarioImmediate: the buyer signs the final cart themselves.
	ScenarioImmediate Scenario = "immediate"
	// ScenarioDeferred: the buyer pre-signs a constrained intent and an
	// autonomous agent signs the cart later, inside those constraints.
	ScenarioDeferred Scenario = "deferred"
)

// Fixed signer identities for the non-human roles. Human signers use
// their own user id.
const (
	SignerAgent  = "shopping_agent"
	SignerEngine = "payment_engine"
)

// AlgorithmHMACSHA256 is the only signature algorithm in use.
const AlgorithmHMACSHA256 = "HMAC-SHA256"

// Signature binds a canonical serialization of exactly one mandate's
// content to a signer identity. Any change to the mandate's fields
// invalidates it.
type Signature struct {
	Algorithm      string    `json:"algorithm"`
	SignerIdentity string    `json:"signer_identity"`
	Timestamp      time.Time `json:"timestamp"`
	SignatureValue string    `json:"signature_value"`
}

// Constraints are the ceilings a deferred Intent places on any later
// autonomous cart.
type Constraints struct {
	MaxPriceCents   Cents  `json:"max_price_cents"`
	MaxDeliveryDays int    `json:"max_delivery_days"`
	Currency        string `json:"currency"`
}

// IntentMandate records what the user asked to buy. For the deferred
// flow it is the user's signed pre-authorization; for the immediate
// flow it exists only as an audit record of the original request.
type IntentMandate struct {
	ID          string       `json:"mandate_id"`
	UserID      string       `json:"user_id"`
	Scenario    Scenario     `json:"scenario"`
	Query       string       `json:"query"`
	Constraints *Constraints `json:"constraints,omitempty"`
	Expiration  *time.Time   `json:"expiration,omitempty"`
	Signature   *Signature   `json:"signature,omitempty"`
}

// LineItem is a single product line in a cart.
type LineItem struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents Cents  `json:"unit_price_cents"`
	LineTotalCents Cents  `json:"line_total_cents"`
}

// Total is the cart total breakdown.
type Total struct {
	SubtotalCents   Cents  `json:"subtotal_cents"`
	TaxCents        Cents  `json:"tax_cents"`
	ShippingCents   Cents  `json:"shipping_cents"`
	GrandTotalCents Cents  `json:"grand_total_cents"`
	Currency        string `json:"currency"`
}

// MerchantInfo identifies the merchant behind a cart.
type MerchantInfo struct {
	MerchantID   string `json:"merchant_id"`
	MerchantName string `json:"merchant_name"`
	MerchantURL  string `json:"merchant_url"`
}

// CartReferences links a cart to the intent it acts under.
type CartReferences struct {
	IntentMandateID string `json:"intent_mandate_id,omitempty"`
}

// CartMandate fixes a concrete set of items, totals, and delivery
// estimate. Immutable after signing.
type CartMandate struct {
	ID                   string         `json:"mandate_id"`
	UserID               string         `json:"user_id"`
	Items                []LineItem     `json:"items"`
	Total                Total          `json:"total"`
	Merchant             MerchantInfo   `json:"merchant_info"`
	DeliveryEstimateDays int            `json:"delivery_estimate_days"`
	References           CartReferences `json:"references"`
	Signature            *Signature     `json:"signature,omitempty"`
}

// PaymentReferences links a payment mandate to its cart and the
// transaction record it settles into.
type PaymentReferences struct {
	CartMandateID string `json:"cart_mandate_id"`
	TransactionID string `json:"transaction_id"`
}

// PaymentMandate is created by the authorization engine only after
// chain validation succeeds, and is always engine-signed.
type PaymentMandate struct {
	ID              string            `json:"mandate_id"`
	UserID          string            `json:"user_id"`
	References      PaymentReferences `json:"references"`
	AmountCents     Cents             `json:"amount_cents"`
	Currency        string            `json:"currency"`
	CredentialToken string            `json:"credential_token"`
	HumanNotPresent bool              `json:"human_not_present"`
	Timestamp       time.Time         `json:"timestamp"`
	Signature       *Signature        `json:"signature,omitempty"`
}

// TransactionStatus is the terminal disposition of a processed payment.
type TransactionStatus string

const (
	StatusAuthorized TransactionStatus = "authorized"
	StatusDeclined   TransactionStatus = "declined"
	StatusExpired    TransactionStatus = "expired"
	StatusFailed     TransactionStatus = "failed"
)

// Transaction is the immutable record linking a processed payment to
// its mandate chain.
type Transaction struct {
	ID                string            `json:"transaction_id"`
	IntentMandateID   string            `json:"intent_mandate_id,omitempty"`
	CartMandateID     string            `json:"cart_mandate_id"`
	PaymentMandateID  string            `json:"payment_mandate_id"`
	UserID            string            `json:"user_id"`
	Status            TransactionStatus `json:"status"`
	AuthorizationCode string            `json:"authorization_code,omitempty"`
	DeclineReason     string            `json:"decline_reason,omitempty"`
	DeclineCode       string            `json:"decline_code,omitempty"`
	AmountCents       Cents             `json:"amount_cents"`
	Currency          string            `json:"currency"`
	CreatedAt         time.Time         `json:"created_at"`
}

// JobStatus is the monitoring job state machine position.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobChecking   JobStatus = "checking"
	JobTriggering JobStatus = "triggering"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobExpired    JobStatus = "expired"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobExpired, JobCancelled:
		return true
	}
	return false
}

// MonitoringJob tracks a signed deferred Intent until its constraints
// are met, it expires, or the user cancels it. Owned 1:1 by the intent.
type MonitoringJob struct {
	ID              string        `json:"job_id"`
	IntentMandateID string        `json:"intent_mandate_id"`
	UserID          string        `json:"user_id"`
	Query           string        `json:"query"`
	Constraints     Constraints   `json:"constraints"`
	Interval        time.Duration `json:"schedule_interval"`
	Status          JobStatus     `json:"status"`
	Active          bool          `json:"active"`
	LastCheckAt     *time.Time    `json:"last_check_at,omitempty"`
	TransactionID   string        `json:"transaction_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	ExpiresAt       time.Time     `json:"expires_at"`
}
