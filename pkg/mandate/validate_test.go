package mandate

import (
	"strings"
	"testing"
	"time"
)

func validDeferredIntent() *IntentMandate {
	exp := time.Now().Add(48 * time.Hour).UTC()
	return &IntentMandate{
		ID:       NewIntentID(),
		UserID:   "user_demo_001",
		Scenario: ScenarioDeferred,
		Query:    "espresso machine",
		Constraints: &Constraints{
			MaxPriceCents:   18000,
			MaxDeliveryDays: 3,
			Currency:        DefaultCurrency,
		},
		Expiration: &exp,
		Signature: &Signature{
			Algorithm:      AlgorithmHMACSHA256,
			SignerIdentity: "user_demo_001",
			Timestamp:      time.Now().UTC(),
			SignatureValue: "deadbeef",
		},
	}
}

func validCart() *CartMandate {
	return &CartMandate{
		ID:     NewCartID(),
		UserID: "user_demo_001",
		Items: []LineItem{{
			ProductID:      "prod_001",
			Name:           "Espresso Machine",
			Quantity:       1,
			UnitPriceCents: 6900,
			LineTotalCents: 6900,
		}},
		Total: Total{
			SubtotalCents:   6900,
			TaxCents:        552,
			ShippingCents:   1000,
			GrandTotalCents: 8452,
			Currency:        DefaultCurrency,
		},
		DeliveryEstimateDays: 3,
		Signature: &Signature{
			Algorithm:      AlgorithmHMACSHA256,
			SignerIdentity: "user_demo_001",
			Timestamp:      time.Now().UTC(),
			SignatureValue: "deadbeef",
		},
	}
}

func TestValidateIntent(t *testing.T) {
	if err := ValidateIntent(validDeferredIntent()); err != nil {
		t.Fatalf("valid deferred intent rejected: %v", err)
	}

	immediate := &IntentMandate{
		ID:       NewIntentID(),
		UserID:   "user_demo_001",
		Scenario: ScenarioImmediate,
		Query:    "headphones",
	}
	if err := ValidateIntent(immediate); err != nil {
		t.Fatalf("immediate intent without constraints should be valid: %v", err)
	}
}

func TestValidateIntentDeferredRequirements(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*IntentMandate)
		rule   string
	}{
		{"missing constraints", func(m *IntentMandate) { m.Constraints = nil }, "intent.constraints"},
		{"missing expiration", func(m *IntentMandate) { m.Expiration = nil }, "intent.expiration"},
		{"missing signature", func(m *IntentMandate) { m.Signature = nil }, "intent.signature"},
		{"wrong signer", func(m *IntentMandate) { m.Signature.SignerIdentity = SignerAgent }, "intent.signature.signer_identity"},
		{"bad id prefix", func(m *IntentMandate) { m.ID = "cart_0123456789abcdef" }, "intent.mandate_id"},
		{"zero price ceiling", func(m *IntentMandate) { m.Constraints.MaxPriceCents = 0 }, "constraints.max_price_cents"},
		{"bad currency", func(m *IntentMandate) { m.Constraints.Currency = "EUR" }, "constraints.currency"},
		{"empty query", func(m *IntentMandate) { m.Query = "" }, "intent.query"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := validDeferredIntent()
			tc.mutate(m)
			err := ValidateIntent(m)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if err.Kind != KindMalformed {
				t.Errorf("expected malformed kind, got %s", err.Kind)
			}
			if err.Rule != tc.rule {
				t.Errorf("expected rule %q, got %q", tc.rule, err.Rule)
			}
		})
	}
}

func TestValidateCartArithmetic(t *testing.T) {
	if err := ValidateCart(validCart()); err != nil {
		t.Fatalf("valid cart rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*CartMandate)
	}{
		{"line total mismatch", func(m *CartMandate) { m.Items[0].LineTotalCents = 7000 }},
		{"subtotal mismatch", func(m *CartMandate) { m.Total.SubtotalCents = 1 }},
		{"grand total mismatch", func(m *CartMandate) { m.Total.GrandTotalCents = 9999 }},
		{"zero quantity", func(m *CartMandate) { m.Items[0].Quantity = 0 }},
		{"no items", func(m *CartMandate) { m.Items = nil }},
		{"no signature", func(m *CartMandate) { m.Signature = nil }},
		{"negative delivery", func(m *CartMandate) { m.DeliveryEstimateDays = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := validCart()
			tc.mutate(m)
			if err := ValidateCart(m); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateCartMultiItem(t *testing.T) {
	m := validCart()
	m.Items = append(m.Items, LineItem{
		ProductID:      "prod_002",
		Name:           "Grinder",
		Quantity:       2,
		UnitPriceCents: 500,
		LineTotalCents: 1000,
	})
	m.Total.SubtotalCents = 7900
	m.Total.GrandTotalCents = 7900 + m.Total.TaxCents + m.Total.ShippingCents
	if err := ValidateCart(m); err != nil {
		t.Fatalf("multi-item cart rejected: %v", err)
	}
}

func TestValidatePayment(t *testing.T) {
	p := &PaymentMandate{
		ID:     NewPaymentID(),
		UserID: "user_demo_001",
		References: PaymentReferences{
			CartMandateID: NewCartID(),
			TransactionID: NewTransactionID(),
		},
		AmountCents:     8452,
		Currency:        DefaultCurrency,
		CredentialToken: "tok_visa_4242",
		Timestamp:       time.Now().UTC(),
		Signature: &Signature{
			Algorithm:      AlgorithmHMACSHA256,
			SignerIdentity: SignerEngine,
			Timestamp:      time.Now().UTC(),
			SignatureValue: "deadbeef",
		},
	}
	if err := ValidatePayment(p); err != nil {
		t.Fatalf("valid payment rejected: %v", err)
	}

	raw := *p
	raw.CredentialToken = "4242424242424242"
	if err := ValidatePayment(&raw); err == nil {
		t.Error("raw credential accepted")
	}

	userSigned := *p
	userSigned.Signature = &Signature{SignerIdentity: "user_demo_001"}
	if err := ValidatePayment(&userSigned); err == nil {
		t.Error("non-engine signer accepted")
	}
}

func TestCheckExpirationWindow(t *testing.T) {
	now := time.Now().UTC()

	if err := CheckExpirationWindow(now, now.Add(30*time.Minute)); err == nil {
		t.Error("expiration under one hour accepted")
	}
	if err := CheckExpirationWindow(now, now.Add(2*time.Hour)); err != nil {
		t.Errorf("two hour expiration rejected: %v", err)
	}
	if err := CheckExpirationWindow(now, now.Add(31*24*time.Hour)); err == nil {
		t.Error("expiration past thirty days accepted")
	}
}

func TestErrorPublishMapsMalformed(t *testing.T) {
	err := ValidateCart(nil)
	if err == nil {
		t.Fatal("expected error for nil cart")
	}
	if err.Public() {
		t.Error("malformed should not be public")
	}
	pub := err.Publish()
	if pub.Kind != KindChainInvalid {
		t.Errorf("expected chain_invalid after publish, got %s", pub.Kind)
	}
	if pub.Code() != "ap2:mandate:chain_invalid" {
		t.Errorf("unexpected code %s", pub.Code())
	}
}

func TestCentsString(t *testing.T) {
	if got := Cents(8452).String(); got != "$84.52" {
		t.Errorf("got %s", got)
	}
	if got := Cents(5).String(); got != "$0.05" {
		t.Errorf("got %s", got)
	}
}

func TestIDPrefixes(t *testing.T) {
	ids := map[string]string{
		NewIntentID():      "intent_",
		NewCartID():        "cart_",
		NewPaymentID():     "payment_",
		NewTransactionID(): "txn_",
		NewJobID():         "job_",
	}
	for id, prefix := range ids {
		if !strings.HasPrefix(id, prefix) {
			t.Errorf("id %s missing prefix %s", id, prefix)
		}
		if len(id) != len(prefix)+16 {
			t.Errorf("id %s has unexpected length", id)
		}
	}
}
