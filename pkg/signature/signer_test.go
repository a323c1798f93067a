package signature

import (
	"testing"
	"time"

	"github.com/ghostcart/ghostcart/pkg/mandate"
)

func testService() *Service {
	return NewService(NewKeyring("user-secret", "agent-secret", "engine-secret"))
}

func testCart() mandate.CartMandate {
	return mandate.CartMandate{
		ID:     "cart_0123456789abcdef",
		UserID: "user_demo_001",
		Items: []mandate.LineItem{{
			ProductID:      "prod_001",
			Name:           "Espresso Machine",
			Quantity:       1,
			UnitPriceCents: 6900,
			LineTotalCents: 6900,
		}},
		Total: mandate.Total{
			SubtotalCents:   6900,
			TaxCents:        552,
			ShippingCents:   1000,
			GrandTotalCents: 8452,
			Currency:        mandate.DefaultCurrency,
		},
		DeliveryEstimateDays: 3,
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	svc := testService()
	content := testCart()

	for _, role := range []Role{RoleUser, RoleAgent, RoleEngine} {
		sig, err := svc.Sign(content, role, "signer-1")
		if err != nil {
			t.Fatalf("Sign failed for role %s: %v", role, err)
		}
		if sig.Algorithm != mandate.AlgorithmHMACSHA256 {
			t.Errorf("unexpected algorithm %s", sig.Algorithm)
		}
		if !svc.Verify(content, sig, role) {
			t.Errorf("round trip failed for role %s", role)
		}
	}
}

func TestVerifyRejectsCrossRole(t *testing.T) {
	svc := testService()
	content := testCart()

	sig, err := svc.Sign(content, RoleUser, "user_demo_001")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if svc.Verify(content, sig, RoleAgent) {
		t.Error("user signature verified against agent key")
	}
	if svc.Verify(content, sig, RoleEngine) {
		t.Error("user signature verified against engine key")
	}
}

func TestVerifyRejectsTamperedContent(t *testing.T) {
	svc := testService()
	content := testCart()

	sig, err := svc.Sign(content, RoleUser, "user_demo_001")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	tampered := content
	tampered.Total.GrandTotalCents = 1
	if svc.Verify(tampered, sig, RoleUser) {
		t.Error("tampered content verified")
	}

	wrongSigner := *sig
	wrongSigner.SignerIdentity = "someone_else"
	if svc.Verify(content, &wrongSigner, RoleUser) {
		t.Error("signature with altered signer identity verified")
	}

	wrongTime := *sig
	wrongTime.Timestamp = sig.Timestamp.Add(time.Second)
	if svc.Verify(content, &wrongTime, RoleUser) {
		t.Error("signature with altered timestamp verified")
	}
}

func TestVerifyNeverErrors(t *testing.T) {
	svc := testService()
	content := testCart()

	if svc.Verify(content, nil, RoleUser) {
		t.Error("nil signature verified")
	}

	sig, _ := svc.Sign(content, RoleUser, "user_demo_001")
	if svc.Verify(content, sig, Role("auditor")) {
		t.Error("unknown role verified")
	}

	badAlg := *sig
	badAlg.Algorithm = "none"
	if svc.Verify(content, &badAlg, RoleUser) {
		t.Error("unknown algorithm verified")
	}

	// Content with no JSON representation must fail closed.
	if svc.Verify(make(chan int), sig, RoleUser) {
		t.Error("unserializable content verified")
	}
}

func TestSignDeterministicForFixedClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := testService().WithClock(func() time.Time { return fixed })
	content := testCart()

	a, err := svc.Sign(content, RoleAgent, mandate.SignerAgent)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	b, err := svc.Sign(content, RoleAgent, mandate.SignerAgent)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if a.SignatureValue != b.SignatureValue {
		t.Error("same content, signer, and timestamp produced different signatures")
	}
}

func TestSigningContentExcludesSignature(t *testing.T) {
	svc := testService()
	cart := testCart()

	sig, err := svc.Sign(cart.SigningContent(), RoleUser, cart.UserID)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	cart.Signature = sig

	// Attaching the signature must not change what verifies.
	if !svc.Verify(cart.SigningContent(), cart.Signature, RoleUser) {
		t.Error("signed cart failed verification of its own signing content")
	}
}
