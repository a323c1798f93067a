package provider

import (
	"context"
	"strings"
	"testing"
)

func TestCatalogLookup(t *testing.T) {
	c := NewMockCatalog()
	ctx := context.Background()

	p, found, err := c.Lookup(ctx, "espresso")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !found {
		t.Fatal("expected a match for 'espresso'")
	}
	if p.ProductID != "prod_001" {
		t.Errorf("got %s, want prod_001", p.ProductID)
	}

	// Category match, case-insensitive.
	if _, found, _ := c.Lookup(ctx, "Kitchen"); !found {
		t.Error("expected a category match for 'Kitchen'")
	}

	if _, found, _ := c.Lookup(ctx, "submarine"); found {
		t.Error("unexpected match for 'submarine'")
	}
	if _, found, _ := c.Lookup(ctx, "   "); found {
		t.Error("blank query matched")
	}
}

func TestCatalogMutations(t *testing.T) {
	c := NewMockCatalog()
	ctx := context.Background()

	if !c.SetPrice("prod_001", 5900) {
		t.Fatal("SetPrice failed for existing product")
	}
	if !c.SetStock("prod_003", true) {
		t.Fatal("SetStock failed for existing product")
	}
	if c.SetPrice("prod_999", 100) {
		t.Error("SetPrice succeeded for missing product")
	}

	p, _, _ := c.Lookup(ctx, "espresso")
	if p.PriceCents != 5900 {
		t.Errorf("price %d, want 5900", p.PriceCents)
	}
	p, _, _ = c.Lookup(ctx, "switch oled")
	if !p.InStock {
		t.Error("stock flip not observed")
	}
}

func TestVaultDefaultToken(t *testing.T) {
	v := NewMockVault()
	ctx := context.Background()

	token, ok, err := v.GetToken(ctx, "user_demo_001")
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}
	if !ok || token != "tok_visa_4242" {
		t.Errorf("got %q, want tok_visa_4242", token)
	}

	if _, ok, _ := v.GetToken(ctx, "user_unknown"); ok {
		t.Error("unknown user has a token")
	}

	// New default demotes the old one.
	v.AddMethod("user_demo_001", PaymentMethod{Token: "tok_discover_6011", Type: "discover", LastFour: "6011", IsDefault: true})
	token, _, _ = v.GetToken(ctx, "user_demo_001")
	if token != "tok_discover_6011" {
		t.Errorf("got %q, want tok_discover_6011", token)
	}
}

func TestNetworkForcedDeclines(t *testing.T) {
	n := NewMockNetwork()
	n.SetLatency(0)
	ctx := context.Background()

	cases := map[string]string{
		"tok_decline":         "insufficient_funds",
		"tok_decline_fraud":   "fraud_suspected",
		"tok_decline_expired": "card_expired",
		"tok_decline_invalid": "invalid_card",
	}
	for token, want := range cases {
		res, err := n.Authorize(ctx, token, 7400, "USD")
		if err != nil {
			t.Fatalf("Authorize failed: %v", err)
		}
		if res.Approved {
			t.Errorf("token %s approved", token)
		}
		if res.DeclineReason != want {
			t.Errorf("token %s: reason %q, want %q", token, res.DeclineReason, want)
		}
	}
}

func TestNetworkDeterministic(t *testing.T) {
	n := NewMockNetwork()
	n.SetLatency(0)
	ctx := context.Background()

	first, err := n.Authorize(ctx, "tok_visa_4242", 7400, "USD")
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	second, _ := n.Authorize(ctx, "tok_visa_4242", 7400, "USD")
	if first.Approved != second.Approved {
		t.Error("same request produced different outcomes")
	}
	if first.Approved && first.AuthorizationCode != second.AuthorizationCode {
		t.Error("same request produced different authorization codes")
	}
	if first.Approved && !strings.HasPrefix(first.AuthorizationCode, "auth_") {
		t.Errorf("authorization code %q missing auth_ prefix", first.AuthorizationCode)
	}
}

func TestNetworkAlwaysApprove(t *testing.T) {
	n := NewMockNetwork()
	n.SetLatency(0)
	n.SetAlwaysApprove(true)
	ctx := context.Background()

	res, err := n.Authorize(ctx, "tok_mastercard_5555", 123456, "USD")
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if !res.Approved {
		t.Error("always-approve declined")
	}

	// Forced decline tokens still decline.
	res, _ = n.Authorize(ctx, "tok_decline", 100, "USD")
	if res.Approved {
		t.Error("forced decline token approved under always-approve")
	}

	authorized, declined := n.Counts()
	if authorized != 1 || declined != 1 {
		t.Errorf("counts %d/%d, want 1/1", authorized, declined)
	}
}

func TestNetworkHonorsContext(t *testing.T) {
	n := NewMockNetwork()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := n.Authorize(ctx, "tok_visa_4242", 7400, "USD"); err == nil {
		t.Error("cancelled context did not abort authorization")
	}
}
