package provider

import (
	"context"
	"sync"
)

// PaymentMethod is a stored, tokenized credential. The token is the
// only field that ever leaves the vault.
type PaymentMethod struct {
	Token       string `json:"token"`
	Type        string `json:"type"`
	LastFour    string `json:"last_four"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	IsDefault   bool   `json:"is_default"`
}

// MockVault keeps per-user payment methods in memory.
type MockVault struct {
	mu      sync.Mutex
	methods map[string][]PaymentMethod
}

// NewMockVault creates a vault seeded with demo users.
func NewMockVault() *MockVault {
	return &MockVault{
		methods: map[string][]PaymentMethod{
			"user_demo_001": {
				{Token: "tok_visa_4242", Type: "visa", LastFour: "4242", ExpiryMonth: 12, ExpiryYear: 2028, IsDefault: true},
				{Token: "tok_amex_0005", Type: "amex", LastFour: "0005", ExpiryMonth: 6, ExpiryYear: 2027},
			},
			"user_demo_002": {
				{Token: "tok_mastercard_5555", Type: "mastercard", LastFour: "5555", ExpiryMonth: 3, ExpiryYear: 2029, IsDefault: true},
			},
			"user_demo_003": {
				{Token: "tok_decline", Type: "visa", LastFour: "0341", ExpiryMonth: 9, ExpiryYear: 2026, IsDefault: true},
			},
		},
	}
}

// GetToken returns the user's default payment token. When no method is
// marked default the first stored method wins. The boolean is false
// when the user has no methods at all.
func (v *MockVault) GetToken(ctx context.Context, userID string) (string, bool, error) {
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	default:
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	methods := v.methods[userID]
	if len(methods) == 0 {
		return "", false, nil
	}
	for _, m := range methods {
		if m.IsDefault {
			return m.Token, true, nil
		}
	}
	return methods[0].Token, true, nil
}

// AddMethod stores a payment method for a user. A method marked
// default demotes any existing default.
func (v *MockVault) AddMethod(userID string, m PaymentMethod) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if m.IsDefault {
		existing := v.methods[userID]
		for i := range existing {
			existing[i].IsDefault = false
		}
	}
	v.methods[userID] = append(v.methods[userID], m)
}

// RemoveUser deletes all methods for a user.
func (v *MockVault) RemoveUser(userID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.methods, userID)
}
