package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/ghostcart/ghostcart/pkg/mandate"
)

// declineTokens maps well-known test tokens to fixed decline reasons,
// so failure paths are reproducible on demand.
var declineTokens = map[string]string{
	"tok_decline":         "insufficient_funds",
	"tok_decline_fraud":   "fraud_suspected",
	"tok_decline_expired": "card_expired",
	"tok_decline_invalid": "invalid_card",
}

// MockNetwork simulates a payment processor. Outcomes are
// deterministic for a given token, amount, and currency: forced
// decline tokens always decline, everything else approves or declines
// by hashing the request, roughly nine in ten approving.
type MockNetwork struct {
	mu sync.Mutex
	// AlwaysApprove short-circuits the hash roll. Forced decline
	// tokens still decline.
	alwaysApprove bool
	latency       time.Duration
	authorized    int64
	declined      int64
}

// NewMockNetwork creates a processor with a small simulated latency.
func NewMockNetwork() *MockNetwork {
	return &MockNetwork{latency: 50 * time.Millisecond}
}

// SetAlwaysApprove toggles deterministic approval for demos.
func (n *MockNetwork) SetAlwaysApprove(v bool) {
	n.mu.Lock()
	n.alwaysApprove = v
	n.mu.Unlock()
}

// SetLatency overrides the simulated processing delay.
func (n *MockNetwork) SetLatency(d time.Duration) {
	n.mu.Lock()
	n.latency = d
	n.mu.Unlock()
}

// Counts reports how many authorizations approved and declined.
func (n *MockNetwork) Counts() (authorized, declined int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.authorized, n.declined
}

// Authorize runs a simulated authorization. It honors context
// cancellation during the latency window.
func (n *MockNetwork) Authorize(ctx context.Context, token string, amount mandate.Cents, currency string) (AuthResult, error) {
	n.mu.Lock()
	latency := n.latency
	always := n.alwaysApprove
	n.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return AuthResult{}, ctx.Err()
		case <-time.After(latency):
		}
	}

	if reason, ok := declineTokens[token]; ok {
		n.record(false)
		return AuthResult{Approved: false, DeclineReason: reason}, nil
	}

	if !always && !hashApproves(token, amount, currency) {
		n.record(false)
		return AuthResult{Approved: false, DeclineReason: "do_not_honor"}, nil
	}

	n.record(true)
	return AuthResult{Approved: true, AuthorizationCode: authCode(token, amount, currency)}, nil
}

func (n *MockNetwork) record(approved bool) {
	n.mu.Lock()
	if approved {
		n.authorized++
	} else {
		n.declined++
	}
	n.mu.Unlock()
}

// hashApproves is a deterministic stand-in for processor risk scoring.
// The first byte of SHA-256(token:amount:currency) lands under 230 for
// roughly 90% of inputs.
func hashApproves(token string, amount mandate.Cents, currency string) bool {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", token, amount, currency)))
	return sum[0] < 230
}

func authCode(token string, amount mandate.Cents, currency string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("auth:%s:%d:%s", token, amount, currency)))
	return "auth_" + hex.EncodeToString(sum[:6])
}
