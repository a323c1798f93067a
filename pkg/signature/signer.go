// Package signature implements deterministic mandate signing and
// constant-time verification scoped by signer role.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/ghostcart/ghostcart/pkg/mandate"
)

// Role scopes key material. A signature produced under one role's key
// never verifies against another role's key.
type Role string

const (
	// RoleUser signs immediate-flow carts and deferred-flow intents.
	RoleUser Role = "user"
	// RoleAgent signs autonomous deferred-flow carts.
	RoleAgent Role = "agent"
	// RoleEngine signs payment mandates.
	RoleEngine Role = "engine"
)

// Keyring maps roles to their HMAC keys. Adding a role is a data
// change, not a code change.
type Keyring map[Role][]byte

// NewKeyring builds a keyring from the three role secrets.
func NewKeyring(userKey, agentKey, engineKey string) Keyring {
	return Keyring{
		RoleUser:   []byte(userKey),
		RoleAgent:  []byte(agentKey),
		RoleEngine: []byte(engineKey),
	}
}

// Service signs mandate content and verifies claimed signatures. It
// proves only "this content was signed by whoever holds this role's
// key"; whether that role was the right one to sign is the chain
// validator's concern.
type Service struct {
	keys Keyring
	now  func() time.Time
}

// NewService creates a signature service over the given keyring.
func NewService(keys Keyring) *Service {
	return &Service{keys: keys, now: time.Now}
}

// WithClock overrides the timestamp source. Tests use this to pin
// signature timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Sign computes a keyed digest over the canonical serialization of
// content concatenated with the signer identity and a timestamp.
func (s *Service) Sign(content any, role Role, signerIdentity string) (*mandate.Signature, error) {
	key, ok := s.keys[role]
	if !ok {
		return nil, fmt.Errorf("no key for role %q", role)
	}
	ts := s.now().UTC()
	digest, err := s.digest(content, signerIdentity, ts, key)
	if err != nil {
		return nil, err
	}
	return &mandate.Signature{
		Algorithm:      mandate.AlgorithmHMACSHA256,
		SignerIdentity: signerIdentity,
		Timestamp:      ts,
		SignatureValue: digest,
	}, nil
}

// Verify recomputes the digest for the claimed role and compares in
// constant time. It returns false, never an error, on any mismatch,
// including unknown roles and unserializable content.
func (s *Service) Verify(content any, sig *mandate.Signature, role Role) bool {
	if sig == nil || sig.Algorithm != mandate.AlgorithmHMACSHA256 {
		return false
	}
	key, ok := s.keys[role]
	if !ok {
		return false
	}
	expected, err := s.digest(content, sig.SignerIdentity, sig.Timestamp, key)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(sig.SignatureValue))
}

// digest builds the signing message canonical|signer|timestamp and
// returns its HMAC-SHA256 as lowercase hex.
func (s *Service) digest(content any, signerIdentity string, ts time.Time, key []byte) (string, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("marshal signing content: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize signing content: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(canonical)
	mac.Write([]byte("|"))
	mac.Write([]byte(signerIdentity))
	mac.Write([]byte("|"))
	mac.Write([]byte(ts.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
