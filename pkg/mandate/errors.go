package mandate

import "fmt"

// ErrorKind is the fixed failure taxonomy surfaced to callers. Nothing
// else crosses the component boundary.
type ErrorKind string

const (
	KindChainInvalid           ErrorKind = "chain_invalid"
	KindSignatureInvalid       ErrorKind = "signature_invalid"
	KindExpired                ErrorKind = "expired"
	KindConstraintsViolated    ErrorKind = "constraints_violated"
	KindCredentialsUnavailable ErrorKind = "credentials_unavailable"
	KindPaymentDeclined        ErrorKind = "payment_declined"

	// KindMalformed is implementation-internal: a structural defect
	// found by the model predicates. It must be mapped to
	// KindChainInvalid before leaving the validator.
	KindMalformed ErrorKind = "malformed"
)

// Protocol error codes, one per public taxonomy member.
var errorCodes = map[ErrorKind]string{
	KindChainInvalid:           "ap2:mandate:chain_invalid",
	KindSignatureInvalid:       "ap2:mandate:signature_invalid",
	KindExpired:                "ap2:mandate:expired",
	KindConstraintsViolated:    "ap2:mandate:constraints_violated",
	KindCredentialsUnavailable: "ap2:credentials:unavailable",
	KindPaymentDeclined:        "ap2:payment:declined",
	KindMalformed:              "ap2:mandate:chain_invalid",
}

// Error is a typed, terminal validation failure. MandateID and Rule
// carry enough structure for a boundary layer to render a non-technical
// explanation.
type Error struct {
	Kind      ErrorKind `json:"kind"`
	MandateID string    `json:"mandate_id,omitempty"`
	Rule      string    `json:"rule,omitempty"`
	Message   string    `json:"message"`
}

func (e *Error) Error() string {
	if e.MandateID != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code(), e.Message, e.MandateID)
	}
	return fmt.Sprintf("%s: %s", e.Code(), e.Message)
}

// Code returns the protocol error code for the kind.
func (e *Error) Code() string {
	if code, ok := errorCodes[e.Kind]; ok {
		return code
	}
	return string(e.Kind)
}

// Public reports whether the kind is one of the six taxonomy members
// allowed to cross the component boundary.
func (e *Error) Public() bool {
	return e.Kind != KindMalformed
}

// Publish maps the internal malformed condition to chain_invalid so
// external callers only ever see the six taxonomy members.
func (e *Error) Publish() *Error {
	if e.Kind != KindMalformed {
		return e
	}
	return &Error{
		Kind:      KindChainInvalid,
		MandateID: e.MandateID,
		Rule:      e.Rule,
		Message:   e.Message,
	}
}

func newError(kind ErrorKind, mandateID, rule, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		MandateID: mandateID,
		Rule:      rule,
		Message:   fmt.Sprintf(format, args...),
	}
}

func ErrChainInvalid(mandateID, rule, format string, args ...any) *Error {
	return newError(KindChainInvalid, mandateID, rule, format, args...)
}

func ErrSignatureInvalid(mandateID, rule, format string, args ...any) *Error {
	return newError(KindSignatureInvalid, mandateID, rule, format, args...)
}

func ErrExpired(mandateID, format string, args ...any) *Error {
	return newError(KindExpired, mandateID, "expiration", format, args...)
}

func ErrConstraintsViolated(mandateID, rule, format string, args ...any) *Error {
	return newError(KindConstraintsViolated, mandateID, rule, format, args...)
}

func ErrCredentialsUnavailable(format string, args ...any) *Error {
	return newError(KindCredentialsUnavailable, "", "credential_lookup", format, args...)
}

func ErrPaymentDeclined(reason string) *Error {
	return newError(KindPaymentDeclined, "", "authorization", "%s", reason)
}

func errMalformed(mandateID, rule, format string, args ...any) *Error {
	return newError(KindMalformed, mandateID, rule, format, args...)
}
