// Package validator declares the key-management capability Mnemosyne
// consumes: signing outbound data and verifying inbound data and events.
// Concrete signing/verification lives entirely outside this core (spec.md
// §1 names it as an external collaborator).
package validator

import "errors"

// ErrVerificationFailed is returned by Validator.Validate when a record or
// event fails signature or structural verification. Logged and discarded,
// never fatal (§7).
var ErrVerificationFailed = errors.New("validator: verification failed")

// Signer signs outbound payloads (records or events) before they are
// injected into the transport.
type Signer interface {
	Sign(name string, payload []byte) ([]byte, error)
}

// Validator verifies inbound payloads (records or events). name is the
// data unit's name (without the content digest); data is the wire bytes.
type Validator interface {
	Validate(name string, data []byte) error
}
