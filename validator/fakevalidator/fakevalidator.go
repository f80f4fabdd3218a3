// Package fakevalidator provides a trivial pass-through Signer/Validator
// pair for tests and for local/dev deployments that run without a real
// key-management backend.
package fakevalidator

// AcceptAll signs by returning the payload unchanged and validates by
// always succeeding. It exists purely so the rest of the core can be
// exercised without a real signing/verification collaborator wired in.
type AcceptAll struct{}

// Sign implements validator.Signer.
func (AcceptAll) Sign(name string, payload []byte) ([]byte, error) {
	return payload, nil
}

// Validate implements validator.Validator.
func (AcceptAll) Validate(name string, data []byte) error {
	return nil
}
