// Package common defines shared constants and sentinel errors used across
// listkeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal      = errors.New("internal error")
	ErrSyncInProgress  = errors.New("sync already in progress")
	ErrAlreadyFinal    = errors.New("sync attempt already finalized")
	ErrMixedCredential = errors.New("connection carries both api key and oauth tokens")

	// Provider error taxonomy. Every connector normalizes its raw HTTP
	// responses into one of these; the orchestrator never sees status codes.
	ErrCredentialInvalid = errors.New("credential rejected by provider")
	ErrRateLimited       = errors.New("provider rate limit exceeded")
	ErrProviderServer    = errors.New("provider server error")
	ErrRemoteNotFound    = errors.New("remote resource not found")
	ErrNetwork           = errors.New("network error")

	// Vault errors (corrupted or tampered ciphertext).
	ErrDecryption = errors.New("decryption failed")
)

// IsRetryable reports whether err is one of the transient taxonomy errors a
// sync attempt may be retried after. Everything else is terminal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrProviderServer) ||
		errors.Is(err, ErrNetwork)
}
