// Package providers contains the ESP connectors: one self-contained HTTP
// client per provider behind the flat Connector interface, a registry keyed
// by provider type, and the mapper that normalizes raw provider records into
// canonical subscriber rows.
//
// Connectors surface only the shared error taxonomy defined in
// internal/common (ErrCredentialInvalid, ErrRateLimited, ErrProviderServer,
// ErrRemoteNotFound, ErrNetwork); callers never see raw HTTP status codes.
package providers

import (
	"context"
	"time"
)

// List is a named subscriber grouping inside one ESP account.
type List struct {
	ID              string
	Name            string
	SubscriberCount int
}

// RawSubscriber is one provider record reduced to neutral flags. Each
// connector documents its own field-to-flag mapping; the mapper folds the
// flags into the canonical status by fixed priority.
type RawSubscriber struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string

	Unsubscribed bool
	Bounced      bool
	Complained   bool
	// Unverified marks double-opt-in records that never confirmed.
	Unverified bool

	SubscribedAt   *time.Time
	UnsubscribedAt *time.Time

	Metadata map[string]any
}

// Connector is the uniform capability set implemented once per provider.
// All calls are blocking network I/O bounded by the connector's HTTP client
// timeout.
type Connector interface {
	// ValidateCredential makes one cheap authenticated call. A rejected
	// credential is (false, nil), not an error. When listID is non-empty the
	// list must additionally be visible to the credential.
	ValidateCredential(ctx context.Context, secret, listID string) (bool, error)

	FetchLists(ctx context.Context, secret string) ([]List, error)

	// FetchSubscribers drains all pages before returning. A mid-pagination
	// failure aborts the whole call with an error; partial data is never
	// returned silently.
	FetchSubscribers(ctx context.Context, secret, listID string) ([]RawSubscriber, error)

	GetSubscriberCount(ctx context.Context, secret, listID string) (int, error)
}
