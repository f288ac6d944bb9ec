package models

import "time"

// SubscriberStatus is the canonical five-value status produced by the mapper.
type SubscriberStatus string

const (
	SubscriberActive       SubscriberStatus = "active"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
	SubscriberBounced      SubscriberStatus = "bounced"
	SubscriberComplained   SubscriberStatus = "complained"
	SubscriberPending      SubscriberStatus = "pending"
)

// Subscriber is one canonical subscriber row, unique per
// (connection id, external id). Rows are only ever upserted by a sync,
// never deleted; deletion happens solely through connection removal.
type Subscriber struct {
	ID           string
	ConnectionID string

	// ExternalID is the provider's own subscriber identifier.
	ExternalID string

	// EmailEncrypted is the vault-sealed address; EmailMasked is the
	// display-safe derivative used in logs and UI.
	EmailEncrypted string
	EmailMasked    string

	Status    SubscriberStatus
	FirstName string
	LastName  string

	SubscribedAt   *time.Time
	UnsubscribedAt *time.Time

	// Metadata carries free-form provider fields (tags, custom fields).
	Metadata map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}
