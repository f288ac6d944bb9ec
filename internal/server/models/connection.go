// Package models defines the persistent row types of the sync core:
// Connection (one ESP account linkage), Subscriber (one canonical subscriber
// row) and SyncHistory (one sync-attempt audit row).
package models

import "time"

// ProviderType identifies which ESP a connection talks to.
type ProviderType string

const (
	ProviderMailchimp  ProviderType = "mailchimp"
	ProviderConvertKit ProviderType = "convertkit"
	ProviderMailerLite ProviderType = "mailerlite"
)

// AuthMethod selects which credential columns of a Connection are meaningful.
type AuthMethod string

const (
	AuthAPIKey AuthMethod = "api_key"
	AuthOAuth  AuthMethod = "oauth"
)

// ConnectionStatus reflects whether the stored credential is usable.
type ConnectionStatus string

const (
	ConnectionActive  ConnectionStatus = "active"
	ConnectionInvalid ConnectionStatus = "invalid"
	ConnectionError   ConnectionStatus = "error"
)

// SyncStatus is the per-connection sync state machine column. The
// idle/synced/error → syncing transition is performed as an atomic conditional
// update so at most one sync runs per connection across worker processes.
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// Connection is one ESP account linkage owned by a user.
//
// Exactly one of APIKeyEncrypted or the AccessTokenEncrypted/
// RefreshTokenEncrypted pair is meaningful, governed by AuthMethod; the
// service layer rejects mixed configurations before persisting.
type Connection struct {
	ID       string
	UserID   string
	Provider ProviderType

	AuthMethod            AuthMethod
	APIKeyEncrypted       *string
	AccessTokenEncrypted  *string
	RefreshTokenEncrypted *string
	TokenExpiresAt        *time.Time

	// ListIDs are the remote list/publication identifiers synced for this
	// connection.
	ListIDs []string

	Status     ConnectionStatus
	SyncStatus SyncStatus

	LastValidatedAt *time.Time
	LastSyncedAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
