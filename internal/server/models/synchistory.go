package models

import "time"

// SyncOutcome is the lifecycle state of one sync-attempt audit row.
type SyncOutcome string

const (
	SyncOutcomeStarted SyncOutcome = "started"
	SyncOutcomeSuccess SyncOutcome = "success"
	SyncOutcomeFailed  SyncOutcome = "failed"
)

// SyncHistory describes one sync attempt lifecycle: created with
// SyncOutcomeStarted when the attempt begins, finalized exactly once to
// success or failed when the attempt succeeds or its retry budget runs out.
type SyncHistory struct {
	ID           string
	ConnectionID string
	ListID       *string

	Status      SyncOutcome
	StartedAt   time.Time
	CompletedAt *time.Time

	ErrorMessage    *string
	SubscriberCount *int
}
