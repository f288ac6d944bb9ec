// Package queue delivers sync-trigger jobs over RabbitMQ: a durable
// publisher (the external trigger surface) and the consumer running the
// fixed-size worker pool with bounded exponential retry.
package queue

import "time"

// syncQueueName is the durable queue carrying sync triggers.
const syncQueueName = "sync.trigger"

// SyncTriggerEvent is one sync-trigger job. The payload stays minimal: the
// orchestrator re-reads the connection row, so a stale payload cannot leak
// outdated credential state.
type SyncTriggerEvent struct {
	JobID        string    `json:"job_id"`
	ConnectionID string    `json:"connection_id"`
	RequestedAt  time.Time `json:"requested_at"`
}
