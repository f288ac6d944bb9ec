// Package synchistory owns the sync-attempt audit trail and its
// single-terminal-write invariant: each row gets one 'started' write and at
// most one finalize (success or failed).
package synchistory

import (
	"context"

	"github.com/dmitrijs2005/listkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, h *models.SyncHistory) (*models.SyncHistory, error)

	// FindOpenByConnection returns the most recent non-finalized row for a
	// connection, or common.ErrorNotFound. Used by retry attempts to reuse
	// the lifecycle row created by attempt one.
	FindOpenByConnection(ctx context.Context, connectionID string) (*models.SyncHistory, error)

	// FinalizeSuccess/FinalizeFailure write the terminal state. They refuse
	// a second terminal write with common.ErrAlreadyFinal.
	FinalizeSuccess(ctx context.Context, id string, subscriberCount int) error
	FinalizeFailure(ctx context.Context, id string, errorMessage string) error

	// ListRecent returns the most recent attempts, newest first.
	ListRecent(ctx context.Context, connectionID string, limit int) ([]*models.SyncHistory, error)
}
