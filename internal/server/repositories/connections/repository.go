// Package connections persists Connection rows, including the atomic
// compare-and-swap on sync_status that serializes sync attempts per
// connection across worker processes.
package connections

import (
	"context"
	"time"

	"github.com/dmitrijs2005/listkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, conn *models.Connection) (*models.Connection, error)
	GetByID(ctx context.Context, id string) (*models.Connection, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Connection, error)
	Delete(ctx context.Context, id string) error

	// TryBeginSync transitions sync_status to 'syncing' iff it is not
	// already 'syncing'. Returns false when another attempt holds the slot.
	TryBeginSync(ctx context.Context, id string) (bool, error)

	// MarkSynced records a fully successful sync.
	MarkSynced(ctx context.Context, id string, at time.Time) error

	// MarkSyncFailed records a terminally failed sync, setting sync_status
	// to 'error' and the connection status to the given value.
	MarkSyncFailed(ctx context.Context, id string, status models.ConnectionStatus) error

	// UpdateTokens persists a refreshed encrypted token pair and expiry.
	// A nil refreshTokenEncrypted leaves the stored refresh token unchanged.
	UpdateTokens(ctx context.Context, id string, accessTokenEncrypted string, refreshTokenEncrypted *string, expiresAt time.Time, validatedAt time.Time) error
}
