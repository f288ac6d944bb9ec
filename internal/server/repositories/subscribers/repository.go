// Package subscribers persists canonical subscriber rows. A sync only ever
// upserts by (connection_id, external_id); rows are removed solely by the
// ON DELETE CASCADE when a connection is deleted.
package subscribers

import (
	"context"

	"github.com/dmitrijs2005/listkeeper/internal/server/models"
)

type Repository interface {
	// Upsert inserts the row or, on (connection_id, external_id) conflict,
	// updates its mutable fields.
	Upsert(ctx context.Context, sub *models.Subscriber) error

	CountByConnection(ctx context.Context, connectionID string) (int, error)

	// ListByConnection is the read path for the export/dashboard collaborators.
	ListByConnection(ctx context.Context, connectionID string, limit, offset int) ([]*models.Subscriber, error)
}
