package synchistory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/listkeeper/internal/common"
	"github.com/dmitrijs2005/listkeeper/internal/dbx"
	"github.com/dmitrijs2005/listkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, h *models.SyncHistory) (*models.SyncHistory, error) {

	query :=
		`INSERT INTO sync_history (id, connection_id, list_id, status, started_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		h.ID, h.ConnectionID, h.ListID, h.Status, h.StartedAt).Scan(&h.ID)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return h, nil
}

func (r *PostgresRepository) FindOpenByConnection(ctx context.Context, connectionID string) (*models.SyncHistory, error) {
	query :=
		`SELECT id, connection_id, list_id, status, started_at, completed_at, error_message, subscriber_count
		 FROM sync_history
		 WHERE connection_id = $1 AND completed_at IS NULL
		 ORDER BY started_at DESC
		 LIMIT 1
		 `

	h := &models.SyncHistory{}
	err := r.db.QueryRowContext(ctx, query, connectionID).Scan(
		&h.ID, &h.ConnectionID, &h.ListID, &h.Status, &h.StartedAt,
		&h.CompletedAt, &h.ErrorMessage, &h.SubscriberCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return h, nil
}

// finalize writes the terminal state. The completed_at IS NULL guard makes a
// second terminal write a no-op at the SQL level; it surfaces as
// common.ErrAlreadyFinal.
func (r *PostgresRepository) finalize(ctx context.Context, id string, status models.SyncOutcome, errorMessage *string, subscriberCount *int) error {
	query :=
		`UPDATE sync_history
		 SET status = $1, completed_at = now(), error_message = $2, subscriber_count = $3
		 WHERE id = $4 AND completed_at IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query, status, errorMessage, subscriberCount, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrAlreadyFinal
	}
	return nil
}

func (r *PostgresRepository) FinalizeSuccess(ctx context.Context, id string, subscriberCount int) error {
	return r.finalize(ctx, id, models.SyncOutcomeSuccess, nil, &subscriberCount)
}

func (r *PostgresRepository) FinalizeFailure(ctx context.Context, id string, errorMessage string) error {
	return r.finalize(ctx, id, models.SyncOutcomeFailed, &errorMessage, nil)
}

func (r *PostgresRepository) ListRecent(ctx context.Context, connectionID string, limit int) ([]*models.SyncHistory, error) {
	query :=
		`SELECT id, connection_id, list_id, status, started_at, completed_at, error_message, subscriber_count
		 FROM sync_history
		 WHERE connection_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2
		 `

	rows, err := r.db.QueryContext(ctx, query, connectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncHistory
	for rows.Next() {
		h := &models.SyncHistory{}
		err := rows.Scan(
			&h.ID, &h.ConnectionID, &h.ListID, &h.Status, &h.StartedAt,
			&h.CompletedAt, &h.ErrorMessage, &h.SubscriberCount,
		)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
