package subscribers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/listkeeper/internal/dbx"
	"github.com/dmitrijs2005/listkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, sub *models.Subscriber) error {

	metadata, err := json.Marshal(sub.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query :=
		`INSERT INTO subscribers
		 (id, connection_id, external_id, email_encrypted, email_masked, status,
		  first_name, last_name, subscribed_at, unsubscribed_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (connection_id, external_id) DO UPDATE SET
		   email_encrypted = EXCLUDED.email_encrypted,
		   email_masked = EXCLUDED.email_masked,
		   status = EXCLUDED.status,
		   first_name = EXCLUDED.first_name,
		   last_name = EXCLUDED.last_name,
		   subscribed_at = EXCLUDED.subscribed_at,
		   unsubscribed_at = EXCLUDED.unsubscribed_at,
		   metadata = EXCLUDED.metadata,
		   updated_at = now();
		 `

	_, err = r.db.ExecContext(ctx, query,
		sub.ID, sub.ConnectionID, sub.ExternalID, sub.EmailEncrypted, sub.EmailMasked, sub.Status,
		sub.FirstName, sub.LastName, sub.SubscribedAt, sub.UnsubscribedAt, metadata,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CountByConnection(ctx context.Context, connectionID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscribers WHERE connection_id = $1`, connectionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) ListByConnection(ctx context.Context, connectionID string, limit, offset int) ([]*models.Subscriber, error) {
	query :=
		`SELECT id, connection_id, external_id, email_encrypted, email_masked, status,
		        first_name, last_name, subscribed_at, unsubscribed_at, metadata, created_at, updated_at
		 FROM subscribers
		 WHERE connection_id = $1
		 ORDER BY created_at, id
		 LIMIT $2 OFFSET $3
		 `

	rows, err := r.db.QueryContext(ctx, query, connectionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Subscriber
	for rows.Next() {
		sub := &models.Subscriber{}
		var metadata []byte
		err := rows.Scan(
			&sub.ID, &sub.ConnectionID, &sub.ExternalID, &sub.EmailEncrypted, &sub.EmailMasked, &sub.Status,
			&sub.FirstName, &sub.LastName, &sub.SubscribedAt, &sub.UnsubscribedAt, &metadata, &sub.CreatedAt, &sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &sub.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
