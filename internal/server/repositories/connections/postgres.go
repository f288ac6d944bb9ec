package connections

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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

const connectionColumns = `id, user_id, provider, auth_method,
		api_key_encrypted, access_token_encrypted, refresh_token_encrypted, token_expires_at,
		list_ids, status, sync_status, last_validated_at, last_synced_at, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, conn *models.Connection) (*models.Connection, error) {

	listIDs, err := json.Marshal(conn.ListIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal list ids: %w", err)
	}

	query :=
		`INSERT INTO connections
		 (id, user_id, provider, auth_method,
		  api_key_encrypted, access_token_encrypted, refresh_token_encrypted, token_expires_at,
		  list_ids, status, sync_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at, updated_at
		 `

	err = r.db.QueryRowContext(ctx, query,
		conn.ID, conn.UserID, conn.Provider, conn.AuthMethod,
		conn.APIKeyEncrypted, conn.AccessTokenEncrypted, conn.RefreshTokenEncrypted, conn.TokenExpiresAt,
		listIDs, conn.Status, conn.SyncStatus,
	).Scan(&conn.ID, &conn.CreatedAt, &conn.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return conn, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`

	conn, err := scanConnection(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return conn, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// TryBeginSync is the cross-process mutex: a single conditional UPDATE closes
// the race where two workers both observe "not syncing" and both start.
func (r *PostgresRepository) TryBeginSync(ctx context.Context, id string) (bool, error) {
	query :=
		`UPDATE connections SET sync_status = $1, updated_at = now()
		 WHERE id = $2 AND sync_status <> $1
		 `

	res, err := r.db.ExecContext(ctx, query, models.SyncSyncing, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected == 1, nil
}

func (r *PostgresRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	query :=
		`UPDATE connections
		 SET sync_status = $1, status = $2, last_synced_at = $3, updated_at = now()
		 WHERE id = $4
		 `

	_, err := r.db.ExecContext(ctx, query, models.SyncSynced, models.ConnectionActive, at, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkSyncFailed(ctx context.Context, id string, status models.ConnectionStatus) error {
	query :=
		`UPDATE connections
		 SET sync_status = $1, status = $2, updated_at = now()
		 WHERE id = $3
		 `

	_, err := r.db.ExecContext(ctx, query, models.SyncError, status, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateTokens(ctx context.Context, id string, accessTokenEncrypted string, refreshTokenEncrypted *string, expiresAt time.Time, validatedAt time.Time) error {
	query :=
		`UPDATE connections
		 SET access_token_encrypted = $1,
		     refresh_token_encrypted = COALESCE($2, refresh_token_encrypted),
		     token_expires_at = $3,
		     last_validated_at = $4,
		     updated_at = now()
		 WHERE id = $5
		 `

	res, err := r.db.ExecContext(ctx, query, accessTokenEncrypted, refreshTokenEncrypted, expiresAt, validatedAt, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*models.Connection, error) {
	conn := &models.Connection{}

	var listIDs []byte
	err := row.Scan(
		&conn.ID, &conn.UserID, &conn.Provider, &conn.AuthMethod,
		&conn.APIKeyEncrypted, &conn.AccessTokenEncrypted, &conn.RefreshTokenEncrypted, &conn.TokenExpiresAt,
		&listIDs, &conn.Status, &conn.SyncStatus,
		&conn.LastValidatedAt, &conn.LastSyncedAt, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(listIDs) > 0 {
		if err := json.Unmarshal(listIDs, &conn.ListIDs); err != nil {
			return nil, fmt.Errorf("unmarshal list ids: %w", err)
		}
	}
	return conn, nil
}
