package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/listkeeper/internal/common"
	"github.com/dmitrijs2005/listkeeper/internal/cryptox"
	"github.com/dmitrijs2005/listkeeper/internal/logging"
	"github.com/dmitrijs2005/listkeeper/internal/server/models"
	"github.com/dmitrijs2005/listkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// CountsReader is the read side of the subscriber-count cache. Optional.
type CountsReader interface {
	Get(ctx context.Context, connectionID string) (int, bool, error)
}

// CreateConnectionParams carries the plaintext credential material for a new
// ESP linkage. Secrets are vault-sealed before anything is persisted.
type CreateConnectionParams struct {
	UserID   string
	Provider models.ProviderType

	AuthMethod     models.AuthMethod
	APIKey         string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time

	ListIDs []string
}

// ConnectionService owns the connection lifecycle outside of syncing:
// credential validation on creation, the query surface consumed by the
// dashboard/export collaborators, and removal.
type ConnectionService struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	vault    *cryptox.Vault
	registry ConnectorRegistry
	counts   CountsReader
	logger   logging.Logger
}

func NewConnectionService(db *sql.DB, repos repomanager.RepositoryManager, vault *cryptox.Vault, registry ConnectorRegistry, counts CountsReader, logger logging.Logger) *ConnectionService {
	return &ConnectionService{
		db:       db,
		repos:    repos,
		vault:    vault,
		registry: registry,
		counts:   counts,
		logger:   logger.With("module", "connections"),
	}
}

// CreateConnection validates the supplied credential against the provider
// (including visibility of every requested list), seals the secrets and
// persists the linkage. Mixed api-key/oauth material is rejected up front;
// the schema alone does not enforce the exclusivity invariant.
func (s *ConnectionService) CreateConnection(ctx context.Context, p CreateConnectionParams) (*models.Connection, error) {
	if err := validateCredentialShape(p); err != nil {
		return nil, err
	}

	connector, err := s.registry.Get(p.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	secret := p.APIKey
	if p.AuthMethod == models.AuthOAuth {
		secret = p.AccessToken
	}

	listIDs := p.ListIDs
	if len(listIDs) == 0 {
		listIDs = []string{""}
	}
	for _, listID := range listIDs {
		ok, err := connector.ValidateCredential(ctx, secret, listID)
		if err != nil {
			return nil, fmt.Errorf("validate credential: %w", err)
		}
		if !ok {
			return nil, common.ErrCredentialInvalid
		}
	}

	now := time.Now()
	conn := &models.Connection{
		ID:              uuid.NewString(),
		UserID:          p.UserID,
		Provider:        p.Provider,
		AuthMethod:      p.AuthMethod,
		ListIDs:         p.ListIDs,
		Status:          models.ConnectionActive,
		SyncStatus:      models.SyncIdle,
		LastValidatedAt: &now,
		TokenExpiresAt:  p.TokenExpiresAt,
	}

	if p.AuthMethod == models.AuthAPIKey {
		enc, err := s.vault.Encrypt(p.APIKey)
		if err != nil {
			return nil, fmt.Errorf("seal api key: %w", err)
		}
		conn.APIKeyEncrypted = &enc
	} else {
		access, err := s.vault.Encrypt(p.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("seal access token: %w", err)
		}
		refresh, err := s.vault.Encrypt(p.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("seal refresh token: %w", err)
		}
		conn.AccessTokenEncrypted = &access
		conn.RefreshTokenEncrypted = &refresh
	}

	conn, err = s.repos.Connections(s.db).Create(ctx, conn)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "connection created",
		"connection_id", conn.ID, "provider", conn.Provider, "auth_method", conn.AuthMethod)
	return conn, nil
}

func validateCredentialShape(p CreateConnectionParams) error {
	hasKey := p.APIKey != ""
	hasTokens := p.AccessToken != "" || p.RefreshToken != ""

	if hasKey && hasTokens {
		return common.ErrMixedCredential
	}

	switch p.AuthMethod {
	case models.AuthAPIKey:
		if !hasKey {
			return fmt.Errorf("%w: api key required", common.ErrCredentialInvalid)
		}
	case models.AuthOAuth:
		if p.AccessToken == "" || p.RefreshToken == "" {
			return fmt.Errorf("%w: access and refresh tokens required", common.ErrCredentialInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown auth method %q", common.ErrorInternal, p.AuthMethod)
	}
	return nil
}

// GetConnection is the query surface for one connection row.
func (s *ConnectionService) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	return s.repos.Connections(s.db).GetByID(ctx, id)
}

// ListConnections returns all connections owned by a user.
func (s *ConnectionService) ListConnections(ctx context.Context, userID string) ([]*models.Connection, error) {
	return s.repos.Connections(s.db).ListByUser(ctx, userID)
}

// DeleteConnection removes the linkage; subscriber and history rows cascade.
func (s *ConnectionService) DeleteConnection(ctx context.Context, id string) error {
	if err := s.repos.Connections(s.db).Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "connection deleted", "connection_id", id)
	return nil
}

// GetSyncHistory returns the most recent sync attempts, newest first.
func (s *ConnectionService) GetSyncHistory(ctx context.Context, connectionID string, limit int) ([]*models.SyncHistory, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repos.SyncHistory(s.db).ListRecent(ctx, connectionID, limit)
}

// ListSubscribers is the read path used by the export collaborator.
func (s *ConnectionService) ListSubscribers(ctx context.Context, connectionID string, limit, offset int) ([]*models.Subscriber, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repos.Subscribers(s.db).ListByConnection(ctx, connectionID, limit, offset)
}

// SubscriberCount serves the dashboard statistic, preferring the cache
// written after each successful sync and falling back to a table count.
func (s *ConnectionService) SubscriberCount(ctx context.Context, connectionID string) (int, error) {
	if s.counts != nil {
		if n, ok, err := s.counts.Get(ctx, connectionID); err == nil && ok {
			return n, nil
		}
	}
	return s.repos.Subscribers(s.db).CountByConnection(ctx, connectionID)
}
