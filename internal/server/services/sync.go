// Package services contains the application services of the sync core: the
// sync orchestrator (state machine driving one sync attempt end-to-end) and
// the connection service (credential validation and the query surface).
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/listkeeper/internal/common"
	"github.com/dmitrijs2005/listkeeper/internal/cryptox"
	"github.com/dmitrijs2005/listkeeper/internal/logging"
	"github.com/dmitrijs2005/listkeeper/internal/server/models"
	"github.com/dmitrijs2005/listkeeper/internal/server/providers"
	"github.com/dmitrijs2005/listkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// TokenRefresher renews OAuth access tokens; implemented by oauth.Refresher.
type TokenRefresher interface {
	EnsureFreshAccessToken(ctx context.Context, conn *models.Connection) (string, error)
}

// ConnectorRegistry resolves the connector for a provider type.
type ConnectorRegistry interface {
	Get(p models.ProviderType) (providers.Connector, error)
}

// SnapshotArchiver persists a durable copy of a successful sync's canonical
// rows; implemented by snapshot.S3Archiver. Optional.
type SnapshotArchiver interface {
	Archive(ctx context.Context, connectionID string, subs []*models.Subscriber) (string, error)
}

// CountsCache records per-connection subscriber totals for the dashboard
// read path; implemented by cache.Counts. Optional.
type CountsCache interface {
	Set(ctx context.Context, connectionID string, count int) error
}

// SyncService drives one sync attempt end-to-end:
//
//	idle/synced/error --(trigger)--> syncing --(success)--> synced
//	                                    \--(failure, retries exhausted)--> error
//
// The transition into syncing is a conditional update on the persisted
// sync_status column, so at most one attempt runs per connection even across
// worker processes.
type SyncService struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	vault     *cryptox.Vault
	registry  ConnectorRegistry
	refresher TokenRefresher
	mapper    *providers.Mapper
	snapshots SnapshotArchiver
	counts    CountsCache
	logger    logging.Logger
}

func NewSyncService(
	db *sql.DB,
	repos repomanager.RepositoryManager,
	vault *cryptox.Vault,
	registry ConnectorRegistry,
	refresher TokenRefresher,
	snapshots SnapshotArchiver,
	counts CountsCache,
	logger logging.Logger,
) *SyncService {
	return &SyncService{
		db:        db,
		repos:     repos,
		vault:     vault,
		registry:  registry,
		refresher: refresher,
		mapper:    providers.NewMapper(vault),
		snapshots: snapshots,
		counts:    counts,
		logger:    logger.With("module", "sync"),
	}
}

// RunAttempt executes one sync attempt for a connection. The queue layer
// passes the current attempt number and the attempt ceiling explicitly; the
// terminal 'failed' history write happens only on the final permitted
// attempt (or on a non-retryable error).
//
// A trigger that races an in-flight sync is a no-op, not an error.
func (s *SyncService) RunAttempt(ctx context.Context, connectionID string, attempt, maxAttempts int) error {
	log := s.logger.With("connection_id", connectionID, "attempt", attempt)

	connRepo := s.repos.Connections(s.db)
	histRepo := s.repos.SyncHistory(s.db)

	conn, err := connRepo.GetByID(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("load connection: %w", err)
	}

	var hist *models.SyncHistory
	if attempt <= 1 {
		acquired, err := connRepo.TryBeginSync(ctx, connectionID)
		if err != nil {
			return fmt.Errorf("begin sync: %w", err)
		}
		if !acquired {
			log.Info(ctx, "sync already in progress, skipping trigger")
			return nil
		}
		hist, err = s.openHistory(ctx, conn)
		if err != nil {
			return err
		}
	} else {
		// Retry of an existing lifecycle: the slot must still be ours.
		if conn.SyncStatus != models.SyncSyncing {
			log.Warn(ctx, "stale retry, connection no longer syncing", "sync_status", conn.SyncStatus)
			return nil
		}
		hist, err = histRepo.FindOpenByConnection(ctx, connectionID)
		if errors.Is(err, common.ErrorNotFound) {
			hist, err = s.openHistory(ctx, conn)
		}
		if err != nil {
			return fmt.Errorf("resolve open history row: %w", err)
		}
	}

	total, syncErr := s.runSync(ctx, conn)

	if syncErr == nil {
		if err := histRepo.FinalizeSuccess(ctx, hist.ID, total); err != nil && !errors.Is(err, common.ErrAlreadyFinal) {
			return fmt.Errorf("finalize history: %w", err)
		}
		if err := connRepo.MarkSynced(ctx, connectionID, time.Now()); err != nil {
			return fmt.Errorf("mark synced: %w", err)
		}
		log.Info(ctx, "sync completed", "subscribers", total)
		return nil
	}

	isFinalAttempt := attempt >= maxAttempts
	if common.IsRetryable(syncErr) && !isFinalAttempt {
		// Leave the history row open: the audit trail gets exactly one
		// terminal outcome per attempt lifecycle.
		log.Warn(ctx, "sync attempt failed, leaving for retry", "error", syncErr.Error())
		return syncErr
	}

	status := conn.Status
	switch {
	case errors.Is(syncErr, common.ErrCredentialInvalid), errors.Is(syncErr, common.ErrDecryption):
		status = models.ConnectionInvalid
	case errors.Is(syncErr, common.ErrRemoteNotFound):
		status = models.ConnectionError
	}

	if err := histRepo.FinalizeFailure(ctx, hist.ID, syncErr.Error()); err != nil && !errors.Is(err, common.ErrAlreadyFinal) {
		return fmt.Errorf("finalize history: %w", err)
	}
	if err := connRepo.MarkSyncFailed(ctx, connectionID, status); err != nil {
		return fmt.Errorf("mark sync failed: %w", err)
	}
	log.Error(ctx, "sync failed", "error", syncErr.Error(), "connection_status", status)
	return syncErr
}

func (s *SyncService) openHistory(ctx context.Context, conn *models.Connection) (*models.SyncHistory, error) {
	h := &models.SyncHistory{
		ID:           uuid.NewString(),
		ConnectionID: conn.ID,
		Status:       models.SyncOutcomeStarted,
		StartedAt:    time.Now(),
	}
	if len(conn.ListIDs) == 1 {
		h.ListID = &conn.ListIDs[0]
	}
	h, err := s.repos.SyncHistory(s.db).Create(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("create history row: %w", err)
	}
	return h, nil
}

// runSync fetches, maps and upserts every configured list. It returns the
// number of subscribers durably processed; on error the count reflects what
// was upserted before the failure (at-least-once, non-atomic).
func (s *SyncService) runSync(ctx context.Context, conn *models.Connection) (int, error) {
	connector, err := s.registry.Get(conn.Provider)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	secret, err := s.resolveSecret(ctx, conn)
	if err != nil {
		return 0, err
	}

	subRepo := s.repos.Subscribers(s.db)

	total := 0
	var processed []*models.Subscriber
	for _, listID := range conn.ListIDs {
		raws, err := connector.FetchSubscribers(ctx, secret, listID)
		if err != nil {
			return total, fmt.Errorf("fetch list %s: %w", listID, err)
		}

		for _, raw := range raws {
			sub, err := s.mapper.Map(conn.ID, raw)
			if err != nil {
				return total, err
			}
			if err := subRepo.Upsert(ctx, sub); err != nil {
				return total, fmt.Errorf("upsert subscriber %s: %w", sub.EmailMasked, err)
			}
			total++
			processed = append(processed, sub)
		}
	}

	// Post-sync extras are best-effort: a cache or archive hiccup must not
	// fail an otherwise successful sync.
	if s.counts != nil {
		if err := s.counts.Set(ctx, conn.ID, total); err != nil {
			s.logger.Warn(ctx, "count cache update failed", "connection_id", conn.ID, "error", err.Error())
		}
	}
	if s.snapshots != nil {
		if key, err := s.snapshots.Archive(ctx, conn.ID, processed); err != nil {
			s.logger.Warn(ctx, "snapshot archive failed", "connection_id", conn.ID, "error", err.Error())
		} else {
			s.logger.Info(ctx, "snapshot archived", "connection_id", conn.ID, "key", key)
		}
	}

	return total, nil
}

// resolveSecret produces the plaintext credential for one connector call:
// the decrypted API key, or a fresh OAuth access token.
func (s *SyncService) resolveSecret(ctx context.Context, conn *models.Connection) (string, error) {
	switch conn.AuthMethod {
	case models.AuthAPIKey:
		if conn.APIKeyEncrypted == nil {
			return "", fmt.Errorf("%w: connection has no api key", common.ErrCredentialInvalid)
		}
		return s.vault.Decrypt(*conn.APIKeyEncrypted)
	case models.AuthOAuth:
		return s.refresher.EnsureFreshAccessToken(ctx, conn)
	default:
		return "", fmt.Errorf("%w: unknown auth method %q", common.ErrorInternal, conn.AuthMethod)
	}
}
