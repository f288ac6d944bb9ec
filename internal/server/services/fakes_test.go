package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrijs2005/listkeeper/internal/common"
	"github.com/dmitrijs2005/listkeeper/internal/dbx"
	"github.com/dmitrijs2005/listkeeper/internal/logging"
	"github.com/dmitrijs2005/listkeeper/internal/server/models"
	"github.com/dmitrijs2005/listkeeper/internal/server/providers"
	"github.com/dmitrijs2005/listkeeper/internal/server/repositories/connections"
	"github.com/dmitrijs2005/listkeeper/internal/server/repositories/subscribers"
	"github.com/dmitrijs2005/listkeeper/internal/server/repositories/synchistory"
)

// memState is a shared in-memory database honoring the same invariants the
// PostgreSQL repositories enforce: the sync_status compare-and-swap, the
// (connection_id, external_id) upsert and the finalize-once guard.
type memState struct {
	mu      sync.Mutex
	conns   map[string]*models.Connection
	subs    map[string]*models.Subscriber
	history []*models.SyncHistory
}

func newMemState() *memState {
	return &memState{
		conns: map[string]*models.Connection{},
		subs:  map[string]*models.Subscriber{},
	}
}

func (s *memState) addConnection(conn *models.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *conn
	s.conns[conn.ID] = &c
}

func (s *memState) connection(id string) *models.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *s.conns[id]
	return &c
}

func (s *memState) subscriberRows() []*models.Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]*models.Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		r := *sub
		rows = append(rows, &r)
	}
	return rows
}

func (s *memState) historyRows() []*models.SyncHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]*models.SyncHistory, 0, len(s.history))
	for _, h := range s.history {
		r := *h
		rows = append(rows, &r)
	}
	return rows
}

type memConnectionsRepo struct{ s *memState }

func (r *memConnectionsRepo) Create(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now
	c := *conn
	r.s.conns[conn.ID] = &c
	return conn, nil
}

func (r *memConnectionsRepo) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conns[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memConnectionsRepo) ListByUser(ctx context.Context, userID string) ([]*models.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*models.Connection
	for _, c := range r.s.conns {
		if c.UserID == userID {
			cp := *c
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (r *memConnectionsRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.conns[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.conns, id)
	return nil
}

func (r *memConnectionsRepo) TryBeginSync(ctx context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conns[id]
	if !ok {
		return false, nil
	}
	if c.SyncStatus == models.SyncSyncing {
		return false, nil
	}
	c.SyncStatus = models.SyncSyncing
	return true, nil
}

func (r *memConnectionsRepo) MarkSynced(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.s.conns[id]
	c.SyncStatus = models.SyncSynced
	c.Status = models.ConnectionActive
	c.LastSyncedAt = &at
	return nil
}

func (r *memConnectionsRepo) MarkSyncFailed(ctx context.Context, id string, status models.ConnectionStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.s.conns[id]
	c.SyncStatus = models.SyncError
	c.Status = status
	return nil
}

func (r *memConnectionsRepo) UpdateTokens(ctx context.Context, id string, accessTokenEncrypted string, refreshTokenEncrypted *string, expiresAt time.Time, validatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conns[id]
	if !ok {
		return common.ErrorNotFound
	}
	c.AccessTokenEncrypted = &accessTokenEncrypted
	if refreshTokenEncrypted != nil {
		c.RefreshTokenEncrypted = refreshTokenEncrypted
	}
	c.TokenExpiresAt = &expiresAt
	c.LastValidatedAt = &validatedAt
	return nil
}

type memSubscribersRepo struct{ s *memState }

func (r *memSubscribersRepo) Upsert(ctx context.Context, sub *models.Subscriber) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := sub.ConnectionID + "/" + sub.ExternalID
	cp := *sub
	if existing, ok := r.s.subs[key]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
	}
	r.s.subs[key] = &cp
	return nil
}

func (r *memSubscribersRepo) CountByConnection(ctx context.Context, connectionID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, sub := range r.s.subs {
		if sub.ConnectionID == connectionID {
			count++
		}
	}
	return count, nil
}

func (r *memSubscribersRepo) ListByConnection(ctx context.Context, connectionID string, limit, offset int) ([]*models.Subscriber, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*models.Subscriber
	for _, sub := range r.s.subs {
		if sub.ConnectionID == connectionID {
			cp := *sub
			result = append(result, &cp)
		}
	}
	return result, nil
}

type memHistoryRepo struct{ s *memState }

func (r *memHistoryRepo) Create(ctx context.Context, h *models.SyncHistory) (*models.SyncHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *h
	r.s.history = append(r.s.history, &cp)
	return h, nil
}

func (r *memHistoryRepo) FindOpenByConnection(ctx context.Context, connectionID string) (*models.SyncHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.history) - 1; i >= 0; i-- {
		h := r.s.history[i]
		if h.ConnectionID == connectionID && h.CompletedAt == nil {
			cp := *h
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memHistoryRepo) finalize(id string, status models.SyncOutcome, errorMessage *string, subscriberCount *int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, h := range r.s.history {
		if h.ID == id {
			if h.CompletedAt != nil {
				return common.ErrAlreadyFinal
			}
			now := time.Now()
			h.Status = status
			h.CompletedAt = &now
			h.ErrorMessage = errorMessage
			h.SubscriberCount = subscriberCount
			return nil
		}
	}
	return common.ErrorNotFound
}

func (r *memHistoryRepo) FinalizeSuccess(ctx context.Context, id string, subscriberCount int) error {
	return r.finalize(id, models.SyncOutcomeSuccess, nil, &subscriberCount)
}

func (r *memHistoryRepo) FinalizeFailure(ctx context.Context, id string, errorMessage string) error {
	return r.finalize(id, models.SyncOutcomeFailed, &errorMessage, nil)
}

func (r *memHistoryRepo) ListRecent(ctx context.Context, connectionID string, limit int) ([]*models.SyncHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*models.SyncHistory
	for i := len(r.s.history) - 1; i >= 0 && len(result) < limit; i-- {
		if r.s.history[i].ConnectionID == connectionID {
			cp := *r.s.history[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

// memRepoManager satisfies repomanager.RepositoryManager over memState.
type memRepoManager struct{ s *memState }

func (m *memRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *memRepoManager) Connections(db dbx.DBTX) connections.Repository {
	return &memConnectionsRepo{s: m.s}
}
func (m *memRepoManager) Subscribers(db dbx.DBTX) subscribers.Repository {
	return &memSubscribersRepo{s: m.s}
}
func (m *memRepoManager) SyncHistory(db dbx.DBTX) synchistory.Repository {
	return &memHistoryRepo{s: m.s}
}

// fakeConnector is a scriptable providers.Connector.
type fakeConnector struct {
	mu            sync.Mutex
	validateCalls []string
	validateOK    bool
	validateErr   error

	fetchCalls   int
	fetchSecrets []string
	fetch        func(call int, listID string) ([]providers.RawSubscriber, error)
}

func (f *fakeConnector) ValidateCredential(ctx context.Context, secret, listID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validateCalls = append(f.validateCalls, listID)
	return f.validateOK, f.validateErr
}

func (f *fakeConnector) FetchLists(ctx context.Context, secret string) ([]providers.List, error) {
	return nil, nil
}

func (f *fakeConnector) FetchSubscribers(ctx context.Context, secret, listID string) ([]providers.RawSubscriber, error) {
	f.mu.Lock()
	f.fetchCalls++
	call := f.fetchCalls
	f.fetchSecrets = append(f.fetchSecrets, secret)
	f.mu.Unlock()
	return f.fetch(call, listID)
}

func (f *fakeConnector) GetSubscriberCount(ctx context.Context, secret, listID string) (int, error) {
	return 0, nil
}

type fakeRegistry struct{ connector providers.Connector }

func (f *fakeRegistry) Get(p models.ProviderType) (providers.Connector, error) {
	return f.connector, nil
}

type fakeRefresher struct {
	token string
	err   error
	calls int
}

func (f *fakeRefresher) EnsureFreshAccessToken(ctx context.Context, conn *models.Connection) (string, error) {
	f.calls++
	return f.token, f.err
}

type fakeArchiver struct {
	calls int
	last  []*models.Subscriber
	err   error
}

func (f *fakeArchiver) Archive(ctx context.Context, connectionID string, subs []*models.Subscriber) (string, error) {
	f.calls++
	f.last = subs
	if f.err != nil {
		return "", f.err
	}
	return "connections/" + connectionID + "/snap.json", nil
}

type fakeCounts struct {
	set    map[string]int
	getN   int
	getOK  bool
	getErr error
	setErr error
}

func (f *fakeCounts) Set(ctx context.Context, connectionID string, count int) error {
	if f.set == nil {
		f.set = map[string]int{}
	}
	f.set[connectionID] = count
	return f.setErr
}

func (f *fakeCounts) Get(ctx context.Context, connectionID string) (int, bool, error) {
	return f.getN, f.getOK, f.getErr
}

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}
