package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/listkeeper/internal/common"
	"github.com/dmitrijs2005/listkeeper/internal/cryptox"
	"github.com/dmitrijs2005/listkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type connFixture struct {
	state     *memState
	vault     *cryptox.Vault
	connector *fakeConnector
	counts    *fakeCounts
	service   *ConnectionService
}

func newConnFixture(t *testing.T) *connFixture {
	t.Helper()
	vault, err := cryptox.NewVault("test-master-secret")
	require.NoError(t, err)

	state := newMemState()
	connector := &fakeConnector{validateOK: true}
	counts := &fakeCounts{}

	svc := NewConnectionService(nil, &memRepoManager{s: state}, vault,
		&fakeRegistry{connector: connector}, counts, discardLogger())

	return &connFixture{state: state, vault: vault, connector: connector, counts: counts, service: svc}
}

func TestCreateConnection_APIKey(t *testing.T) {
	f := newConnFixture(t)

	conn, err := f.service.CreateConnection(context.Background(), CreateConnectionParams{
		UserID:     "u1",
		Provider:   models.ProviderMailchimp,
		AuthMethod: models.AuthAPIKey,
		APIKey:     "key-us1",
		ListIDs:    []string{"l1", "l2"},
	})
	require.NoError(t, err)

	// every requested list was checked for visibility
	assert.Equal(t, []string{"l1", "l2"}, f.connector.validateCalls)

	assert.Equal(t, models.ConnectionActive, conn.Status)
	assert.Equal(t, models.SyncIdle, conn.SyncStatus)
	require.NotNil(t, conn.LastValidatedAt)

	require.NotNil(t, conn.APIKeyEncrypted)
	assert.NotEqual(t, "key-us1", *conn.APIKeyEncrypted)
	plain, err := f.vault.Decrypt(*conn.APIKeyEncrypted)
	require.NoError(t, err)
	assert.Equal(t, "key-us1", plain)
	assert.Nil(t, conn.AccessTokenEncrypted)
}

func TestCreateConnection_OAuthSealsBothTokens(t *testing.T) {
	f := newConnFixture(t)

	conn, err := f.service.CreateConnection(context.Background(), CreateConnectionParams{
		UserID:       "u1",
		Provider:     models.ProviderConvertKit,
		AuthMethod:   models.AuthOAuth,
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
	})
	require.NoError(t, err)

	// no list configured: the credential alone is validated
	assert.Equal(t, []string{""}, f.connector.validateCalls)

	require.NotNil(t, conn.AccessTokenEncrypted)
	require.NotNil(t, conn.RefreshTokenEncrypted)
	at, err := f.vault.Decrypt(*conn.AccessTokenEncrypted)
	require.NoError(t, err)
	assert.Equal(t, "at-1", at)
	rt, err := f.vault.Decrypt(*conn.RefreshTokenEncrypted)
	require.NoError(t, err)
	assert.Equal(t, "rt-1", rt)
}

func TestCreateConnection_MixedCredentialRejected(t *testing.T) {
	f := newConnFixture(t)

	_, err := f.service.CreateConnection(context.Background(), CreateConnectionParams{
		UserID:      "u1",
		Provider:    models.ProviderMailchimp,
		AuthMethod:  models.AuthAPIKey,
		APIKey:      "key",
		AccessToken: "also-a-token",
	})
	assert.ErrorIs(t, err, common.ErrMixedCredential)
	assert.Empty(t, f.connector.validateCalls, "rejected before touching the provider")
}

func TestCreateConnection_MissingMaterial(t *testing.T) {
	f := newConnFixture(t)

	_, err := f.service.CreateConnection(context.Background(), CreateConnectionParams{
		UserID:     "u1",
		Provider:   models.ProviderMailchimp,
		AuthMethod: models.AuthAPIKey,
	})
	assert.ErrorIs(t, err, common.ErrCredentialInvalid)

	_, err = f.service.CreateConnection(context.Background(), CreateConnectionParams{
		UserID:      "u1",
		Provider:    models.ProviderConvertKit,
		AuthMethod:  models.AuthOAuth,
		AccessToken: "at-only",
	})
	assert.ErrorIs(t, err, common.ErrCredentialInvalid)
}

func TestCreateConnection_ProviderRejectsCredential(t *testing.T) {
	f := newConnFixture(t)
	f.connector.validateOK = false

	_, err := f.service.CreateConnection(context.Background(), CreateConnectionParams{
		UserID:     "u1",
		Provider:   models.ProviderMailchimp,
		AuthMethod: models.AuthAPIKey,
		APIKey:     "bad-key",
	})
	assert.ErrorIs(t, err, common.ErrCredentialInvalid)
	assert.Empty(t, f.state.subscriberRows())
}

func TestCreateConnection_ProviderOutageSurfaces(t *testing.T) {
	f := newConnFixture(t)
	f.connector.validateErr = common.ErrProviderServer

	_, err := f.service.CreateConnection(context.Background(), CreateConnectionParams{
		UserID:     "u1",
		Provider:   models.ProviderMailchimp,
		AuthMethod: models.AuthAPIKey,
		APIKey:     "key",
	})
	assert.ErrorIs(t, err, common.ErrProviderServer)
}

func TestDeleteConnection(t *testing.T) {
	f := newConnFixture(t)
	f.state.addConnection(&models.Connection{ID: "c1", UserID: "u1"})

	require.NoError(t, f.service.DeleteConnection(context.Background(), "c1"))

	_, err := f.service.GetConnection(context.Background(), "c1")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	err = f.service.DeleteConnection(context.Background(), "c1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSubscriberCount_PrefersCache(t *testing.T) {
	f := newConnFixture(t)
	f.counts.getN = 500
	f.counts.getOK = true

	n, err := f.service.SubscriberCount(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 500, n)
}

func TestSubscriberCount_FallsBackToTableCount(t *testing.T) {
	f := newConnFixture(t)
	f.counts.getOK = false

	f.state.mu.Lock()
	f.state.subs["c1/e1"] = &models.Subscriber{ConnectionID: "c1", ExternalID: "e1"}
	f.state.subs["c1/e2"] = &models.Subscriber{ConnectionID: "c1", ExternalID: "e2"}
	f.state.subs["other/e1"] = &models.Subscriber{ConnectionID: "other", ExternalID: "e1"}
	f.state.mu.Unlock()

	n, err := f.service.SubscriberCount(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSubscriberCount_CacheErrorFallsBack(t *testing.T) {
	f := newConnFixture(t)
	f.counts.getErr = fmt.Errorf("redis down")

	n, err := f.service.SubscriberCount(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGetSyncHistory_DefaultLimit(t *testing.T) {
	f := newConnFixture(t)
	hrepo := &memHistoryRepo{s: f.state}
	for i := 0; i < 25; i++ {
		_, err := hrepo.Create(context.Background(), &models.SyncHistory{
			ID:           fmt.Sprintf("h%d", i),
			ConnectionID: "c1",
			Status:       models.SyncOutcomeSuccess,
		})
		require.NoError(t, err)
	}

	got, err := f.service.GetSyncHistory(context.Background(), "c1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 20)
	assert.Equal(t, "h24", got[0].ID, "newest first")
}

func TestListSubscribers_DefaultLimit(t *testing.T) {
	f := newConnFixture(t)

	got, err := f.service.ListSubscribers(context.Background(), "c1", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
