// Package oauth renews expiring ESP access tokens using the stored refresh
// token. Client ids/secrets and token endpoint URLs are supplied by external
// configuration, per provider.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/listkeeper/internal/common"
	"github.com/dmitrijs2005/listkeeper/internal/cryptox"
	"github.com/dmitrijs2005/listkeeper/internal/logging"
	"github.com/dmitrijs2005/listkeeper/internal/server/models"
	"github.com/dmitrijs2005/listkeeper/internal/server/repositories/connections"
)

// Endpoint is one provider's OAuth client configuration.
type Endpoint struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

const (
	// refreshMargin renews tokens that expire within this window, so a token
	// cannot lapse in the middle of a multi-page fetch.
	refreshMargin = 60 * time.Second

	// defaultExpiresIn applies when the provider omits expires_in.
	defaultExpiresIn = 3600 * time.Second

	tokenTimeout = 30 * time.Second
)

type Refresher struct {
	endpoints   map[models.ProviderType]Endpoint
	vault       *cryptox.Vault
	connections connections.Repository
	client      *http.Client
	logger      logging.Logger
}

func NewRefresher(endpoints map[models.ProviderType]Endpoint, vault *cryptox.Vault, repo connections.Repository, logger logging.Logger) *Refresher {
	return &Refresher{
		endpoints:   endpoints,
		vault:       vault,
		connections: repo,
		client:      &http.Client{Timeout: tokenTimeout},
		logger:      logger.With("module", "oauth_refresher"),
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// EnsureFreshAccessToken returns a usable decrypted access token for the
// connection, exchanging the refresh token first when the stored one is
// absent, expired, or inside the safety margin. On a successful refresh the
// new encrypted token pair and expiry are persisted and conn is updated in
// place.
func (r *Refresher) EnsureFreshAccessToken(ctx context.Context, conn *models.Connection) (string, error) {
	if conn.AuthMethod != models.AuthOAuth {
		return "", fmt.Errorf("%w: connection %s does not use oauth", common.ErrorInternal, conn.ID)
	}

	if conn.AccessTokenEncrypted != nil && conn.TokenExpiresAt != nil &&
		time.Now().Add(refreshMargin).Before(*conn.TokenExpiresAt) {
		return r.vault.Decrypt(*conn.AccessTokenEncrypted)
	}

	return r.refresh(ctx, conn)
}

func (r *Refresher) refresh(ctx context.Context, conn *models.Connection) (string, error) {
	ep, ok := r.endpoints[conn.Provider]
	if !ok {
		return "", fmt.Errorf("%w: no oauth endpoint configured for provider %q", common.ErrorInternal, conn.Provider)
	}
	if conn.RefreshTokenEncrypted == nil {
		return "", fmt.Errorf("%w: connection has no refresh token", common.ErrCredentialInvalid)
	}

	refreshToken, err := r.vault.Decrypt(*conn.RefreshTokenEncrypted)
	if err != nil {
		return "", err
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {ep.ClientID},
		"client_secret": {ep.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token endpoint: %v", common.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusBadRequest:
		// Malformed/rejected refresh token. Permanent.
		return "", fmt.Errorf("%w: refresh token rejected", common.ErrCredentialInvalid)
	case resp.StatusCode == http.StatusUnauthorized:
		// Expired or revoked grant. Permanent.
		return "", fmt.Errorf("%w: refresh token expired or revoked", common.ErrCredentialInvalid)
	case resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: token endpoint status %d", common.ErrProviderServer, resp.StatusCode)
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: token endpoint status %d", common.ErrNetwork, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", common.ErrProviderServer, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: token response missing access_token", common.ErrProviderServer)
	}

	expiresIn := defaultExpiresIn
	if tr.ExpiresIn > 0 {
		expiresIn = time.Duration(tr.ExpiresIn) * time.Second
	}
	expiresAt := time.Now().Add(expiresIn)
	now := time.Now()

	accessEncrypted, err := r.vault.Encrypt(tr.AccessToken)
	if err != nil {
		return "", fmt.Errorf("seal access token: %w", err)
	}

	// A missing refresh_token in the response means the stored one stays.
	var refreshEncrypted *string
	if tr.RefreshToken != "" {
		enc, err := r.vault.Encrypt(tr.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("seal refresh token: %w", err)
		}
		refreshEncrypted = &enc
	}

	if err := r.connections.UpdateTokens(ctx, conn.ID, accessEncrypted, refreshEncrypted, expiresAt, now); err != nil {
		return "", fmt.Errorf("persist refreshed tokens: %w", err)
	}

	conn.AccessTokenEncrypted = &accessEncrypted
	if refreshEncrypted != nil {
		conn.RefreshTokenEncrypted = refreshEncrypted
	}
	conn.TokenExpiresAt = &expiresAt
	conn.LastValidatedAt = &now

	r.logger.Info(ctx, "access token refreshed", "connection_id", conn.ID, "provider", conn.Provider)
	return tr.AccessToken, nil
}
