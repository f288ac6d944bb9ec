package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/listkeeper/internal/common"
)

const defaultHTTPTimeout = 30 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// classifyStatus maps a non-2xx HTTP status onto the shared error taxonomy.
// Returns nil for 2xx.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return common.ErrCredentialInvalid
	case code == http.StatusNotFound:
		return common.ErrRemoteNotFound
	case code == http.StatusTooManyRequests:
		return common.ErrRateLimited
	case code >= 500:
		return common.ErrProviderServer
	default:
		return fmt.Errorf("%w: unexpected status %d", common.ErrProviderServer, code)
	}
}

// getJSON performs an authenticated GET and decodes the 2xx body into v.
// Transport failures surface as ErrNetwork; response statuses go through
// classifyStatus.
func getJSON(ctx context.Context, client *http.Client, url string, authorize func(*http.Request), v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if authorize != nil {
		authorize(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return err
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode response: %v", common.ErrProviderServer, err)
	}
	return nil
}

func bearerAuth(secret string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
}
