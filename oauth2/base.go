package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
)

// Provider names used when registering the bundled identity providers
const (
	ProviderKakao  = "kakao"
	ProviderGoogle = "google"
	ProviderGithub = "github"
	ProviderOIDC   = "oidc"
)

// errEmptyAccessToken is returned before any network call is made
var errEmptyAccessToken = errors.New("access token is empty")

// BaseProvider holds what every identity provider client in this package shares
type BaseProvider struct {
	// HTTPClient is the transport used for provider calls. Defaults to
	// http.DefaultClient. Can be overridden for testing.
	HTTPClient *http.Client

	Logger *slog.Logger
}

func (b *BaseProvider) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

// authorizedClient returns an http.Client that sends accessToken as a bearer credential
func (b *BaseProvider) authorizedClient(ctx context.Context, accessToken string) *http.Client {
	if b.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}

// getJSON fetches url with accessToken and decodes a 200 response into out
func (b *BaseProvider) getJSON(ctx context.Context, accessToken, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.authorizedClient(ctx, accessToken).Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", url, err)
	}
	return nil
}

// StatusError reports a non-200 answer from a provider API
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}
