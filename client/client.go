package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	ma "github.com/panyam/memberauth"
)

// DefaultPathPrefix matches the server's default APIHandler prefix
const DefaultPathPrefix = "/api/members"

// APIError is a non-2xx response from the server
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("memberauth: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("memberauth: %d %s", e.Status, e.Code)
}

// MemberClient calls the member endpoints of a memberauth server
type MemberClient struct {
	mu         sync.Mutex
	serverURL  string
	pathPrefix string
	base       http.RoundTripper
	httpClient *http.Client
	cred       *Credential
}

// ClientOption configures a MemberClient
type ClientOption func(*MemberClient)

// WithPathPrefix sets the route prefix the server mounts the API under
func WithPathPrefix(prefix string) ClientOption {
	return func(c *MemberClient) {
		c.pathPrefix = strings.TrimRight(prefix, "/")
	}
}

// WithTransport sets a custom base transport (for connection pooling, proxies, etc.)
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *MemberClient) {
		c.base = transport
	}
}

// NewMemberClient creates a client for the server at serverURL
func NewMemberClient(serverURL string, opts ...ClientOption) *MemberClient {
	// Normalize server URL
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &MemberClient{
		serverURL:  serverURL,
		pathPrefix: DefaultPathPrefix,
		base:       http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient = &http.Client{Transport: &AuthTransport{Base: c.base, Token: c.currentToken}}
	return c
}

// HTTPClient returns an HTTP client that sends the current token on every request
func (c *MemberClient) HTTPClient() *http.Client {
	return c.httpClient
}

// Credential returns the last token obtained, or nil
func (c *MemberClient) Credential() *Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred
}

// SetCredential replaces the remembered token, for example one loaded from disk
func (c *MemberClient) SetCredential(cred *Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = cred
}

// Logout forgets the remembered token
func (c *MemberClient) Logout() {
	c.SetCredential(nil)
}

// IsLoggedIn returns true if there is a non-expired token
func (c *MemberClient) IsLoggedIn() bool {
	cred := c.Credential()
	return cred != nil && !cred.IsExpired()
}

// Register creates a local account and remembers the returned token
func (c *MemberClient) Register(ctx context.Context, email, password string) (*Credential, error) {
	var resp ma.RegisterResponse
	if err := c.post(ctx, "/register", ma.Credentials{Email: email, Password: password}, http.StatusCreated, &resp); err != nil {
		return nil, err
	}
	return c.remember(&Credential{Token: resp.Token, TokenType: "Bearer", Email: resp.Email, ExpiresAt: resp.ExpiresAt}), nil
}

// Login exchanges email and password for a token
func (c *MemberClient) Login(ctx context.Context, email, password string) (*Credential, error) {
	var resp ma.TokenResponse
	if err := c.post(ctx, "/login", ma.Credentials{Email: email, Password: password}, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return c.remember(&Credential{Token: resp.Token, TokenType: resp.TokenType, Email: email, ExpiresAt: resp.ExpiresAt}), nil
}

// FederatedLogin exchanges an identity provider's access token for a token
func (c *MemberClient) FederatedLogin(ctx context.Context, provider, accessToken string) (*Credential, error) {
	var resp ma.TokenResponse
	path := "/oauth/" + url.PathEscape(provider) + "/login"
	if err := c.post(ctx, path, ma.FederatedLoginRequest{AccessToken: accessToken}, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return c.remember(&Credential{Token: resp.Token, TokenType: resp.TokenType, ExpiresAt: resp.ExpiresAt}), nil
}

// Me returns the user the remembered token belongs to
func (c *MemberClient) Me(ctx context.Context) (*ma.MeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/me"), nil)
	if err != nil {
		return nil, err
	}
	var me ma.MeResponse
	if err := c.do(c.httpClient, req, http.StatusOK, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *MemberClient) currentToken() string {
	if cred := c.Credential(); cred != nil {
		return cred.Token
	}
	return ""
}

func (c *MemberClient) remember(cred *Credential) *Credential {
	c.SetCredential(cred)
	return cred
}

func (c *MemberClient) endpoint(path string) string {
	return c.serverURL + c.pathPrefix + path
}

func (c *MemberClient) post(ctx context.Context, path string, body any, want int, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	// Use base transport directly so a stale token is never sent with credentials
	return c.do(&http.Client{Transport: c.base}, req, want, out)
}

func (c *MemberClient) do(httpClient *http.Client, req *http.Request, want int, out any) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != want {
		apiErr := &APIError{Status: resp.StatusCode}
		var errBody ma.ErrorBody
		if json.Unmarshal(body, &errBody) == nil {
			apiErr.Code = errBody.Error
			apiErr.Message = errBody.ErrorDescription
		}
		if apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}
