// Package client is a Go client for the memberauth HTTP API. It remembers the
// last token it obtained and can hand out an *http.Client that sends it.
package client

import (
	"time"
)

// Credential is a bearer token obtained from the server
type Credential struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type,omitempty"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true once the expiry time has been reached
func (c *Credential) IsExpired() bool {
	return !time.Now().Before(c.ExpiresAt)
}

// IsExpiringSoon returns true if the token expires within the given duration
func (c *Credential) IsExpiringSoon(within time.Duration) bool {
	return time.Now().Add(within).After(c.ExpiresAt)
}
