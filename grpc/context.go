// Package grpc authenticates gRPC calls with memberauth bearer tokens carried
// in the "authorization" metadata entry, and helps clients attach them.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// DefaultMetadataKeyAuthorization is the metadata key read for bearer tokens
const DefaultMetadataKeyAuthorization = "authorization"

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeyAuthorization is the gRPC metadata key carrying "Bearer <token>".
	// Defaults to "authorization".
	MetadataKeyAuthorization string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{MetadataKeyAuthorization: DefaultMetadataKeyAuthorization}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
}

type subjectKey struct{}

// SubjectFromContext returns the email the interceptor authenticated, or ""
func SubjectFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(subjectKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextWithSubject records an authenticated email on a server context
func ContextWithSubject(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, subjectKey{}, email)
}

// IsAuthenticated returns true if the interceptor authenticated the call.
func IsAuthenticated(ctx context.Context) bool {
	return SubjectFromContext(ctx) != ""
}

// TokenToOutgoingContext attaches token as a bearer credential to outgoing metadata.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return TokenToOutgoingContextWithKey(ctx, token, DefaultMetadataKeyAuthorization)
}

// TokenToOutgoingContextWithKey attaches token under a custom metadata key,
// matching a server whose Config.MetadataKeyAuthorization is not the default.
func TokenToOutgoingContextWithKey(ctx context.Context, token string, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, "Bearer "+token)
}

// tokenFromIncoming returns the raw authorization value, or "" when absent
func tokenFromIncoming(ctx context.Context, config *Config) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(config.MetadataKeyAuthorization); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

// BearerCredentials implements credentials.PerRPCCredentials so a client
// connection sends the token on every call
type BearerCredentials struct {
	Token string

	// MetadataKey defaults to "authorization"
	MetadataKey string

	// AllowInsecure permits sending the token over plaintext connections
	AllowInsecure bool
}

func (c BearerCredentials) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	key := c.MetadataKey
	if key == "" {
		key = DefaultMetadataKeyAuthorization
	}
	return map[string]string{key: "Bearer " + c.Token}, nil
}

func (c BearerCredentials) RequireTransportSecurity() bool {
	return !c.AllowInsecure
}
