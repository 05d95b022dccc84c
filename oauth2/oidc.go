package oauth2

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	ma "github.com/panyam/memberauth"
)

// OIDCProvider accepts OpenID Connect ID tokens in place of access tokens.
// The token's signature, issuer, audience and expiry are checked locally
// against the issuer's published keys.
type OIDCProvider struct {
	BaseProvider

	// Name is reported as ExternalIdentity.Provider. Defaults to ProviderOIDC
	Name string

	Verifier *oidc.IDTokenVerifier

	// RequireVerifiedEmail rejects tokens whose email_verified claim is false
	RequireVerifiedEmail bool
}

// NewOIDCProvider discovers issuer's configuration and verifies ID tokens
// issued to clientID
func NewOIDCProvider(ctx context.Context, issuer, clientID string) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover oidc issuer %s: %w", issuer, err)
	}
	return &OIDCProvider{
		Name:                 ProviderOIDC,
		Verifier:             provider.Verifier(&oidc.Config{ClientID: clientID}),
		RequireVerifiedEmail: true,
	}, nil
}

type oidcClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
}

func (o *OIDCProvider) ExchangeToken(ctx context.Context, idToken string) (*ma.ExternalIdentity, error) {
	if idToken == "" {
		return nil, errEmptyAccessToken
	}
	if o.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, o.HTTPClient)
	}

	token, err := o.Verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}

	var claims oidcClaims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse id token claims: %w", err)
	}
	if claims.Email == "" {
		return nil, errors.New("id token has no email claim")
	}
	if o.RequireVerifiedEmail && claims.EmailVerified != nil && !*claims.EmailVerified {
		return nil, errors.New("id token email is not verified")
	}

	name := o.Name
	if name == "" {
		name = ProviderOIDC
	}
	return &ma.ExternalIdentity{Provider: name, ProviderUserID: token.Subject, Email: claims.Email}, nil
}
