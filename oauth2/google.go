package oauth2

import (
	"context"
	"errors"
	"fmt"

	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	ma "github.com/panyam/memberauth"
)

// GoogleProvider resolves Google access tokens with the OAuth2 v2 userinfo API
type GoogleProvider struct {
	BaseProvider

	// Endpoint overrides the API base URL. Can be overridden for testing.
	Endpoint string
}

func NewGoogleProvider() *GoogleProvider {
	return &GoogleProvider{}
}

func (g *GoogleProvider) ExchangeToken(ctx context.Context, accessToken string) (*ma.ExternalIdentity, error) {
	if accessToken == "" {
		return nil, errEmptyAccessToken
	}

	opts := []option.ClientOption{option.WithHTTPClient(g.authorizedClient(ctx, accessToken))}
	if g.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.Endpoint))
	}
	svc, err := googleoauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed getting user info from google: %w", err)
	}
	if info.Id == "" || info.Email == "" {
		return nil, errors.New("google userinfo is missing id or email")
	}
	if info.VerifiedEmail == nil || !*info.VerifiedEmail {
		return nil, errors.New("google email is not verified")
	}

	return &ma.ExternalIdentity{
		Provider:       ProviderGoogle,
		ProviderUserID: info.Id,
		Email:          info.Email,
	}, nil
}
