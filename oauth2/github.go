package oauth2

import (
	"context"
	"errors"
	"strconv"
	"strings"

	ma "github.com/panyam/memberauth"
)

// GithubAPIURL is the GitHub REST API base
const GithubAPIURL = "https://api.github.com"

// GithubProvider resolves GitHub access tokens through the REST API. When the
// profile email is private it falls back to the primary verified address from
// /user/emails, which needs the user:email scope.
type GithubProvider struct {
	BaseProvider

	// APIURL defaults to GithubAPIURL. Can be overridden for testing.
	APIURL string
}

func NewGithubProvider() *GithubProvider {
	return &GithubProvider{APIURL: GithubAPIURL}
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *GithubProvider) ExchangeToken(ctx context.Context, accessToken string) (*ma.ExternalIdentity, error) {
	if accessToken == "" {
		return nil, errEmptyAccessToken
	}
	base := strings.TrimSuffix(g.APIURL, "/")

	var user githubUser
	if err := g.getJSON(ctx, accessToken, base+"/user", &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, errors.New("github profile has no id")
	}

	email := user.Email
	if email == "" {
		var emails []githubEmail
		if err := g.getJSON(ctx, accessToken, base+"/user/emails", &emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
		if email == "" {
			g.logger().Warn("github user has no verified primary email", "login", user.Login)
			return nil, errors.New("github account has no verified primary email")
		}
	}

	return &ma.ExternalIdentity{
		Provider:       ProviderGithub,
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          email,
	}, nil
}
