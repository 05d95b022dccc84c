package oauth2

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/kakao"

	ma "github.com/panyam/memberauth"
)

const stateCookieName = "oauthstate"

// CodeFlow runs the authorization-code flow for one provider and finishes it
// with AuthService.FederatedLogin:
//
//	GET /           redirects to the provider's consent page
//	GET /callback/  exchanges the code and responds with a memberauth token
//
// Mount it under a prefix with http.StripPrefix.
type CodeFlow struct {
	Provider string
	Config   *oauth2.Config
	Service  *ma.AuthService

	// HTTPClient is used for the code exchange. Can be overridden for testing.
	HTTPClient *http.Client

	Logger *slog.Logger

	mux *http.ServeMux
}

func NewCodeFlow(provider string, config *oauth2.Config, service *ma.AuthService) *CodeFlow {
	f := &CodeFlow{Provider: provider, Config: config, Service: service, mux: http.NewServeMux()}
	f.mux.HandleFunc("/callback/", f.handleCallback)
	f.mux.HandleFunc("/", f.handleRedirect)
	return f
}

func (f *CodeFlow) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mux.ServeHTTP(w, r)
}

func (f *CodeFlow) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

func (f *CodeFlow) exchangeContext(ctx context.Context) context.Context {
	if f.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, f.HTTPClient)
	}
	return ctx
}

func (f *CodeFlow) handleRedirect(w http.ResponseWriter, r *http.Request) {
	state, err := generateStateOauthCookie(w)
	if err != nil {
		f.logger().Error("failed to generate oauth state", "error", err)
		http.Error(w, "failed to start login", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, f.Config.AuthCodeURL(state), http.StatusFound)
}

func (f *CodeFlow) handleCallback(w http.ResponseWriter, r *http.Request) {
	oauthState, _ := r.Cookie(stateCookieName)
	clearStateCookie(w)
	if oauthState == nil || oauthState.Value == "" {
		http.Error(w, "missing oauth state", http.StatusBadRequest)
		return
	}
	if r.FormValue("state") != oauthState.Value {
		f.logger().Info("oauth state mismatch", "provider", f.Provider)
		http.Error(w, fmt.Sprintf("invalid oauth %s state", f.Provider), http.StatusBadRequest)
		return
	}
	if errCode := r.FormValue("error"); errCode != "" {
		f.logger().Info("provider denied authorization", "provider", f.Provider, "error", errCode)
		http.Error(w, "authorization was denied", http.StatusUnauthorized)
		return
	}

	providerToken, err := f.Config.Exchange(f.exchangeContext(r.Context()), r.FormValue("code"))
	if err != nil {
		f.logger().Info("invalid code exchange", "provider", f.Provider, "error", err)
		ma.WriteError(w, r, f.logger(), ma.WrapAuthError(ma.ErrCodeIdentityProvider, "code exchange failed", err))
		return
	}

	token, err := f.Service.FederatedLogin(r.Context(), f.Provider, providerToken.AccessToken)
	if err != nil {
		ma.WriteError(w, r, f.logger(), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(ma.TokenResponse{Token: token.Value, TokenType: "Bearer", ExpiresAt: token.ExpiresAt})
}

func generateStateOauthCookie(w http.ResponseWriter) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := base64.URLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return state, nil
}

func clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})
}

// KakaoConfig returns an oauth2.Config for Kakao Login with the account_email scope
func KakaoConfig(clientID, clientSecret, callbackURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  callbackURL,
		Scopes:       []string{"account_email"},
		Endpoint:     kakao.Endpoint,
	}
}

func GoogleConfig(clientID, clientSecret, callbackURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  callbackURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

func GithubConfig(clientID, clientSecret, callbackURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  callbackURL,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     github.Endpoint,
	}
}
