package memberauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const contextKeyEmail contextKey = "memberauth_email"

// BearerMiddleware authenticates requests carrying "Authorization: Bearer <token>"
type BearerMiddleware struct {
	Validator TokenValidator

	// Header to read the token from. Defaults to "Authorization"
	AuthHeader string

	// Realm reported in WWW-Authenticate. Defaults to "memberauth"
	Realm string

	// OnAuthError replaces the default 401 JSON response
	OnAuthError func(w http.ResponseWriter, r *http.Request, err error)

	Logger *slog.Logger
}

// EmailFromContext returns the email a BearerMiddleware authenticated, or ""
func EmailFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyEmail).(string); ok {
		return v
	}
	return ""
}

// ContextWithEmail stores an authenticated email the way BearerMiddleware does
func ContextWithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, contextKeyEmail, email)
}

// ValidateToken rejects requests without a valid bearer token
func (m *BearerMiddleware) ValidateToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, err := m.validateRequest(r)
		if err != nil {
			m.handleAuthError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithEmail(r.Context(), email)))
	})
}

// Optional sets the email when a valid token is present and continues either way
func (m *BearerMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if email, err := m.validateRequest(r); err == nil {
			r = r.WithContext(ContextWithEmail(r.Context(), email))
		}
		next.ServeHTTP(w, r)
	})
}

func (m *BearerMiddleware) validateRequest(r *http.Request) (string, error) {
	header := m.AuthHeader
	if header == "" {
		header = "Authorization"
	}
	token, err := BearerToken(r.Header.Get(header))
	if err != nil {
		return "", err
	}
	return m.Validator.Validate(token)
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(headerValue string) (string, error) {
	if headerValue == "" {
		return "", NewAuthError(ErrCodeTokenInvalid, "missing authorization header")
	}
	parts := strings.SplitN(headerValue, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", NewAuthError(ErrCodeTokenInvalid, "invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", NewAuthError(ErrCodeTokenInvalid, "empty token")
	}
	return token, nil
}

func (m *BearerMiddleware) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	if m.OnAuthError != nil {
		m.OnAuthError(w, r, err)
		return
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("bearer authentication failed", "path", r.URL.Path, "error", err)
	writeTokenError(w, m.Realm, err)
}

func writeTokenError(w http.ResponseWriter, realm string, err error) {
	if realm == "" {
		realm = "memberauth"
	}
	if !errors.Is(err, ErrTokenExpired) {
		err = ErrTokenInvalid
	}
	_, body := ErrorStatus(err)
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm=%q, error=%q`, realm, body.Error))
	writeJSONError(w, http.StatusUnauthorized, body.Error, body.ErrorDescription)
}

// ErrorBody is the JSON body of every error response
type ErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeJSONError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorBody{Error: code, ErrorDescription: description})
}
