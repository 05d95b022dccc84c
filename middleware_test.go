package memberauth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ma "github.com/panyam/memberauth"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"bearer abc", "abc", false},
		{"Bearer   abc  ", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer", "", true},
		{"Bearer ", "", true},
	}
	for _, tt := range tests {
		got, err := ma.BearerToken(tt.header)
		if tt.wantErr {
			assert.ErrorIs(t, err, ma.ErrTokenInvalid, "header %q", tt.header)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestBearerMiddleware_ValidateToken(t *testing.T) {
	clock := newFakeClock()
	issuer := newTestIssuer(t, ma.WithClock(clock.Now))
	m := &ma.BearerMiddleware{Validator: issuer}

	var seen string
	h := m.ValidateToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ma.EmailFromContext(r.Context())
	}))

	token, err := issuer.Issue("a@x.com")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token.Value)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "a@x.com", seen)

	clock.Advance(2 * time.Hour)
	seen = ""
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, seen)
	assert.Contains(t, rr.Body.String(), "Token has expired")
	assert.Contains(t, rr.Header().Get("WWW-Authenticate"), `realm="memberauth"`)
}

func TestBearerMiddleware_Optional(t *testing.T) {
	issuer := newTestIssuer(t)
	m := &ma.BearerMiddleware{Validator: issuer, AuthHeader: "X-Member-Token"}

	var seen string
	called := false
	h := m.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		seen = ma.EmailFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, called)
	assert.Empty(t, seen)

	token, err := issuer.Issue("a@x.com")
	require.NoError(t, err)
	req.Header.Set("X-Member-Token", "Bearer "+token.Value)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "a@x.com", seen)
}

func TestBearerMiddleware_CustomErrorHandler(t *testing.T) {
	m := &ma.BearerMiddleware{
		Validator: newTestIssuer(t),
		OnAuthError: func(w http.ResponseWriter, r *http.Request, err error) {
			w.WriteHeader(http.StatusTeapot)
		},
	}
	h := m.ValidateToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}
