package memberauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	"github.com/gorilla/mux"
)

// Request body limit for the JSON endpoints
const maxRequestBody = 1 << 20

// Credentials is the body of register and login requests
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// FederatedLoginRequest carries an access token issued by an identity provider
type FederatedLoginRequest struct {
	AccessToken string `json:"access_token"`
}

// RegisterResponse is returned with 201 by the register endpoint
type RegisterResponse struct {
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenResponse is returned by the login endpoints
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MeResponse describes the authenticated user
type MeResponse struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	AccountKind AccountKind `json:"account_kind"`
}

// APIHandler serves the member endpoints:
//
//	POST /api/members/register
//	POST /api/members/login
//	POST /api/members/oauth/{provider}/login
//	GET  /api/members/me
//
// Unknown-user and wrong-password failures produce the same 401 response.
type APIHandler struct {
	Service *AuthService

	// Middleware guarding /me. Defaults to a BearerMiddleware over Service.Validator()
	Middleware *BearerMiddleware

	// Route prefix. Defaults to "/api/members"
	PathPrefix string

	Logger *slog.Logger
}

func (h *APIHandler) EnsureDefaults() *APIHandler {
	if h.PathPrefix == "" {
		h.PathPrefix = "/api/members"
	}
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	if h.Middleware == nil {
		h.Middleware = &BearerMiddleware{Validator: h.Service.Validator(), Logger: h.Logger}
	}
	return h
}

// Routes registers the member endpoints on r
func (h *APIHandler) Routes(r *mux.Router) {
	h.EnsureDefaults()
	sub := r.PathPrefix(h.PathPrefix).Subrouter()
	sub.HandleFunc("/register", h.HandleRegister).Methods(http.MethodPost)
	sub.HandleFunc("/login", h.HandleLogin).Methods(http.MethodPost)
	sub.HandleFunc("/oauth/{provider}/login", h.HandleFederatedLogin).Methods(http.MethodPost)
	sub.Handle("/me", h.Middleware.ValidateToken(http.HandlerFunc(h.HandleMe))).Methods(http.MethodGet)
}

// Handler returns a router serving only the member endpoints
func (h *APIHandler) Handler() http.Handler {
	r := mux.NewRouter()
	h.Routes(r)
	return r
}

func (h *APIHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if !h.decodeCredentials(w, r, &creds) {
		return
	}

	result, err := h.Service.Register(r.Context(), creds.Email, creds.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Authorization", "Bearer "+result.Token.Value)
	writeJSON(w, http.StatusCreated, RegisterResponse{
		Email:     result.User.Email,
		Token:     result.Token.Value,
		ExpiresAt: result.Token.ExpiresAt,
	})
}

func (h *APIHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if !h.decodeCredentials(w, r, &creds) {
		return
	}

	token, err := h.Service.Login(r.Context(), creds.Email, creds.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeToken(w, token)
}

func (h *APIHandler) HandleFederatedLogin(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	if !h.Service.HasProvider(provider) {
		writeJSONError(w, http.StatusNotFound, "unknown_provider", "Identity provider is not configured")
		return
	}

	var req FederatedLoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.AccessToken == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "access_token is required")
		return
	}

	token, err := h.Service.FederatedLogin(r.Context(), provider, req.AccessToken)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeToken(w, token)
}

func (h *APIHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	email := EmailFromContext(r.Context())
	if email == "" {
		writeTokenError(w, h.Middleware.Realm, ErrTokenInvalid)
		return
	}

	user, err := h.Service.UserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, ErrNoSuchUser) {
			// the token outlived its user record
			writeTokenError(w, h.Middleware.Realm, ErrTokenInvalid)
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{ID: user.ID, Email: user.Email, AccountKind: kindOf(user.Account)})
}

func (h *APIHandler) decodeCredentials(w http.ResponseWriter, r *http.Request, creds *Credentials) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(creds); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	if creds.Email == "" || creds.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return false
	}
	if !validEmail(creds.Email) {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "email is not a valid address")
		return false
	}
	return true
}

// ErrorStatus maps an AuthService failure to an HTTP status and error body.
// Unknown users and wrong passwords share one response.
func ErrorStatus(err error) (int, ErrorBody) {
	switch CodeOf(err) {
	case ErrCodeDuplicateEmail:
		return http.StatusConflict, ErrorBody{string(ErrCodeDuplicateEmail), "Email is already registered"}
	case ErrCodeNoSuchUser, ErrCodeBadCredentials:
		return http.StatusUnauthorized, ErrorBody{"invalid_credentials", "Invalid credentials"}
	case ErrCodeTokenExpired:
		return http.StatusUnauthorized, ErrorBody{"invalid_token", "Token has expired"}
	case ErrCodeTokenInvalid:
		return http.StatusUnauthorized, ErrorBody{"invalid_token", "Token is invalid"}
	case ErrCodeIdentityProvider:
		return http.StatusBadGateway, ErrorBody{string(ErrCodeIdentityProvider), "Identity provider request failed"}
	default:
		return http.StatusInternalServerError, ErrorBody{"server_error", "Internal server error"}
	}
}

// WriteError writes the ErrorStatus response for err, logging unexpected failures
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch CodeOf(err) {
	case ErrCodeTokenExpired, ErrCodeTokenInvalid:
		writeTokenError(w, "", err)
		return
	case "", ErrCodeInvalidCredentialFormat:
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	status, body := ErrorStatus(err)
	writeJSONError(w, status, body.Error, body.ErrorDescription)
}

func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if code := CodeOf(err); code == ErrCodeTokenExpired || code == ErrCodeTokenInvalid {
		writeTokenError(w, h.Middleware.Realm, err)
		return
	}
	WriteError(w, r, h.Logger, err)
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func writeToken(w http.ResponseWriter, token *Token) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, TokenResponse{
		Token:     token.Value,
		TokenType: "Bearer",
		ExpiresAt: token.ExpiresAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
