package memberauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Operation names reported to an Observer
const (
	OpRegister          = "register"
	OpLogin             = "login"
	OpFederatedLogin    = "federated_login"
	OpAuthenticatedUser = "authenticated_user"
)

// OutcomeSuccess is the outcome reported for operations that did not fail.
// Failed operations report their ErrorCode, or "error" for infrastructure failures.
const OutcomeSuccess = "success"

// Observer is notified once per AuthService operation
type Observer interface {
	Observe(operation, outcome string, elapsed time.Duration)
}

// TokenService issues and validates bearer tokens. *TokenIssuer implements it.
type TokenService interface {
	TokenValidator
	Issue(subjectEmail string) (*Token, error)
}

// RegistrationResult is returned by a successful Register
type RegistrationResult struct {
	User  *User
	Token *Token
}

// AuthService composes a UserStore, a Hasher, a TokenService and any number of
// named IdentityProviders into the register, login and federated-login flows.
//
// Operations are independent and hold no cross-request state. Email uniqueness
// is left to the UserStore; see UserStore for the contract.
type AuthService struct {
	users     UserStore
	hasher    Hasher
	tokens    TokenService
	providers map[string]IdentityProvider
	logger    *slog.Logger
	observer  Observer

	decoyOnce sync.Once
	decoyHash string
}

type ServiceOption func(*AuthService)

// WithHasher overrides the default bcrypt hasher
func WithHasher(h Hasher) ServiceOption {
	return func(s *AuthService) {
		s.hasher = h
	}
}

// WithIdentityProvider registers a provider usable through FederatedLogin
func WithIdentityProvider(name string, p IdentityProvider) ServiceOption {
	return func(s *AuthService) {
		s.providers[name] = p
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *AuthService) {
		s.logger = logger
	}
}

func WithObserver(o Observer) ServiceOption {
	return func(s *AuthService) {
		s.observer = o
	}
}

func NewAuthService(users UserStore, tokens TokenService, opts ...ServiceOption) *AuthService {
	s := &AuthService{
		users:     users,
		tokens:    tokens,
		providers: make(map[string]IdentityProvider),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hasher == nil {
		s.hasher = NewBcryptHasher(0)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// HasProvider reports whether an identity provider is registered under name
func (s *AuthService) HasProvider(name string) bool {
	_, ok := s.providers[name]
	return ok
}

// Register creates a local account for email and returns it with a fresh token.
// A second registration of the same email fails with ErrDuplicateEmail and
// leaves the first credential in place.
func (s *AuthService) Register(ctx context.Context, email, password string) (result *RegistrationResult, err error) {
	defer s.observe(OpRegister, time.Now(), &err)

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		s.logger.Info("registration rejected", "email", email, "reason", ErrCodeDuplicateEmail)
		return nil, ErrDuplicateEmail
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.SaveUser(ctx, &User{Email: email, Account: LocalAccount{PasswordHash: hash}})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			s.logger.Info("registration rejected", "email", email, "reason", ErrCodeDuplicateEmail)
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	token, err := s.tokens.Issue(email)
	if err != nil {
		return nil, err
	}

	s.logger.Info("registered user", "user_id", user.ID, "email", email)
	return &RegistrationResult{User: user, Token: token}, nil
}

// Login checks email and password and returns a new token.
// ErrNoSuchUser and ErrBadCredentials stay distinct here; boundaries that face
// untrusted callers should present them identically.
func (s *AuthService) Login(ctx context.Context, email, password string) (token *Token, err error) {
	defer s.observe(OpLogin, time.Now(), &err)

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		s.spendVerify(password)
		s.logger.Info("login failed", "email", email, "reason", ErrCodeNoSuchUser)
		return nil, ErrNoSuchUser
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	local, ok := asLocalAccount(user.Account)
	if !ok {
		s.spendVerify(password)
		s.logger.Info("login failed", "email", email, "reason", ErrCodeBadCredentials, "account_kind", kindOf(user.Account))
		return nil, ErrBadCredentials
	}

	matched, err := s.hasher.Verify(password, local.PasswordHash)
	if err != nil {
		s.logger.Error("stored credential is unreadable", "user_id", user.ID, "error", err)
		return nil, err
	}
	if !matched {
		s.logger.Info("login failed", "email", email, "reason", ErrCodeBadCredentials)
		return nil, ErrBadCredentials
	}

	return s.tokens.Issue(user.Email)
}

// FederatedLogin exchanges accessToken with the named provider and returns a
// token for the identity's email, provisioning a federated account on first use.
// Provider failures are returned as ErrIdentityProvider and never retried.
func (s *AuthService) FederatedLogin(ctx context.Context, provider, accessToken string) (token *Token, err error) {
	defer s.observe(OpFederatedLogin, time.Now(), &err)

	idp, ok := s.providers[provider]
	if !ok {
		return nil, WrapAuthError(ErrCodeIdentityProvider, "unknown identity provider", fmt.Errorf("provider %q", provider))
	}

	ident, err := idp.ExchangeToken(ctx, accessToken)
	if err != nil {
		s.logger.Warn("identity provider exchange failed", "provider", provider, "error", err)
		return nil, WrapAuthError(ErrCodeIdentityProvider, "token exchange failed", err)
	}
	if ident == nil || ident.Email == "" {
		return nil, NewAuthError(ErrCodeIdentityProvider, "identity provider returned no email")
	}
	if ident.Provider == "" {
		ident.Provider = provider
	}

	user, created, err := s.findOrCreateFederated(ctx, ident)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("provisioned federated user", "user_id", user.ID, "email", user.Email, "provider", ident.Provider)
	}

	return s.tokens.Issue(user.Email)
}

func (s *AuthService) findOrCreateFederated(ctx context.Context, ident *ExternalIdentity) (*User, bool, error) {
	user, err := s.users.FindByEmail(ctx, ident.Email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, fmt.Errorf("failed to find user: %w", err)
	}

	user, err = s.users.SaveUser(ctx, &User{
		Email: ident.Email,
		Account: FederatedAccount{
			Provider:       ident.Provider,
			ProviderUserID: ident.ProviderUserID,
		},
	})
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, ErrDuplicateEmail) {
		return nil, false, fmt.Errorf("failed to save user: %w", err)
	}

	// a concurrent request created the user first; use theirs
	user, err = s.users.FindByEmail(ctx, ident.Email)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find user: %w", err)
	}
	return user, false, nil
}

// AuthenticatedUser validates token and loads the user it was issued for
func (s *AuthService) AuthenticatedUser(ctx context.Context, token string) (user *User, err error) {
	defer s.observe(OpAuthenticatedUser, time.Now(), &err)

	email, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	return s.UserByEmail(ctx, email)
}

// UserByEmail loads a user whose email has already been authenticated,
// for example by BearerMiddleware. Absent users are ErrNoSuchUser.
func (s *AuthService) UserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrNoSuchUser
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// Validator exposes the service's token validator for boundary middleware
func (s *AuthService) Validator() TokenValidator {
	return s.tokens
}

// spendVerify runs one verification against a decoy hash so that logins for
// unknown or password-less accounts take as long as a wrong password.
func (s *AuthService) spendVerify(password string) {
	s.decoyOnce.Do(func() {
		hash, err := s.hasher.Hash("memberauth-decoy-password")
		if err != nil {
			s.logger.Warn("could not build decoy hash", "error", err)
			return
		}
		s.decoyHash = hash
	})
	if s.decoyHash != "" {
		s.hasher.Verify(password, s.decoyHash)
	}
}

func (s *AuthService) observe(operation string, start time.Time, errp *error) {
	if s.observer == nil {
		return
	}
	outcome := OutcomeSuccess
	if *errp != nil {
		outcome = "error"
		if code := CodeOf(*errp); code != "" {
			outcome = string(code)
		}
	}
	s.observer.Observe(operation, outcome, time.Since(start))
}

func asLocalAccount(a Account) (LocalAccount, bool) {
	switch acc := a.(type) {
	case LocalAccount:
		return acc, true
	case *LocalAccount:
		if acc != nil {
			return *acc, true
		}
	}
	return LocalAccount{}, false
}

func kindOf(a Account) AccountKind {
	if a == nil {
		return ""
	}
	return a.Kind()
}
