// Package memberauth registers members with hashed passwords, authenticates
// them, and issues signed bearer tokens. Members can also sign in through an
// external identity provider, which provisions a password-less account the
// first time an email is seen.
//
// # Architecture
//
// Hasher: one-way salted password hashing with constant-time verification.
// Bcrypt is the default; argon2id is available through NewHasher.
//
// TokenIssuer: stateless HMAC-signed JWTs whose subject is the member's email.
// A token is valid until its expiry instant and never after.
//
// UserStore: persistence keyed by email. Stores must reject a second user with
// the same email even when two writes race; the stores package and its
// subpackages provide file, memory, gorm, database/sql, Redis and Datastore
// implementations.
//
// IdentityProvider: exchanges a provider access token for a verified email.
// The oauth2 package provides Kakao, Google, GitHub and OIDC providers.
//
// AuthService: composes the above into Register, Login and FederatedLogin.
//
// # Basic Usage
//
//	issuer, err := memberauth.NewTokenIssuer(memberauth.TokenConfig{SigningKey: key})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	svc := memberauth.NewAuthService(stores.NewFSUserStore("/path/to/storage"), issuer,
//	    memberauth.WithIdentityProvider("github", oauth2.NewGithubProvider()),
//	)
//
//	r := mux.NewRouter()
//	(&memberauth.APIHandler{Service: svc}).Routes(r)
//
// This serves:
//
//	POST /api/members/register
//	POST /api/members/login
//	POST /api/members/oauth/{provider}/login
//	GET  /api/members/me
//
// # Errors
//
// Every failure the service reports on purpose is an *AuthError carrying an
// ErrorCode; compare with errors.Is against the Err* sentinels. Login keeps
// ErrNoSuchUser and ErrBadCredentials apart, but the HTTP handlers answer both
// with the same 401 "invalid_credentials" body, and unknown-user logins spend
// one decoy hash verification so their timing matches a wrong password.
//
// # Testing
//
// Handlers can be tested without a running server using httptest. Store
// tests use temporary directories, sqlmock and miniredis for isolation.
package memberauth
