package memberauth

import (
	"context"
	"fmt"
	"time"
)

// AccountKind tells how a user proves who they are
type AccountKind string

const (
	AccountLocal     AccountKind = "local"     // email + password
	AccountFederated AccountKind = "federated" // provisioned by an identity provider
)

// Account is either a LocalAccount or a FederatedAccount
type Account interface {
	Kind() AccountKind
}

// LocalAccount authenticates with a password whose hash is stored here
type LocalAccount struct {
	PasswordHash string
}

func (LocalAccount) Kind() AccountKind { return AccountLocal }

// FederatedAccount was created by a federated login. It has no password and
// can never authenticate through Login.
type FederatedAccount struct {
	Provider       string
	ProviderUserID string
}

func (FederatedAccount) Kind() AccountKind { return AccountFederated }

// User is a registered member. Email is the unique, case-sensitive key.
type User struct {
	ID        string
	Email     string
	Account   Account
	CreatedAt time.Time
}

// ExternalIdentity is the verified identity an IdentityProvider returns
type ExternalIdentity struct {
	Provider       string
	ProviderUserID string
	Email          string
}

// UserStore persists users keyed by email.
//
// Implementations must enforce email uniqueness on the write path: SaveUser
// returns ErrDuplicateEmail if another user already holds the email, even when
// two saves race. The AuthService relies on this and never locks.
type UserStore interface {
	// ExistsByEmail reports whether a user with this exact email exists
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// FindByEmail returns the user or ErrUserNotFound
	FindByEmail(ctx context.Context, email string) (*User, error)

	// SaveUser inserts a new user, assigning ID and CreatedAt
	SaveUser(ctx context.Context, user *User) (*User, error)
}

// IdentityProvider exchanges a provider-issued access token for the identity
// it belongs to. Network, protocol and auth failures are all returned as errors.
type IdentityProvider interface {
	ExchangeToken(ctx context.Context, accessToken string) (*ExternalIdentity, error)
}

// IdentityProviderFunc adapts a function to IdentityProvider
type IdentityProviderFunc func(ctx context.Context, accessToken string) (*ExternalIdentity, error)

func (f IdentityProviderFunc) ExchangeToken(ctx context.Context, accessToken string) (*ExternalIdentity, error) {
	return f(ctx, accessToken)
}

// AccountFields flattens an Account into the columns stores persist
func AccountFields(a Account) (kind AccountKind, passwordHash, provider, providerUserID string) {
	switch acc := a.(type) {
	case LocalAccount:
		return AccountLocal, acc.PasswordHash, "", ""
	case *LocalAccount:
		return AccountLocal, acc.PasswordHash, "", ""
	case FederatedAccount:
		return AccountFederated, "", acc.Provider, acc.ProviderUserID
	case *FederatedAccount:
		return AccountFederated, "", acc.Provider, acc.ProviderUserID
	}
	return "", "", "", ""
}

// AccountFromFields rebuilds an Account from stored columns
func AccountFromFields(kind AccountKind, passwordHash, provider, providerUserID string) (Account, error) {
	switch kind {
	case AccountLocal:
		return LocalAccount{PasswordHash: passwordHash}, nil
	case AccountFederated:
		return FederatedAccount{Provider: provider, ProviderUserID: providerUserID}, nil
	}
	return nil, WrapAuthError(ErrCodeInvalidCredentialFormat, "unknown account kind",
		fmt.Errorf("account kind %q", kind))
}
