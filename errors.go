package memberauth

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the kind of an expected authentication failure.
type ErrorCode string

const (
	ErrCodeDuplicateEmail          ErrorCode = "duplicate_email"
	ErrCodeNoSuchUser              ErrorCode = "no_such_user"
	ErrCodeBadCredentials          ErrorCode = "bad_credentials"
	ErrCodeInvalidCredentialFormat ErrorCode = "invalid_credential_format"
	ErrCodeTokenExpired            ErrorCode = "token_expired"
	ErrCodeTokenInvalid            ErrorCode = "token_invalid"
	ErrCodeIdentityProvider        ErrorCode = "identity_provider_error"
)

// AuthError is a typed business outcome returned by the hasher, the token
// issuer and the AuthService. Two AuthErrors match under errors.Is when their
// codes are equal, so callers can compare against the Err* sentinels below
// regardless of message or wrapped cause.
type AuthError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewAuthError creates an AuthError with the given code and message
func NewAuthError(code ErrorCode, message string) *AuthError {
	return &AuthError{Code: code, Message: message}
}

// WrapAuthError creates an AuthError that keeps cause available to errors.Unwrap
func WrapAuthError(code ErrorCode, message string, cause error) *AuthError {
	return &AuthError{Code: code, Message: message, Err: cause}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrDuplicateEmail          = NewAuthError(ErrCodeDuplicateEmail, "email is already registered")
	ErrNoSuchUser              = NewAuthError(ErrCodeNoSuchUser, "user not found")
	ErrBadCredentials          = NewAuthError(ErrCodeBadCredentials, "password does not match")
	ErrInvalidCredentialFormat = NewAuthError(ErrCodeInvalidCredentialFormat, "stored credential is malformed")
	ErrTokenExpired            = NewAuthError(ErrCodeTokenExpired, "token has expired")
	ErrTokenInvalid            = NewAuthError(ErrCodeTokenInvalid, "token is invalid")
	ErrIdentityProvider        = NewAuthError(ErrCodeIdentityProvider, "identity provider failed")
)

// ErrUserNotFound is returned by UserStore.FindByEmail when no user has the email.
// It is a store-level signal; the AuthService reports it to callers as ErrNoSuchUser.
var ErrUserNotFound = errors.New("user not found")

// CodeOf returns the ErrorCode of the first AuthError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return ""
}
