// Package redisstore implements memberauth.UserStore on Redis using
// github.com/go-redis/redis/v8. Each user is a JSON value under
// "<prefix>user:<email>", written with SETNX so only one writer can claim an email.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	ma "github.com/panyam/memberauth"
)

const DefaultKeyPrefix = "memberauth:"

type record struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	AccountKind    ma.AccountKind `json:"account_kind"`
	PasswordHash   string         `json:"password_hash,omitempty"`
	Provider       string         `json:"provider,omitempty"`
	ProviderUserID string         `json:"provider_user_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// UserStore keeps users in Redis
type UserStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewUserStore(client redis.UniversalClient, keyPrefix string) *UserStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &UserStore{client: client, keyPrefix: keyPrefix}
}

func (s *UserStore) userKey(email string) string {
	return s.keyPrefix + "user:" + email
}

func (s *UserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	n, err := s.client.Exists(ctx, s.userKey(email)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return n > 0, nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*ma.User, error) {
	data, err := s.client.Get(ctx, s.userKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ma.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	account, err := ma.AccountFromFields(rec.AccountKind, rec.PasswordHash, rec.Provider, rec.ProviderUserID)
	if err != nil {
		return nil, err
	}
	return &ma.User{ID: rec.ID, Email: rec.Email, Account: account, CreatedAt: rec.CreatedAt}, nil
}

func (s *UserStore) SaveUser(ctx context.Context, user *ma.User) (*ma.User, error) {
	kind, hash, provider, providerUserID := ma.AccountFields(user.Account)
	rec := record{
		ID:             uuid.NewString(),
		Email:          user.Email,
		AccountKind:    kind,
		PasswordHash:   hash,
		Provider:       provider,
		ProviderUserID: providerUserID,
		CreatedAt:      time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	ok, err := s.client.SetNX(ctx, s.userKey(user.Email), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	if !ok {
		return nil, ma.ErrDuplicateEmail
	}
	return &ma.User{ID: rec.ID, Email: rec.Email, Account: user.Account, CreatedAt: rec.CreatedAt}, nil
}
