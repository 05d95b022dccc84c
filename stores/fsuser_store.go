package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	ma "github.com/panyam/memberauth"
)

// FSUser is the JSON document stored for each user
type FSUser struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	AccountKind    ma.AccountKind `json:"account_kind"`
	PasswordHash   string         `json:"password_hash,omitempty"`
	Provider       string         `json:"provider,omitempty"`
	ProviderUserID string         `json:"provider_user_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// FSUserStore stores one JSON file per user under StoragePath/users.
// Files are named by the SHA-256 of the email and are created exclusively,
// which is what makes emails unique across processes sharing the directory.
type FSUserStore struct {
	StoragePath string
}

func NewFSUserStore(storagePath string) *FSUserStore {
	return &FSUserStore{StoragePath: storagePath}
}

func (s *FSUserStore) getUserPath(email string) string {
	return filepath.Join(s.StoragePath, "users", emailKey(email)+".json")
}

func (s *FSUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := os.Stat(s.getUserPath(email))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *FSUserStore) FindByEmail(ctx context.Context, email string) (*ma.User, error) {
	data, err := os.ReadFile(s.getUserPath(email))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ma.ErrUserNotFound
		}
		return nil, err
	}

	var rec FSUser
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode user file: %w", err)
	}
	// guards against a sha256 collision, however unlikely
	if rec.Email != email {
		return nil, ma.ErrUserNotFound
	}

	account, err := ma.AccountFromFields(rec.AccountKind, rec.PasswordHash, rec.Provider, rec.ProviderUserID)
	if err != nil {
		return nil, err
	}
	return &ma.User{ID: rec.ID, Email: rec.Email, Account: account, CreatedAt: rec.CreatedAt}, nil
}

func (s *FSUserStore) SaveUser(ctx context.Context, user *ma.User) (*ma.User, error) {
	kind, hash, provider, providerUserID := ma.AccountFields(user.Account)
	rec := FSUser{
		ID:             uuid.NewString(),
		Email:          user.Email,
		AccountKind:    kind,
		PasswordHash:   hash,
		Provider:       provider,
		ProviderUserID: providerUserID,
		CreatedAt:      time.Now().UTC(),
	}

	path := s.getUserPath(user.Email)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, err
	}

	if err := writeExclusiveFile(path, data); err != nil {
		if errors.Is(err, errFileExists) {
			return nil, ma.ErrDuplicateEmail
		}
		return nil, err
	}

	return &ma.User{ID: rec.ID, Email: rec.Email, Account: user.Account, CreatedAt: rec.CreatedAt}, nil
}
