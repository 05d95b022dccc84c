package stores

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	ma "github.com/panyam/memberauth"
)

// MemoryUserStore keeps users in a map. It is meant for tests and single
// process development servers; nothing survives a restart.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]ma.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]ma.User)}
}

func (s *MemoryUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[email]
	return ok, nil
}

func (s *MemoryUserStore) FindByEmail(ctx context.Context, email string) (*ma.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[email]
	if !ok {
		return nil, ma.ErrUserNotFound
	}
	return &user, nil
}

func (s *MemoryUserStore) SaveUser(ctx context.Context, user *ma.User) (*ma.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return nil, ma.ErrDuplicateEmail
	}
	saved := ma.User{
		ID:        uuid.NewString(),
		Email:     user.Email,
		Account:   user.Account,
		CreatedAt: time.Now().UTC(),
	}
	s.users[user.Email] = saved
	return &saved, nil
}

// Count returns the number of stored users
func (s *MemoryUserStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
