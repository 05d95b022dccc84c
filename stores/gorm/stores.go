//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	ma "github.com/panyam/memberauth"
)

// AutoMigrate runs database migrations for the members table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserModel{})
}

// UserStore implements ma.UserStore using GORM
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*ma.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ma.ErrUserNotFound
		}
		return nil, err
	}
	return model.ToUser()
}

func (s *UserStore) SaveUser(ctx context.Context, user *ma.User) (*ma.User, error) {
	model := UserToModel(user)
	model.ID = uuid.NewString()
	model.CreatedAt = model.CreatedAt.UTC()

	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ma.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &ma.User{ID: model.ID, Email: model.Email, Account: user.Account, CreatedAt: model.CreatedAt}, nil
}

// isUniqueViolation recognizes duplicate keys whether or not the dialector
// translates errors (gorm.Config.TranslateError)
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
