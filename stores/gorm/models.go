//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	ma "github.com/panyam/memberauth"
)

// UserModel is the GORM model for members
type UserModel struct {
	ID             string    `gorm:"primaryKey;size:64"`
	Email          string    `gorm:"size:320;not null;uniqueIndex"`
	AccountKind    string    `gorm:"size:16;not null"`
	PasswordHash   string    `gorm:"size:255"`
	Provider       string    `gorm:"size:64"`
	ProviderUserID string    `gorm:"size:255"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (UserModel) TableName() string {
	return "members"
}

// ToUser converts the row back into a memberauth.User
func (m *UserModel) ToUser() (*ma.User, error) {
	account, err := ma.AccountFromFields(ma.AccountKind(m.AccountKind), m.PasswordHash, m.Provider, m.ProviderUserID)
	if err != nil {
		return nil, err
	}
	return &ma.User{ID: m.ID, Email: m.Email, Account: account, CreatedAt: m.CreatedAt}, nil
}

// UserToModel flattens a memberauth.User into a row
func UserToModel(u *ma.User) *UserModel {
	kind, hash, provider, providerUserID := ma.AccountFields(u.Account)
	return &UserModel{
		ID:             u.ID,
		Email:          u.Email,
		AccountKind:    string(kind),
		PasswordHash:   hash,
		Provider:       provider,
		ProviderUserID: providerUserID,
		CreatedAt:      u.CreatedAt,
	}
}
