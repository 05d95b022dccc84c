//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
	ma "github.com/panyam/memberauth"
)

// MemberEntity is the Datastore entity for users. Key name is the email.
type MemberEntity struct {
	Key            *datastore.Key `datastore:"__key__"`
	ID             string         `datastore:"id"`
	AccountKind    string         `datastore:"account_kind"`
	PasswordHash   string         `datastore:"password_hash,noindex"`
	Provider       string         `datastore:"provider"`
	ProviderUserID string         `datastore:"provider_user_id"`
	CreatedAt      time.Time      `datastore:"created_at"`
}

func (e *MemberEntity) ToUser() (*ma.User, error) {
	account, err := ma.AccountFromFields(ma.AccountKind(e.AccountKind), e.PasswordHash, e.Provider, e.ProviderUserID)
	if err != nil {
		return nil, err
	}
	email := ""
	if e.Key != nil {
		email = e.Key.Name
	}
	return &ma.User{ID: e.ID, Email: email, Account: account, CreatedAt: e.CreatedAt}, nil
}

func UserToEntity(u *ma.User, key *datastore.Key) *MemberEntity {
	kind, hash, provider, providerUserID := ma.AccountFields(u.Account)
	return &MemberEntity{
		Key:            key,
		ID:             u.ID,
		AccountKind:    string(kind),
		PasswordHash:   hash,
		Provider:       provider,
		ProviderUserID: providerUserID,
		CreatedAt:      u.CreatedAt,
	}
}
