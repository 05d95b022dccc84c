//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"

	ma "github.com/panyam/memberauth"
)

// KindMember is the Datastore kind holding users
const KindMember = "Member"

// UserStore implements ma.UserStore using Google Cloud Datastore
type UserStore struct {
	client    *datastore.Client
	namespace string
}

// NewUserStore creates a new Datastore-backed UserStore
func NewUserStore(client *datastore.Client, namespace string) *UserStore {
	return &UserStore{client: client, namespace: namespace}
}

func (s *UserStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *UserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var entity MemberEntity
	err := s.client.Get(ctx, s.namespacedKey(KindMember, email), &entity)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*ma.User, error) {
	var entity MemberEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindMember, email), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, ma.ErrUserNotFound
		}
		return nil, err
	}
	return entity.ToUser()
}

func (s *UserStore) SaveUser(ctx context.Context, user *ma.User) (*ma.User, error) {
	key := s.namespacedKey(KindMember, user.Email)
	saved := &ma.User{
		ID:        uuid.NewString(),
		Email:     user.Email,
		Account:   user.Account,
		CreatedAt: time.Now().UTC(),
	}
	entity := UserToEntity(saved, key)

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		return insertIfAbsent(tx, key, entity)
	})
	if err != nil {
		if errors.Is(err, ma.ErrDuplicateEmail) {
			return nil, ma.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	return saved, nil
}

// txn is the part of *datastore.Transaction insertIfAbsent needs
type txn interface {
	Get(key *datastore.Key, dst interface{}) error
	Put(key *datastore.Key, src interface{}) (*datastore.PendingKey, error)
}

// insertIfAbsent puts entity under key unless the key already holds a member
func insertIfAbsent(tx txn, key *datastore.Key, entity *MemberEntity) error {
	var existing MemberEntity
	err := tx.Get(key, &existing)
	if err == nil {
		return ma.ErrDuplicateEmail
	}
	if !errors.Is(err, datastore.ErrNoSuchEntity) {
		return err
	}
	_, err = tx.Put(key, entity)
	return err
}
