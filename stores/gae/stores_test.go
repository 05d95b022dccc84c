//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ma "github.com/panyam/memberauth"
)

// fakeTxn keeps entities in a map keyed by key name
type fakeTxn struct {
	entities map[string]*MemberEntity
	getErr   error
}

func (f *fakeTxn) Get(key *datastore.Key, dst interface{}) error {
	if f.getErr != nil {
		return f.getErr
	}
	e, ok := f.entities[key.Name]
	if !ok {
		return datastore.ErrNoSuchEntity
	}
	*dst.(*MemberEntity) = *e
	return nil
}

func (f *fakeTxn) Put(key *datastore.Key, src interface{}) (*datastore.PendingKey, error) {
	f.entities[key.Name] = src.(*MemberEntity)
	return nil, nil
}

func TestInsertIfAbsent(t *testing.T) {
	store := &UserStore{namespace: "tenant-1"}
	key := store.namespacedKey(KindMember, "a@x.io")
	tx := &fakeTxn{entities: map[string]*MemberEntity{}}

	first := UserToEntity(&ma.User{ID: "u1", Email: "a@x.io", Account: ma.LocalAccount{PasswordHash: "h1"}}, key)
	require.NoError(t, insertIfAbsent(tx, key, first))

	second := UserToEntity(&ma.User{ID: "u2", Email: "a@x.io", Account: ma.LocalAccount{PasswordHash: "h2"}}, key)
	assert.ErrorIs(t, insertIfAbsent(tx, key, second), ma.ErrDuplicateEmail)
	assert.Equal(t, "u1", tx.entities["a@x.io"].ID, "first write must survive")

	down := errors.New("datastore unavailable")
	tx.getErr = down
	assert.ErrorIs(t, insertIfAbsent(tx, store.namespacedKey(KindMember, "b@x.io"), first), down)
}

// newEmulatorStore connects to the Datastore emulator named by
// DATASTORE_EMULATOR_HOST, in a namespace unique to the test
func newEmulatorStore(t *testing.T) *UserStore {
	t.Helper()
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("DATASTORE_EMULATOR_HOST not set")
	}
	client, err := datastore.NewClient(context.Background(), "memberauth-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewUserStore(client, "test-"+uuid.NewString())
}

func TestUserStore_SaveAndFind(t *testing.T) {
	store := newEmulatorStore(t)
	ctx := context.Background()

	_, err := store.FindByEmail(ctx, "a@x.io")
	assert.ErrorIs(t, err, ma.ErrUserNotFound)

	saved, err := store.SaveUser(ctx, &ma.User{Email: "a@x.io", Account: ma.LocalAccount{PasswordHash: "h1"}})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	exists, err := store.ExistsByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.True(t, exists)

	found, err := store.FindByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)
	assert.Equal(t, ma.LocalAccount{PasswordHash: "h1"}, found.Account)

	_, err = store.SaveUser(ctx, &ma.User{Email: "a@x.io", Account: ma.FederatedAccount{Provider: "kakao", ProviderUserID: "1"}})
	assert.ErrorIs(t, err, ma.ErrDuplicateEmail)

	found, err = store.FindByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)
}

func TestUserStore_ConcurrentSavesOneWinner(t *testing.T) {
	store := newEmulatorStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.SaveUser(ctx, &ma.User{Email: "race@x.io", Account: ma.LocalAccount{PasswordHash: "h"}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ma.ErrDuplicateEmail), errors.Is(err, datastore.ErrConcurrentTransaction):
				// lost the race; nothing was written
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
