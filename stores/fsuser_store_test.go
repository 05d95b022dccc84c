package stores_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	ma "github.com/panyam/memberauth"
	"github.com/panyam/memberauth/stores"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSUserStore_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	store := stores.NewFSUserStore(t.TempDir())

	exists, err := store.ExistsByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.False(t, exists)

	saved, err := store.SaveUser(ctx, &ma.User{Email: "a@x.io", Account: ma.LocalAccount{PasswordHash: "h1"}})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())

	exists, err = store.ExistsByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.True(t, exists)

	found, err := store.FindByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)
	assert.Equal(t, ma.LocalAccount{PasswordHash: "h1"}, found.Account)

	// emails are case-sensitive
	_, err = store.FindByEmail(ctx, "A@x.io")
	assert.ErrorIs(t, err, ma.ErrUserNotFound)
}

func TestFSUserStore_FederatedAccount(t *testing.T) {
	ctx := context.Background()
	store := stores.NewFSUserStore(t.TempDir())

	_, err := store.SaveUser(ctx, &ma.User{
		Email:   "k@x.io",
		Account: ma.FederatedAccount{Provider: "kakao", ProviderUserID: "42"},
	})
	require.NoError(t, err)

	found, err := store.FindByEmail(ctx, "k@x.io")
	require.NoError(t, err)
	assert.Equal(t, ma.FederatedAccount{Provider: "kakao", ProviderUserID: "42"}, found.Account)
}

func TestFSUserStore_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := stores.NewFSUserStore(t.TempDir())

	_, err := store.SaveUser(ctx, &ma.User{Email: "a@x.io", Account: ma.LocalAccount{PasswordHash: "first"}})
	require.NoError(t, err)

	_, err = store.SaveUser(ctx, &ma.User{Email: "a@x.io", Account: ma.LocalAccount{PasswordHash: "second"}})
	assert.ErrorIs(t, err, ma.ErrDuplicateEmail)

	found, err := store.FindByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, ma.LocalAccount{PasswordHash: "first"}, found.Account)
}

func TestFSUserStore_ConcurrentSavesOneWinner(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := stores.NewFSUserStore(dir)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.SaveUser(ctx, &ma.User{Email: "race@x.io", Account: ma.LocalAccount{PasswordHash: "h"}})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ma.ErrDuplicateEmail)
		}
	}
	assert.Equal(t, 1, wins)

	// no temp files are left behind
	entries, err := os.ReadDir(filepath.Join(dir, "users"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFSUserStore_UnknownAccountKind(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := stores.NewFSUserStore(dir)

	saved, err := store.SaveUser(ctx, &ma.User{Email: "a@x.io", Account: ma.LocalAccount{PasswordHash: "h"}})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "users"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	path := filepath.Join(dir, "users", entries[0].Name())
	body := `{"id":"` + saved.ID + `","email":"a@x.io","account_kind":"magic"}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	_, err = store.FindByEmail(ctx, "a@x.io")
	assert.ErrorIs(t, err, ma.ErrInvalidCredentialFormat)
}

func TestMemoryUserStore(t *testing.T) {
	ctx := context.Background()
	store := stores.NewMemoryUserStore()

	_, err := store.FindByEmail(ctx, "a@x.io")
	assert.ErrorIs(t, err, ma.ErrUserNotFound)

	_, err = store.SaveUser(ctx, &ma.User{Email: "a@x.io", Account: ma.LocalAccount{PasswordHash: "h"}})
	require.NoError(t, err)
	_, err = store.SaveUser(ctx, &ma.User{Email: "a@x.io", Account: ma.LocalAccount{PasswordHash: "h2"}})
	assert.ErrorIs(t, err, ma.ErrDuplicateEmail)
	assert.Equal(t, 1, store.Count())
}
