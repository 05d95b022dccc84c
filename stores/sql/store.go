// Package sqlstore implements memberauth.UserStore on database/sql with the
// PostgreSQL driver from github.com/lib/pq.
//
// Email uniqueness comes from the UNIQUE constraint created by Migrate. A
// violation (SQLSTATE 23505) is returned as memberauth.ErrDuplicateEmail.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	ma "github.com/panyam/memberauth"
)

// DriverName is the database/sql driver registered by lib/pq
const DriverName = "postgres"

const uniqueViolation = pq.ErrorCode("23505")

const schema = `CREATE TABLE IF NOT EXISTS members (
	id               TEXT PRIMARY KEY,
	email            TEXT NOT NULL UNIQUE,
	account_kind     TEXT NOT NULL,
	password_hash    TEXT NOT NULL DEFAULT '',
	provider         TEXT NOT NULL DEFAULT '',
	provider_user_id TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL
)`

// UserStore keeps members in a single PostgreSQL table
type UserStore struct {
	db *sql.DB
}

// Open connects to dsn with lib/pq and verifies the connection
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Migrate creates the members table if it does not exist
func (s *UserStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate members table: %w", err)
	}
	return nil
}

func (s *UserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM members WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*ma.User, error) {
	var (
		user                           ma.User
		kind, hash, provider, provUser string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, account_kind, password_hash, provider, provider_user_id, created_at
		 FROM members WHERE email = $1`, email).
		Scan(&user.ID, &user.Email, &kind, &hash, &provider, &provUser, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ma.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	user.Account, err = ma.AccountFromFields(ma.AccountKind(kind), hash, provider, provUser)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) SaveUser(ctx context.Context, user *ma.User) (*ma.User, error) {
	kind, hash, provider, provUser := ma.AccountFields(user.Account)
	saved := &ma.User{
		ID:        uuid.NewString(),
		Email:     user.Email,
		Account:   user.Account,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, email, account_kind, password_hash, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		saved.ID, saved.Email, string(kind), hash, provider, provUser, saved.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ma.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return saved, nil
}
