package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// User is an operator account. PasswordHash is the client-side SHA-256
// of the password; the plaintext is never stored or transmitted.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsAdmin      bool
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserByCredentials returns the active user matching the username and
// password hash, or nil when no such user exists.
func (s *Store) UserByCredentials(ctx context.Context, username, passwordHash string) (*User, error) {
	const q = `
		SELECT id, username, password_hash, is_admin, is_active, last_login_at, created_at, updated_at
		FROM users
		WHERE username = $1 AND password_hash = $2 AND is_active`

	user, err := s.scanUser(s.pool.QueryRow(ctx, q, username, passwordHash))
	if err != nil {
		return nil, fmt.Errorf("query user by credentials: %w", err)
	}
	return user, nil
}

// UserByID returns the user with the given ID, or nil when not found.
func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	const q = `
		SELECT id, username, password_hash, is_admin, is_active, last_login_at, created_at, updated_at
		FROM users
		WHERE id = $1`

	user, err := s.scanUser(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("query user by id: %w", err)
	}
	return user, nil
}

// TouchLastLogin records a successful login timestamp.
func (s *Store) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

func (s *Store) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin,
		&u.IsActive, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
