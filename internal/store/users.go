package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/stepchallenge/stepd/internal/model"
)

// CreateUser inserts a new user. The ID and CreatedAt fields are populated
// after insert.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	q := `INSERT INTO users (email, name, team, is_admin, created_at)
	      VALUES (:email, :name, :team, :is_admin, :created_at)`
	u.Email = normalizeEmail(u.Email)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.NamedExecContext(ctx, q, u)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get user id: %w", err)
	}
	u.ID = id
	return nil
}

// UpsertUserByEmail returns the user with the given email, creating a
// skeleton record if none exists. Identities appear the first time a magic
// link names them.
func (s *Store) UpsertUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = normalizeEmail(email)
	u, err := s.GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if err != ErrNotFound {
		return nil, err
	}
	u = &model.User{Email: email}
	if err := s.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByID returns the user with the given ID.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	if err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE id = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetUserByEmail returns the user with the given email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE email = ?", normalizeEmail(email)); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// ListUsers returns all users ordered by email.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY email"); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateUser updates a user's profile fields and admin flag.
func (s *Store) UpdateUser(ctx context.Context, u *model.User) error {
	q := `UPDATE users SET name = :name, team = :team, is_admin = :is_admin WHERE id = :id`
	result, err := s.db.NamedExecContext(ctx, q, u)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserAdmin flips the admin flag for the user with the given email.
func (s *Store) SetUserAdmin(ctx context.Context, email string, isAdmin bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET is_admin = ? WHERE email = ?", isAdmin, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("set user admin: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set user admin: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAdmins returns all users with the admin flag set, ordered by email.
func (s *Store) ListAdmins(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.SelectContext(ctx, &users, "SELECT * FROM users WHERE is_admin = 1 ORDER BY email"); err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return users, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
