package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/pkg/types"
)

// CreateUser inserts an account. New accounts are always active. Emails are
// unique case-insensitively.
func (s *Store) CreateUser(ctx context.Context, u *types.User) (int64, error) {
	if u == nil {
		return 0, storage.ErrInvalidInput
	}
	u.Email = strings.TrimSpace(u.Email)
	if u.Email == "" {
		return 0, fmt.Errorf("%w: email is required", storage.ErrInvalidInput)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	u.IsActive = true

	err := s.run(ctx, "create user", func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO users (first_name, last_name, email, is_active, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, strings.TrimSpace(u.FirstName), strings.TrimSpace(u.LastName), u.Email, u.IsActive, u.CreatedAt)
		if err != nil {
			return err
		}
		u.ID, err = res.LastInsertId()
		return err
	})
	return u.ID, err
}

// GetUser retrieves an account by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*types.User, error) {
	var out *types.User
	err := s.run(ctx, "get user", func() error {
		u, err := scanUser(s.db.QueryRowContext(ctx,
			"SELECT id, first_name, last_name, email, is_active, created_at FROM users WHERE id = ?", id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: user %d", storage.ErrNotFound, id)
		}
		out = u
		return err
	})
	return out, err
}

// ListUsers returns every account ordered by last name, then first name.
func (s *Store) ListUsers(ctx context.Context) ([]types.User, error) {
	var out []types.User
	err := s.run(ctx, "list users", func() error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT id, first_name, last_name, email, is_active, created_at FROM users ORDER BY last_name, first_name, id")
		if err != nil {
			return err
		}
		defer rows.Close()

		list := []types.User{}
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			list = append(list, *u)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		out = list
		return nil
	})
	return out, err
}

func scanUser(r rowScanner) (*types.User, error) {
	var u types.User
	if err := r.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
