package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/you/courier/internal/domain"
)

// GetAdminByUsername fetches an operator account for login.
func (s *Store) GetAdminByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	var a domain.Admin
	err := s.db.QueryRow(ctx, `
		select id, username, password, created_at from admins where username = $1`,
		username,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get admin")
	}
	return &a, nil
}

// SeedAdmin inserts an operator account if the username is free.
func (s *Store) SeedAdmin(ctx context.Context, username, passwordHash string) error {
	_, err := s.db.Exec(ctx, `
		insert into admins (username, password) values ($1, $2)
		on conflict (username) do nothing`,
		username, passwordHash,
	)
	return errors.Wrap(err, "seed admin")
}
