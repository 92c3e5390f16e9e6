package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/you/courier/internal/domain"
)

// CreateTenant inserts a tenant and its session row in one transaction. The
// session id equals the tenant id.
func (s *Store) CreateTenant(ctx context.Context, name, apiKey string) (t *domain.Tenant, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	t = &domain.Tenant{ID: uuid.NewString(), Name: name, APIKey: apiKey}
	err = tx.QueryRow(ctx, `
		insert into tenants (id, name, api_key)
		values ($1, $2, $3)
		returning created_at`,
		t.ID, t.Name, t.APIKey,
	).Scan(&t.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert tenant")
	}

	// session_id is varchar while tenant_id is uuid, so the id is bound twice;
	// sharing one placeholder across both columns fails parameter type
	// deduction at prepare time.
	_, err = tx.Exec(ctx, `
		insert into sessions (session_id, tenant_id, status)
		values ($1, $2, $3)`,
		t.ID, t.ID, domain.StatusDisconnected,
	)
	if err != nil {
		return nil, errors.Wrap(err, "insert session")
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return t, nil
}

// GetTenant fetches a tenant by id. Returns ErrNotFound if absent.
func (s *Store) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := s.db.QueryRow(ctx, `
		select id, name, api_key, webhook_url, created_at
		  from tenants where id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.APIKey, &t.WebhookURL, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get tenant")
	}
	return &t, nil
}

// DeleteTenant removes a tenant; the session row cascades.
func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `delete from tenants where id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete tenant")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateAPIKey atomically replaces a tenant's API key; the old key stops
// authenticating as soon as the update commits.
func (s *Store) RotateAPIKey(ctx context.Context, id, newKey string) error {
	tag, err := s.db.Exec(ctx,
		`update tenants set api_key = $2 where id = $1`, id, newKey)
	if err != nil {
		return errors.Wrap(err, "rotate api key")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTenants returns a page of tenants joined with session status, newest
// first, optionally filtered by a case-insensitive name search.
func (s *Store) ListTenants(ctx context.Context, search string, limit, offset int) ([]*domain.TenantOverview, error) {
	rows, err := s.db.Query(ctx, `
		select t.id, t.name, t.api_key, coalesce(se.status, $4), se.jid, t.created_at
		  from tenants t
		  left join sessions se on se.tenant_id = t.id
		 where ($1 = '' or t.name ilike '%' || $1 || '%')
		 order by t.created_at desc
		 limit $2 offset $3`,
		search, limit, offset, domain.StatusDisconnected,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list tenants")
	}
	defer rows.Close()

	var out []*domain.TenantOverview
	for rows.Next() {
		var t domain.TenantOverview
		if err := rows.Scan(&t.ID, &t.Name, &t.APIKey, &t.Status, &t.JID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// CountTenants returns the total matching a search, for pagination.
func (s *Store) CountTenants(ctx context.Context, search string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		select count(*) from tenants
		 where ($1 = '' or name ilike '%' || $1 || '%')`, search,
	).Scan(&n)
	return n, errors.Wrap(err, "count tenants")
}
