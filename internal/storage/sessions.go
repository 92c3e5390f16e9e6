package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/you/courier/internal/domain"
)

// SessionExists reports whether a session row is still present. Used as the
// durable guard against reconnecting a concurrently deleted session.
func (s *Store) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`select exists (select 1 from sessions where session_id = $1)`, sessionID,
	).Scan(&exists)
	return exists, errors.Wrap(err, "session exists")
}

// UpdateSessionStatus persists a status transition.
func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error {
	_, err := s.db.Exec(ctx, `
		update sessions set status = $2, updated_at = now()
		 where session_id = $1`, sessionID, status)
	return errors.Wrap(err, "update session status")
}

// UpdateSessionConnected records a successful connection with its identity.
func (s *Store) UpdateSessionConnected(ctx context.Context, sessionID, jid string) error {
	_, err := s.db.Exec(ctx, `
		update sessions set status = $2, jid = $3, updated_at = now()
		 where session_id = $1`, sessionID, domain.StatusConnected, jid)
	return errors.Wrap(err, "update session connected")
}

// ResetSessionDisconnected clears the identity and resets status, the durable
// half of logout cleanup.
func (s *Store) ResetSessionDisconnected(ctx context.Context, sessionID string) error {
	_, err := s.db.Exec(ctx, `
		update sessions set status = $2, jid = null, updated_at = now()
		 where session_id = $1`, sessionID, domain.StatusDisconnected)
	return errors.Wrap(err, "reset session")
}

// ListSessionIDs returns every persisted session id, for boot-time resume.
func (s *Store) ListSessionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `select session_id from sessions`)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
