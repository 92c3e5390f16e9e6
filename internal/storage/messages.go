package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/you/courier/internal/domain"
)

// InsertMessageLog records an outbound attempt with status QUEUED and returns
// its id.
func (s *Store) InsertMessageLog(ctx context.Context, tenantID, to, content string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(ctx, `
		insert into message_logs (id, tenant_id, "to", content, status)
		values ($1, $2, $3, $4, $5)`,
		id, tenantID, to, content, domain.MessageQueued,
	)
	return id, errors.Wrap(err, "insert message log")
}

// MarkLogSent transitions a log entry to SENT.
func (s *Store) MarkLogSent(ctx context.Context, logID string) error {
	_, err := s.db.Exec(ctx, `
		update message_logs set status = $2, error = null, updated_at = now()
		 where id = $1`, logID, domain.MessageSent)
	return errors.Wrap(err, "mark log sent")
}

// MarkLogFailed transitions a log entry to FAILED with the final error detail.
func (s *Store) MarkLogFailed(ctx context.Context, logID, errMsg string) error {
	_, err := s.db.Exec(ctx, `
		update message_logs set status = $2, error = $3, updated_at = now()
		 where id = $1`, logID, domain.MessageFailed, errMsg)
	return errors.Wrap(err, "mark log failed")
}
