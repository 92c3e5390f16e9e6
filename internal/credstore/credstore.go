// Package credstore persists per-session protocol credentials in postgres.
// It is the sole durable source of truth for resuming a session after the
// live handle is lost. Rows are keyed by (session_id, key): the fixed key
// "creds" holds the primary identity credential, all other keys encode a
// (category, id) pair supplied by the protocol layer and not interpreted here.
package credstore

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/you/courier/internal/provider"
)

const primaryKey = "creds"

// Key is a tagged credential sub-key. Encoded to storage as "category-id".
type Key struct {
	Category string
	ID       string
}

func (k Key) encode() string { return k.Category + "-" + k.ID }

func decodeID(category, stored string) string {
	return stored[len(category)+1:]
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db DB
}

func New(db DB) *Store { return &Store{db: db} }

// Load fetches the primary credential for a session, synthesizing a fresh
// unpaired credential when none is persisted yet.
func (s *Store) Load(ctx context.Context, sessionID string) (*provider.Creds, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`select value from auth_credentials where session_id = $1 and key = $2`,
		sessionID, primaryKey,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return provider.NewCreds(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load creds")
	}

	var creds provider.Creds
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, errors.Wrap(err, "decode creds")
	}
	return &creds, nil
}

// SaveCreds upserts the primary credential under the fixed "creds" key.
func (s *Store) SaveCreds(ctx context.Context, sessionID string, creds *provider.Creds) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return errors.Wrap(err, "encode creds")
	}
	return s.upsert(ctx, sessionID, primaryKey, raw)
}

// GetMany returns the values found for the given ids of one category. Missing
// ids are simply absent from the result.
func (s *Store) GetMany(ctx context.Context, sessionID, category string, ids []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = Key{Category: category, ID: id}.encode()
	}

	rows, err := s.db.Query(ctx,
		`select key, value from auth_credentials where session_id = $1 and key = any($2)`,
		sessionID, keys,
	)
	if err != nil {
		return nil, errors.Wrap(err, "get keys")
	}
	defer rows.Close()

	for rows.Next() {
		var stored string
		var value []byte
		if err := rows.Scan(&stored, &value); err != nil {
			return nil, err
		}
		out[decodeID(category, stored)] = value
	}
	return out, rows.Err()
}

// SetMany writes the given id->value mapping for one category. A nil value is
// a tombstone and deletes the row. Each key is applied independently; no
// cross-row transaction (the protocol layer tolerates partial persistence of
// independent categories).
func (s *Store) SetMany(ctx context.Context, sessionID, category string, data map[string][]byte) error {
	for id, value := range data {
		key := Key{Category: category, ID: id}.encode()
		if value == nil {
			if _, err := s.db.Exec(ctx,
				`delete from auth_credentials where session_id = $1 and key = $2`,
				sessionID, key,
			); err != nil {
				return errors.Wrapf(err, "delete key %s", key)
			}
			continue
		}
		if err := s.upsert(ctx, sessionID, key, value); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAll purges every credential row for a session.
func (s *Store) DeleteAll(ctx context.Context, sessionID string) error {
	_, err := s.db.Exec(ctx,
		`delete from auth_credentials where session_id = $1`, sessionID)
	return errors.Wrap(err, "delete creds")
}

func (s *Store) upsert(ctx context.Context, sessionID, key string, value []byte) error {
	_, err := s.db.Exec(ctx, `
		insert into auth_credentials (session_id, key, value)
		values ($1, $2, $3)
		on conflict (session_id, key) do update set value = excluded.value`,
		sessionID, key, value,
	)
	return errors.Wrapf(err, "upsert key %s", key)
}

// SessionKeys binds the store to one session as a provider.KeyStore.
func (s *Store) SessionKeys(sessionID string) provider.KeyStore {
	return &sessionKeys{store: s, sessionID: sessionID}
}

type sessionKeys struct {
	store     *Store
	sessionID string
}

func (k *sessionKeys) GetMany(ctx context.Context, category string, ids []string) (map[string][]byte, error) {
	return k.store.GetMany(ctx, k.sessionID, category, ids)
}

func (k *sessionKeys) SetMany(ctx context.Context, category string, data map[string][]byte) error {
	return k.store.SetMany(ctx, k.sessionID, category, data)
}
