package credstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/courier/internal/provider"
)

func newStoreWithMock(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return New(mock), mock
}

func TestKeyEncodeDecode(t *testing.T) {
	k := Key{Category: "sender-key", ID: "abc:123"}
	assert.Equal(t, "sender-key-abc:123", k.encode())
	assert.Equal(t, "abc:123", decodeID("sender-key", k.encode()))
}

func TestLoadAbsentSynthesizesFreshCreds(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`select value from auth_credentials`).
		WithArgs("s1", "creds").
		WillReturnError(pgx.ErrNoRows)

	creds, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.False(t, creds.Registered())
	assert.NotEmpty(t, creds.NoiseKey)
	assert.NotZero(t, creds.RegistrationID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCredsLoadRoundTrip(t *testing.T) {
	store, mock := newStoreWithMock(t)

	saved := provider.NewCreds()
	saved.Me = "628123@s.whatsapp.net"
	raw, err := json.Marshal(saved)
	require.NoError(t, err)

	mock.ExpectExec(`insert into auth_credentials`).
		WithArgs("s1", "creds", raw).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`select value from auth_credentials`).
		WithArgs("s1", "creds").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(raw))

	require.NoError(t, store.SaveCreds(context.Background(), "s1", saved))

	loaded, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetManyUpsertsAndTombstones(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`insert into auth_credentials`).
		WithArgs("s1", "pre-key-1", []byte(`{"k":1}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.SetMany(context.Background(), "s1", "pre-key", map[string][]byte{
		"1": []byte(`{"k":1}`),
	})
	require.NoError(t, err)

	// Tombstone deletes the row instead of writing a null.
	mock.ExpectExec(`delete from auth_credentials where session_id = \$1 and key = \$2`).
		WithArgs("s1", "pre-key-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err = store.SetMany(context.Background(), "s1", "pre-key", map[string][]byte{
		"1": nil,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetManyDecodesIDs(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`select key, value from auth_credentials`).
		WithArgs("s1", []string{"session-a", "session-b"}).
		WillReturnRows(pgxmock.NewRows([]string{"key", "value"}).
			AddRow("session-a", []byte(`{"v":1}`)))

	got, err := store.GetMany(context.Background(), "s1", "session", []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"v":1}`, string(got["a"]))
	_, ok := got["b"]
	assert.False(t, ok, "missing ids are absent, not present with nil")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetManyEmptyIDsSkipsQuery(t *testing.T) {
	store, mock := newStoreWithMock(t)

	got, err := store.GetMany(context.Background(), "s1", "session", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAll(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`delete from auth_credentials where session_id = \$1`).
		WithArgs("s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	require.NoError(t, store.DeleteAll(context.Background(), "s1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionKeysBindsSession(t *testing.T) {
	store, mock := newStoreWithMock(t)
	keys := store.SessionKeys("s9")

	mock.ExpectExec(`insert into auth_credentials`).
		WithArgs("s9", "app-state-x", []byte(`{}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`select key, value from auth_credentials`).
		WithArgs("s9", []string{"app-state-x"}).
		WillReturnRows(pgxmock.NewRows([]string{"key", "value"}).
			AddRow("app-state-x", []byte(`{}`)))

	require.NoError(t, keys.SetMany(context.Background(), "app-state", map[string][]byte{"x": []byte(`{}`)}))
	got, err := keys.GetMany(context.Background(), "app-state", []string{"x"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
