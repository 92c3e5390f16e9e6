package storage

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/courier/internal/domain"
)

func newStoreWithMock(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return New(mock), mock
}

func TestCreateTenantInsertsSessionRowInSameTx(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`insert into tenants`).
		WithArgs(pgxmock.AnyArg(), "acme", "key-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(`insert into sessions \(session_id, tenant_id, status\)\s+values \(\$1, \$2, \$3\)`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), domain.StatusDisconnected).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tenant, err := store.CreateTenant(context.Background(), "acme", "key-1")
	require.NoError(t, err)
	assert.NotEmpty(t, tenant.ID)
	assert.Equal(t, "acme", tenant.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTenantNotFound(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`select id, name, api_key, webhook_url, created_at`).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "api_key", "webhook_url", "created_at"}))

	_, err := store.GetTenant(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTenantReportsMissingRow(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`delete from tenants`).
		WithArgs("t1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := store.DeleteTenant(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRotateAPIKey(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`update tenants set api_key`).
		WithArgs("t1", "new-key").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.RotateAPIKey(context.Background(), "t1", "new-key"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionExists(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`select exists`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.SessionExists(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResetSessionClearsIdentity(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`update sessions set status = \$2, jid = null`).
		WithArgs("s1", domain.StatusDisconnected).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.ResetSessionDisconnected(context.Background(), "s1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementJobAttemptReturnsNewCount(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`update dispatch_jobs set attempt = attempt \+ 1`).
		WithArgs("j1").
		WillReturnRows(pgxmock.NewRows([]string{"attempt"}).AddRow(2))

	attempt, err := store.IncrementJobAttempt(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, 2, attempt)
}

func TestPruneJobsTrimsBothTerminalStatuses(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`delete from dispatch_jobs`).
		WithArgs(domain.JobSucceeded, 100).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`delete from dispatch_jobs`).
		WithArgs(domain.JobFailedPerm, 500).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, store.PruneJobs(context.Background(), 100, 500))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedAdminIgnoresExistingUsername(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`insert into admins \(username, password\)[\s\S]*on conflict \(username\) do nothing`).
		WithArgs("superadmin", "hash").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, store.SeedAdmin(context.Background(), "superadmin", "hash"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobRoundTrip(t *testing.T) {
	store, mock := newStoreWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`select id, tenant_id, "to", message, log_id`).
		WithArgs("j1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "tenant_id", "to", "message", "log_id",
			"attempt", "max_attempts", "status", "error", "created_at", "updated_at",
		}).AddRow("j1", "t1", "628123", "hello", "l1", 1, 3, domain.JobQueued, nil, now, now))

	job, err := store.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, "t1", job.TenantID)
	assert.Equal(t, 1, job.Attempt)
	assert.Nil(t, job.Error)
}
