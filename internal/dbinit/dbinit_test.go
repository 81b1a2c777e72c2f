package dbinit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/juju/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamiwaza-ai/kamiwaza-install/internal/config"
)

// sqlmock's option type is unexported, so callers request ping monitoring
// with a flag rather than passing sqlmock.MonitorPingsOption directly.
func newMock(t *testing.T, monitorPings ...bool) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.MonitorPingsOption(len(monitorPings) > 0 && monitorPings[0]),
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
	)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

type stubConfirmer struct {
	answer bool
	err    error
	asked  int
}

func (s *stubConfirmer) Confirm(string, string) (bool, error) {
	s.asked++
	return s.answer, s.err
}

var specs = []config.DatabaseSpec{
	{Name: "kamiwaza", Schemas: []string{"public", "catalog"}},
}

const verifyQuery = "SELECT count(*) FROM pg_catalog.pg_database WHERE datname = $1"

func TestRun_NonDestructive(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`CREATE DATABASE IF NOT EXISTS "kamiwaza"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "kamiwaza"."public"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "kamiwaza"."catalog"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(verifyQuery).WithArgs("kamiwaza").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	confirm := &stubConfirmer{}
	statuses, err := New(db, specs, confirm, zerolog.Nop()).Run(context.Background(), Options{SkipConfirmation: true})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "kamiwaza", statuses[0].Name)
	assert.Equal(t, []string{"public", "catalog"}, statuses[0].Schemas)
	assert.False(t, statuses[0].Dropped)
	assert.Zero(t, confirm.asked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ResetConfirmed(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`DROP DATABASE IF EXISTS "kamiwaza" CASCADE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE DATABASE IF NOT EXISTS "kamiwaza"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "kamiwaza"."public"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "kamiwaza"."catalog"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(verifyQuery).WithArgs("kamiwaza").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	confirm := &stubConfirmer{answer: true}
	statuses, err := New(db, specs, confirm, zerolog.Nop()).Run(context.Background(), Options{Reset: true})
	require.NoError(t, err)
	assert.True(t, statuses[0].Dropped)
	assert.Equal(t, 1, confirm.asked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ResetDeclined(t *testing.T) {
	db, mock := newMock(t)

	confirm := &stubConfirmer{answer: false}
	_, err := New(db, specs, confirm, zerolog.Nop()).Run(context.Background(), Options{Reset: true})
	assert.ErrorIs(t, err, ErrAborted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ResetWithoutConfirmer(t *testing.T) {
	db, _ := newMock(t)
	_, err := New(db, specs, nil, zerolog.Nop()).Run(context.Background(), Options{Reset: true})
	assert.ErrorIs(t, err, ErrAborted)
}

func TestRun_CreateFails(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`CREATE DATABASE IF NOT EXISTS "kamiwaza"`).WillReturnError(errors.New("permission denied"))

	_, err := New(db, specs, nil, zerolog.Nop()).Run(context.Background(), Options{SkipConfirmation: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create database kamiwaza")
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_VerifyMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(`CREATE DATABASE IF NOT EXISTS "analytics"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(verifyQuery).WithArgs("analytics").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	only := []config.DatabaseSpec{{Name: "analytics"}}
	_, err := New(db, only, nil, zerolog.Nop()).Run(context.Background(), Options{SkipConfirmation: true})
	assert.ErrorIs(t, err, ErrMissing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnect_RetriesUntilPingSucceeds(t *testing.T) {
	db, mock := newMock(t, true)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	policy := config.RetryPolicy{Attempts: 5, Delay: time.Millisecond}
	err := Connect(context.Background(), db, policy, clock.WallClock, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnect_Exhausted(t *testing.T) {
	db, mock := newMock(t, true)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	policy := config.RetryPolicy{Attempts: 2, Delay: time.Millisecond}
	err := Connect(context.Background(), db, policy, clock.WallClock, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to database")
	assert.Contains(t, err.Error(), "connection refused")
}
