package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mikey/inbox-triage/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMySQLWithMock(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for range mysqlDialect.schema {
		mock.ExpectExec(`(?s)^CREATE TABLE IF NOT EXISTS`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	s, err := NewMySQLStoreFromDB(context.Background(), db, zap.NewNop())
	require.NoError(t, err)
	return s, mock
}

func TestMySQLUpsertUsesInsertIgnore(t *testing.T) {
	s, mock := newMySQLWithMock(t)
	rec := newRecord("u1", "m1", core.LaneOperation, time.Now())

	mock.ExpectExec(`(?s)^INSERT IGNORE INTO classified_messages`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)^INSERT IGNORE INTO classified_messages`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	outcome, err := s.UpsertIfAbsent(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, core.Inserted, outcome)

	outcome, err = s.UpsertIfAbsent(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, core.AlreadyExists, outcome)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLUpsertError(t *testing.T) {
	s, mock := newMySQLWithMock(t)

	mock.ExpectExec(`(?s)^INSERT IGNORE INTO classified_messages`).
		WillReturnError(errors.New("db down"))

	_, err := s.UpsertIfAbsent(context.Background(), newRecord("u1", "m1", core.LaneOperation, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestMySQLMarkRevealedAlreadyRead(t *testing.T) {
	s, mock := newMySQLWithMock(t)

	// MySQL reports zero affected rows when the value does not change
	mock.ExpectExec(`(?s)^UPDATE classified_messages SET is_read = 1`).
		WithArgs("r1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`(?s)^SELECT COUNT\(\*\) FROM classified_messages`).
		WithArgs("r1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	require.NoError(t, s.MarkRevealed(context.Background(), "u1", "r1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLMarkRevealedMissing(t *testing.T) {
	s, mock := newMySQLWithMock(t)

	mock.ExpectExec(`(?s)^UPDATE classified_messages SET is_read = 1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`(?s)^SELECT COUNT\(\*\) FROM classified_messages`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	assert.ErrorIs(t, s.MarkRevealed(context.Background(), "u1", "nope"), core.ErrRecordNotFound)
}

func TestMySQLGetCredentialNotConnected(t *testing.T) {
	s, mock := newMySQLWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT user_id, access_token, refresh_token, expiry\s+FROM credentials`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "access_token", "refresh_token", "expiry"}))

	_, err := s.GetCredential(context.Background(), "u1")
	assert.ErrorIs(t, err, core.ErrNotConnected)
}
