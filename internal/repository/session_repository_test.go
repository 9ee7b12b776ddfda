package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/washnet/washnet-api/internal/models"
)

func sessionRows(handle string, kind models.SessionKind, payload string, expiresAt, lastUsedAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"handle", "kind", "payload", "expires_at", "last_used_at", "owner_network_id", "owner_user_id", "created_at"}).
		AddRow(handle, string(kind), []byte(payload), expiresAt, lastUsedAt, nil, nil, lastUsedAt)
}

func TestSessionGetAndTouch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresSessionRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE sessions SET last_used_at = $2 WHERE handle = $1 AND expires_at > $2 AND kind = $3 RETURNING")).
		WithArgs("abc", now, string(models.SessionKindDriver)).
		WillReturnRows(sessionRows("abc", models.SessionKindDriver, `{"driver_id":"d1","network_id":"n1"}`, now.Add(time.Hour), now))

	session, err := repo.GetAndTouch(context.Background(), "abc", models.SessionKindDriver, now)
	require.NoError(t, err)
	assert.Equal(t, models.SessionKindDriver, session.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionGetAndTouchAnyKind(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresSessionRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE sessions SET last_used_at = $2 WHERE handle = $1 AND expires_at > $2 RETURNING")).
		WithArgs("abc", now).
		WillReturnRows(sessionRows("abc", models.SessionKindPartner, `{}`, now.Add(time.Hour), now))

	session, err := repo.GetAndTouch(context.Background(), "abc", "", now)
	require.NoError(t, err)
	assert.Equal(t, models.SessionKindPartner, session.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionGetAndTouchMissPurgesExpired(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresSessionRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery("UPDATE sessions SET last_used_at").
		WithArgs("gone", now, string(models.SessionKindOperator)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE handle = $1 AND expires_at <= $2")).
		WithArgs("gone", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := repo.GetAndTouch(context.Background(), "gone", models.SessionKindOperator, now)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionUpdatePayload(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresSessionRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM sessions WHERE handle = $1 AND expires_at > $2 FOR UPDATE")).
		WithArgs("abc", now).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow([]byte(`{"location_name":"Old","wash_mode":"SELF"}`)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET payload = $2, last_used_at = $3 WHERE handle = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := repo.UpdatePayload(context.Background(), "abc", json.RawMessage(`{"location_name":"New"}`), now)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionUpdatePayloadMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresSessionRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT payload FROM sessions").
		WithArgs("gone", now).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE handle = $1 AND expires_at <= $2")).
		WithArgs("gone", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	updated, err := repo.UpdatePayload(context.Background(), "gone", json.RawMessage(`{}`), now)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionExtend(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresSessionRepository(db)

	now := time.Now().UTC()
	until := now.Add(48 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET expires_at = $2, last_used_at = $3 WHERE handle = $1 AND expires_at > $3")).
		WithArgs("abc", until, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	extended, err := repo.Extend(context.Background(), "abc", until, now)
	require.NoError(t, err)
	assert.True(t, extended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionExtendMissPurgesExpired(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresSessionRepository(db)

	now := time.Now().UTC()
	until := now.Add(48 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET expires_at = $2, last_used_at = $3 WHERE handle = $1 AND expires_at > $3")).
		WithArgs("gone", until, now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE handle = $1 AND expires_at <= $2")).
		WithArgs("gone", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	extended, err := repo.Extend(context.Background(), "gone", until, now)
	require.NoError(t, err)
	assert.False(t, extended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionDeleteAllForOwner(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE owner_user_id = $1 AND kind = $2")).
		WithArgs("u1", string(models.SessionKindDriver)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.DeleteAllForOwner(context.Background(), "u1", models.SessionKindDriver)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionDeleteExpired(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresSessionRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE expires_at < $1")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 7))

	count, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
