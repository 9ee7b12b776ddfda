package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/washnet/washnet-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestTokenCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresTokenRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), &models.RefreshToken{
		ID: "rt1", Token: "secret", Type: models.TokenTypeNetworkAdmin, UserID: "u1",
		ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenFindBySecret(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresTokenRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "token", "type", "user_id", "network_id", "expires_at", "created_at", "revoked_at", "replaced_by", "user_agent", "ip_address"}).
		AddRow("rt1", "secret", string(models.TokenTypeNetworkAdmin), "u1", nil, now.Add(time.Hour), now, nil, nil, "", "")
	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token =").
		WithArgs("secret").
		WillReturnRows(rows)

	token, err := repo.FindBySecret(context.Background(), "secret")
	require.NoError(t, err)
	assert.Equal(t, "rt1", token.ID)
	assert.Nil(t, token.RevokedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenFindBySecretMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresTokenRepository(db)

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token =").
		WithArgs("gone").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindBySecret(context.Background(), "gone")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRotate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresTokenRepository(db)

	now := time.Now().UTC()
	successor := &models.RefreshToken{
		ID: "rt2", Token: "next", Type: models.TokenTypeNetworkAdmin, UserID: "u1",
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = $2, replaced_by = $3 WHERE id = $1 AND revoked_at IS NULL")).
		WithArgs("rt1", now, "rt2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Rotate(context.Background(), "rt1", successor, now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRotateAlreadyRotated(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresTokenRepository(db)

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = $2, replaced_by = $3 WHERE id = $1 AND revoked_at IS NULL")).
		WithArgs("rt1", now, "rt2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), "rt1", &models.RefreshToken{ID: "rt2"}, now)
	assert.ErrorIs(t, err, ErrTokenAlreadyRotated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRevokeAllForUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresTokenRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL")).
		WithArgs("u1", now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.RevokeAllForUser(context.Background(), "u1", "", now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRevokeAllForUserScoped(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresTokenRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL AND type = $3")).
		WithArgs("u1", now, string(models.TokenTypePlatformAdmin)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	count, err := repo.RevokeAllForUser(context.Background(), "u1", models.TokenTypePlatformAdmin, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenDeleteExpired(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresTokenRepository(db)

	now := time.Now().UTC()
	retention := 30 * 24 * time.Hour
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE (revoked_at IS NULL AND expires_at < $1) OR (revoked_at IS NOT NULL AND revoked_at < $2)")).
		WithArgs(now, now.Add(-retention)).
		WillReturnResult(sqlmock.NewResult(0, 5))

	count, err := repo.DeleteExpired(context.Background(), now, retention)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
