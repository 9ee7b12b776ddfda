package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/washnet/washnet-api/internal/models"
)

// ErrTokenAlreadyRotated signals that the presented token lost a rotation
// race: another transaction revoked it between lookup and rotation.
var ErrTokenAlreadyRotated = errors.New("refresh token already rotated")

// TokenRepository is the storage contract for the rotating token-pair
// issuer. Rotate must be atomic: either the old token is revoked and the
// successor exists, or neither.
type TokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindBySecret(ctx context.Context, secret string) (*models.RefreshToken, error)
	Rotate(ctx context.Context, oldID string, successor *models.RefreshToken, now time.Time) error
	Revoke(ctx context.Context, id string, revokedAt time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, tokenType models.TokenType, revokedAt time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time, retention time.Duration) (int64, error)
}

// PostgresTokenRepository provides database access for refresh tokens.
type PostgresTokenRepository struct {
	db *sqlx.DB
}

// NewPostgresTokenRepository creates a new instance.
func NewPostgresTokenRepository(db *sqlx.DB) *PostgresTokenRepository {
	return &PostgresTokenRepository{db: db}
}

const tokenColumns = `id, token, type, user_id, network_id, expires_at, created_at, revoked_at, replaced_by, user_agent, ip_address`

// Create persists the root token of a new rotation chain.
func (r *PostgresTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	const query = `INSERT INTO refresh_tokens (id, token, type, user_id, network_id, expires_at, created_at, revoked_at, replaced_by, user_agent, ip_address) VALUES (:id, :token, :type, :user_id, :network_id, :expires_at, :created_at, :revoked_at, :replaced_by, :user_agent, :ip_address)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindBySecret returns a refresh token by its opaque secret.
func (r *PostgresTokenRepository) FindBySecret(ctx context.Context, secret string) (*models.RefreshToken, error) {
	const query = `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var token models.RefreshToken
	if err := r.db.GetContext(ctx, &token, query, secret); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &token, nil
}

// Rotate revokes the presented token and inserts its successor in one
// transaction. The UPDATE is guarded by revoked_at IS NULL so that two
// concurrent rotations of the same token cannot both produce a successor;
// the loser gets ErrTokenAlreadyRotated and no successor row.
func (r *PostgresTokenRepository) Rotate(ctx context.Context, oldID string, successor *models.RefreshToken, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const revokeQuery = `UPDATE refresh_tokens SET revoked_at = $2, replaced_by = $3 WHERE id = $1 AND revoked_at IS NULL`
	res, err := tx.ExecContext(ctx, revokeQuery, oldID, now, successor.ID)
	if err != nil {
		return fmt.Errorf("revoke rotated token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke rotated token: %w", err)
	}
	if affected == 0 {
		return ErrTokenAlreadyRotated
	}

	const insertQuery = `INSERT INTO refresh_tokens (id, token, type, user_id, network_id, expires_at, created_at, revoked_at, replaced_by, user_agent, ip_address) VALUES (:id, :token, :type, :user_id, :network_id, :expires_at, :created_at, :revoked_at, :replaced_by, :user_agent, :ip_address)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, successor); err != nil {
		return fmt.Errorf("insert successor token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rotation: %w", err)
	}
	return nil
}

// Revoke marks a single token revoked. No-op if already revoked.
func (r *PostgresTokenRepository) Revoke(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser bulk-revokes every currently-valid token for a user,
// optionally scoped to one role class. Returns the number revoked.
func (r *PostgresTokenRepository) RevokeAllForUser(ctx context.Context, userID string, tokenType models.TokenType, revokedAt time.Time) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`
	args := []interface{}{userID, revokedAt}
	if tokenType != "" {
		query += ` AND type = $3`
		args = append(args, tokenType)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return count, nil
}

// DeleteExpired is the retention sweep: rows expired and never revoked go
// immediately; revoked rows are kept for the retention window as a forensic
// tail, then deleted.
func (r *PostgresTokenRepository) DeleteExpired(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE (revoked_at IS NULL AND expires_at < $1) OR (revoked_at IS NOT NULL AND revoked_at < $2)`
	res, err := r.db.ExecContext(ctx, query, now, now.Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("sweep refresh tokens: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep refresh tokens: %w", err)
	}
	return count, nil
}
