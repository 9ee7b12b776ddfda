package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/washnet/washnet-api/internal/models"
)

// ErrSessionNotFound is returned for missing, expired, and kind-mismatched
// sessions alike. Callers must not be able to tell the cases apart.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository is the storage contract for the opaque session store.
// Implementations must make GetAndTouch a single atomic read-modify-write.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetAndTouch(ctx context.Context, handle string, expectedKind models.SessionKind, now time.Time) (*models.Session, error)
	UpdatePayload(ctx context.Context, handle string, partial json.RawMessage, now time.Time) (bool, error)
	Extend(ctx context.Context, handle string, expiresAt time.Time, now time.Time) (bool, error)
	Delete(ctx context.Context, handle string) error
	DeleteAllForOwner(ctx context.Context, ownerUserID string, kind models.SessionKind) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PostgresSessionRepository provides database access for portal sessions.
type PostgresSessionRepository struct {
	db *sqlx.DB
}

// NewPostgresSessionRepository creates a new instance.
func NewPostgresSessionRepository(db *sqlx.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

const sessionColumns = `handle, kind, payload, expires_at, last_used_at, owner_network_id, owner_user_id, created_at`

// Create inserts a new session row.
func (r *PostgresSessionRepository) Create(ctx context.Context, session *models.Session) error {
	const query = `INSERT INTO sessions (handle, kind, payload, expires_at, last_used_at, owner_network_id, owner_user_id, created_at) VALUES (:handle, :kind, :payload, :expires_at, :last_used_at, :owner_network_id, :owner_user_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetAndTouch validates and touches a session in one statement. The UPDATE
// only matches an unexpired row of the expected kind, so a mismatch or an
// expired row both come back as no-row. Rows discovered expired are deleted
// eagerly rather than left for the sweep.
func (r *PostgresSessionRepository) GetAndTouch(ctx context.Context, handle string, expectedKind models.SessionKind, now time.Time) (*models.Session, error) {
	query := `UPDATE sessions SET last_used_at = $2 WHERE handle = $1 AND expires_at > $2 RETURNING ` + sessionColumns
	args := []interface{}{handle, now}
	if expectedKind != "" {
		query = `UPDATE sessions SET last_used_at = $2 WHERE handle = $1 AND expires_at > $2 AND kind = $3 RETURNING ` + sessionColumns
		args = append(args, expectedKind)
	}

	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if purgeErr := r.deleteIfExpired(ctx, handle, now); purgeErr != nil {
				return nil, purgeErr
			}
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("touch session: %w", err)
	}
	return &session, nil
}

// UpdatePayload merges a partial payload into a still-valid session.
// Returns false when the session is missing or expired; a row discovered
// expired is purged on the spot, not left for the sweep.
func (r *PostgresSessionRepository) UpdatePayload(ctx context.Context, handle string, partial json.RawMessage, now time.Time) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin payload update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var stored json.RawMessage
	const selectQuery = `SELECT payload FROM sessions WHERE handle = $1 AND expires_at > $2 FOR UPDATE`
	if err := tx.GetContext(ctx, &stored, selectQuery, handle, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if purgeErr := r.deleteIfExpired(ctx, handle, now); purgeErr != nil {
				return false, purgeErr
			}
			return false, nil
		}
		return false, fmt.Errorf("select session payload: %w", err)
	}

	merged, err := models.MergePayload(stored, partial)
	if err != nil {
		return false, err
	}

	const updateQuery = `UPDATE sessions SET payload = $2, last_used_at = $3 WHERE handle = $1`
	if _, err := tx.ExecContext(ctx, updateQuery, handle, merged, now); err != nil {
		return false, fmt.Errorf("update session payload: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit payload update: %w", err)
	}
	return true, nil
}

// Extend pushes expires_at forward for a still-valid session.
func (r *PostgresSessionRepository) Extend(ctx context.Context, handle string, expiresAt time.Time, now time.Time) (bool, error) {
	const query = `UPDATE sessions SET expires_at = $2, last_used_at = $3 WHERE handle = $1 AND expires_at > $3`
	res, err := r.db.ExecContext(ctx, query, handle, expiresAt, now)
	if err != nil {
		return false, fmt.Errorf("extend session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("extend session: %w", err)
	}
	if affected == 0 {
		if err := r.deleteIfExpired(ctx, handle, now); err != nil {
			return false, err
		}
	}
	return affected > 0, nil
}

// Delete removes a session. Idempotent.
func (r *PostgresSessionRepository) Delete(ctx context.Context, handle string) error {
	const query = `DELETE FROM sessions WHERE handle = $1`
	if _, err := r.db.ExecContext(ctx, query, handle); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteAllForOwner removes every session owned by the given user,
// optionally scoped to one kind.
func (r *PostgresSessionRepository) DeleteAllForOwner(ctx context.Context, ownerUserID string, kind models.SessionKind) error {
	query := `DELETE FROM sessions WHERE owner_user_id = $1`
	args := []interface{}{ownerUserID}
	if kind != "" {
		query += ` AND kind = $2`
		args = append(args, kind)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete sessions for owner: %w", err)
	}
	return nil
}

// DeleteExpired purges rows whose expiry has already passed.
func (r *PostgresSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM sessions WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return count, nil
}

func (r *PostgresSessionRepository) deleteIfExpired(ctx context.Context, handle string, now time.Time) error {
	const query = `DELETE FROM sessions WHERE handle = $1 AND expires_at <= $2`
	if _, err := r.db.ExecContext(ctx, query, handle, now); err != nil {
		return fmt.Errorf("purge expired session: %w", err)
	}
	return nil
}
