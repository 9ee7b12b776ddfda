package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/washnet/washnet-api/internal/models"
)

// UserRepository provides database access for administrator accounts.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const adminColumns = `id, email, password_hash, full_name, role, network_id, active, deleted_at, last_login, created_at, updated_at`

// FindByEmail returns an administrator by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	const query = `SELECT ` + adminColumns + ` FROM admin_users WHERE email = $1 LIMIT 1`
	var user models.AdminUser
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find admin by email: %w", err)
	}
	return &user, nil
}

// FindByID returns an administrator by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.AdminUser, error) {
	const query = `SELECT ` + adminColumns + ` FROM admin_users WHERE id = $1 LIMIT 1`
	var user models.AdminUser
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find admin by id: %w", err)
	}
	return &user, nil
}

// UpdateLastLogin updates the last_login timestamp.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE admin_users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE admin_users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// CreateAuditLog stores an auth audit entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, detail, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :detail, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
