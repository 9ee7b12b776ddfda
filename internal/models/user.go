package models

import "time"

// AdminRole represents the administrative roles served by the token-pair
// issuer. Portal roles (driver, operator, partner) use opaque sessions
// instead and never receive signed tokens.
type AdminRole string

const (
	RolePlatformAdmin AdminRole = "PLATFORM_ADMIN"
	RoleNetworkAdmin  AdminRole = "NETWORK_ADMIN"
)

// AdminUser represents an administrator stored in the admin_users table.
// NetworkID is set for network-scoped admins and nil for platform admins.
type AdminUser struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         AdminRole  `db:"role" json:"role"`
	NetworkID    *string    `db:"network_id" json:"network_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Usable reports whether the account may authenticate: active and not
// soft-deleted.
func (u *AdminUser) Usable() bool {
	return u.Active && u.DeletedAt == nil
}

// TokenType maps the admin role to the refresh-token role class.
func (u *AdminUser) TokenType() TokenType {
	if u.Role == RolePlatformAdmin {
		return TokenTypePlatformAdmin
	}
	return TokenTypeNetworkAdmin
}
