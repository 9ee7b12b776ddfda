package models

import "time"

// Audit actions recorded by the auth flows.
const (
	AuditActionLogin          = "auth.login"
	AuditActionRefresh        = "auth.refresh"
	AuditActionLogout         = "auth.logout"
	AuditActionLogoutAll      = "auth.logout_all"
	AuditActionPasswordChange = "auth.password_change"
	AuditActionTheftCascade   = "auth.theft_cascade"
)

// AuditLog stores an auth event for forensic review. Token secrets and
// session handles are never written here.
type AuditLog struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Action    string    `db:"action" json:"action"`
	Detail    []byte    `db:"detail" json:"detail,omitempty"`
	IPAddress string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent string    `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
