package models

import "time"

// TokenType is the administrative role class a refresh token was issued for.
type TokenType string

const (
	TokenTypePlatformAdmin TokenType = "PLATFORM_ADMIN"
	TokenTypeNetworkAdmin  TokenType = "NETWORK_ADMIN"
)

// RefreshToken is one link in a rotation chain. The Token secret is the
// lookup key and must never be logged. ReplacedBy points to the successor
// created when this token was rotated, so an investigator can reconstruct
// where a chain forked.
type RefreshToken struct {
	ID         string     `db:"id" json:"id"`
	Token      string     `db:"token" json:"-"`
	Type       TokenType  `db:"type" json:"type"`
	UserID     string     `db:"user_id" json:"user_id"`
	NetworkID  *string    `db:"network_id" json:"network_id,omitempty"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	RevokedAt  *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	ReplacedBy *string    `db:"replaced_by" json:"replaced_by,omitempty"`
	UserAgent  string     `db:"user_agent" json:"user_agent,omitempty"`
	IPAddress  string     `db:"ip_address" json:"ip_address,omitempty"`
}

// Usable reports whether the token may still be exchanged: not revoked and
// not past its expiry. Owner activity is checked separately against the
// authoritative user record.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// TokenMetadata is optional audit context captured at issuance.
type TokenMetadata struct {
	UserAgent string
	IPAddress string
}
