package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating an administrator.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RefreshTokenRequest exchanges a refresh token for a new pair.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// LogoutRequest revokes a single refresh token (single-device logout).
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ChangePasswordRequest payload for updating an admin password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// TokenPair is the result of issuing or rotating credentials.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresIn  int64     `json:"expires_in"`
	RefreshExpiresIn int64     `json:"refresh_expires_in"`
	IssuedAt         time.Time `json:"issued_at"`
}

// LoginResponse returns the issued pair plus the authenticated identity.
type LoginResponse struct {
	TokenPair
	User AdminInfo `json:"user"`
}

// AdminInfo describes the authenticated administrator in responses.
type AdminInfo struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      AdminRole `json:"role"`
	NetworkID *string   `json:"network_id,omitempty"`
}

// TokenPayload is the resolved identity tuple the issuer signs. Callers
// obtain it from a successful credential check, never from a stored token.
type TokenPayload struct {
	Subject   string
	Email     string
	Role      AdminRole
	NetworkID *string
}

// AccessClaims is the JWT payload for access tokens. Trust is entirely
// cryptographic: signature plus the registered expiry claim.
type AccessClaims struct {
	Email     string    `json:"email"`
	Role      AdminRole `json:"role"`
	NetworkID *string   `json:"network_id,omitempty"`
	TokenType TokenType `json:"type"`
	jwt.RegisteredClaims
}
