package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/washnet/washnet-api/internal/models"
	"github.com/washnet/washnet-api/internal/repository"
	appErrors "github.com/washnet/washnet-api/pkg/errors"
)

// refreshSecretBytes is the entropy of a refresh token secret. The secret
// is opaque: compared by exact store lookup, never parsed or decoded.
const refreshSecretBytes = 32

type tokenUserResolver interface {
	FindByID(ctx context.Context, id string) (*models.AdminUser, error)
}

// TokenConfig defines configuration for the token-pair issuer.
type TokenConfig struct {
	Secret             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	RetentionWindow    time.Duration
	Issuer             string
	Audience           []string
}

// TokenService issues signed short-lived access tokens paired with
// long-lived single-use refresh tokens, rotating the latter on every
// exchange and treating reuse of a rotated token as theft.
type TokenService struct {
	repo    repository.TokenRepository
	users   tokenUserResolver
	logger  *zap.Logger
	metrics *MetricsService
	config  TokenConfig
	now     func() time.Time
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(repo repository.TokenRepository, users tokenUserResolver, logger *zap.Logger, metrics *MetricsService, config TokenConfig) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 15 * time.Minute
	}
	if config.RefreshTokenExpiry <= 0 {
		config.RefreshTokenExpiry = 7 * 24 * time.Hour
	}
	if config.RetentionWindow <= 0 {
		config.RetentionWindow = 30 * 24 * time.Hour
	}
	return &TokenService{repo: repo, users: users, logger: logger, metrics: metrics, config: config, now: func() time.Time { return time.Now().UTC() }}
}

// CreateTokenPair signs an access token for the resolved identity and
// persists the root of a new refresh-token rotation chain.
func (s *TokenService) CreateTokenPair(ctx context.Context, payload models.TokenPayload, tokenType models.TokenType, meta *models.TokenMetadata) (*models.TokenPair, error) {
	now := s.now()

	accessToken, err := s.signAccessToken(payload, tokenType, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}

	secret, err := generateRefreshSecret()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	refreshToken := &models.RefreshToken{
		ID:        uuid.NewString(),
		Token:     secret,
		Type:      tokenType,
		UserID:    payload.Subject,
		NetworkID: payload.NetworkID,
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		CreatedAt: now,
	}
	if meta != nil {
		refreshToken.UserAgent = meta.UserAgent
		refreshToken.IPAddress = meta.IPAddress
	}

	if err := s.repo.Create(ctx, refreshToken); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	return &models.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     secret,
		AccessExpiresIn:  int64(s.config.AccessTokenExpiry.Seconds()),
		RefreshExpiresIn: int64(s.config.RefreshTokenExpiry.Seconds()),
		IssuedAt:         now,
	}, nil
}

// RefreshTokens exchanges a refresh token for a new pair, revoking the
// presented token and linking its successor. Reuse of an already-rotated
// token revokes every valid token for the owning user before failing: a
// legitimate client only ever holds the newest link of its chain, so an
// older one resurfacing means the secret exists in two places.
func (s *TokenService) RefreshTokens(ctx context.Context, presented string, meta *models.TokenMetadata) (*models.TokenPair, error) {
	now := s.now()

	stored, err := s.repo.FindBySecret(ctx, presented)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid refresh token")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}

	if stored.RevokedAt != nil {
		s.cascadeRevoke(ctx, stored.UserID)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token has been revoked")
	}

	if !now.Before(stored.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token expired")
	}

	// Role, network and active status come from the authoritative user
	// record, not from the stored token, so a deactivation takes effect at
	// the next refresh regardless of the token's remaining lifetime.
	user, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "user no longer active")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Usable() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "user no longer active")
	}

	secret, err := generateRefreshSecret()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	successor := &models.RefreshToken{
		ID:        uuid.NewString(),
		Token:     secret,
		Type:      user.TokenType(),
		UserID:    user.ID,
		NetworkID: user.NetworkID,
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		CreatedAt: now,
	}
	if meta != nil {
		successor.UserAgent = meta.UserAgent
		successor.IPAddress = meta.IPAddress
	}

	if err := s.repo.Rotate(ctx, stored.ID, successor, now); err != nil {
		if errors.Is(err, repository.ErrTokenAlreadyRotated) {
			// A strictly-concurrent second rotation of the same token is
			// indistinguishable from reuse; take the conservative branch.
			s.cascadeRevoke(ctx, stored.UserID)
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token has been revoked")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate refresh token")
	}

	payload := models.TokenPayload{
		Subject:   user.ID,
		Email:     user.Email,
		Role:      user.Role,
		NetworkID: user.NetworkID,
	}
	accessToken, err := s.signAccessToken(payload, user.TokenType(), now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}

	if s.metrics != nil {
		s.metrics.RecordRotation()
	}

	return &models.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     secret,
		AccessExpiresIn:  int64(s.config.AccessTokenExpiry.Seconds()),
		RefreshExpiresIn: int64(s.config.RefreshTokenExpiry.Seconds()),
		IssuedAt:         now,
	}, nil
}

// RevokeToken marks the presented token revoked. Idempotent: missing and
// already-revoked tokens are a no-op, so single-device logout never errors.
func (s *TokenService) RevokeToken(ctx context.Context, presented string) error {
	stored, err := s.repo.FindBySecret(ctx, presented)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}
	if stored.RevokedAt != nil {
		return nil
	}
	if err := s.repo.Revoke(ctx, stored.ID, s.now()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}
	return nil
}

// RevokeAllUserTokens bulk-revokes every valid token for a user, optionally
// scoped to one role class. Used for logout-all, password change, and the
// theft cascade.
func (s *TokenService) RevokeAllUserTokens(ctx context.Context, userID string, tokenType models.TokenType) (int64, error) {
	count, err := s.repo.RevokeAllForUser(ctx, userID, tokenType, s.now())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke user tokens")
	}
	return count, nil
}

// CleanupExpiredTokens runs the retention sweep.
func (s *TokenService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	count, err := s.repo.DeleteExpired(ctx, s.now(), s.config.RetentionWindow)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("swept refresh tokens", zap.Int64("count", count))
	}
	if s.metrics != nil {
		s.metrics.RecordTokensSwept(count)
	}
	return count, nil
}

// ValidateAccessToken verifies signature and expiry only; no store lookup.
// Returns nil on any failure so callers have a single "no valid payload"
// signal.
func (s *TokenService) ValidateAccessToken(tokenString string) *models.AccessClaims {
	token, err := jwt.ParseWithClaims(tokenString, &models.AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil
	}
	claims, ok := token.Claims.(*models.AccessClaims)
	if !ok || !token.Valid {
		return nil
	}
	return claims
}

// cascadeRevoke is the mandatory theft-detection side effect. It runs even
// though the surrounding call is about to fail; a storage error here is
// logged loudly but cannot change the (already failing) outer result.
func (s *TokenService) cascadeRevoke(ctx context.Context, userID string) {
	count, err := s.repo.RevokeAllForUser(ctx, userID, "", s.now())
	if err != nil {
		s.logger.Error("theft cascade revoke failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}
	s.logger.Warn("refresh token reuse detected, revoked all user tokens",
		zap.String("user_id", userID),
		zap.Int64("revoked", count))
	if s.metrics != nil {
		s.metrics.RecordTheftCascade()
	}
}

func (s *TokenService) signAccessToken(payload models.TokenPayload, tokenType models.TokenType, now time.Time) (string, error) {
	claims := &models.AccessClaims{
		Email:     payload.Email,
		Role:      payload.Role,
		NetworkID: payload.NetworkID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   payload.Subject,
			Audience:  s.config.Audience,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

func generateRefreshSecret() (string, error) {
	buf := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
