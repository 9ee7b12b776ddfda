package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/washnet/washnet-api/internal/models"
	appErrors "github.com/washnet/washnet-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	FindByID(ctx context.Context, id string) (*models.AdminUser, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// LockoutChecker is the brute-force lockout collaborator. The counter
// itself lives outside this service; only the pass/fail signal is consumed.
type LockoutChecker interface {
	IsLocked(ctx context.Context, identifier string) (bool, error)
}

// AuthService provides the admin-portal authentication use cases on top of
// the token-pair issuer.
type AuthService struct {
	users     authUserRepository
	tokens    *TokenService
	lockout   LockoutChecker
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, tokens *TokenService, lockout LockoutChecker, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{users: users, tokens: tokens, lockout: lockout, validator: validate, logger: logger, metrics: metrics}
}

// Login authenticates an administrator and issues a token pair.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	if s.lockout != nil {
		locked, err := s.lockout.IsLocked(ctx, req.Email)
		if err != nil {
			s.logger.Warn("lockout check failed", zap.Error(err))
		} else if locked {
			s.recordLogin("failure")
			return nil, appErrors.Clone(appErrors.ErrAccountLocked, "account temporarily locked")
		}
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.recordLogin("failure")
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !user.Usable() {
		s.recordLogin("failure")
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.recordLogin("failure")
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	payload := models.TokenPayload{
		Subject:   user.ID,
		Email:     user.Email,
		Role:      user.Role,
		NetworkID: user.NetworkID,
	}
	pair, err := s.tokens.CreateTokenPair(ctx, payload, user.TokenType(), &models.TokenMetadata{
		UserAgent: req.UserAgent,
		IPAddress: req.IP,
	})
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	s.audit(ctx, &user.ID, models.AuditActionLogin, req.IP, req.UserAgent)
	s.recordLogin("success")

	return &models.LoginResponse{
		TokenPair: *pair,
		User: models.AdminInfo{
			ID:        user.ID,
			Email:     user.Email,
			FullName:  user.FullName,
			Role:      user.Role,
			NetworkID: user.NetworkID,
		},
	}, nil
}

// Refresh rotates the presented refresh token and returns the new pair.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	pair, err := s.tokens.RefreshTokens(ctx, req.RefreshToken, &models.TokenMetadata{
		UserAgent: req.UserAgent,
		IPAddress: req.IP,
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, nil, models.AuditActionRefresh, req.IP, req.UserAgent)
	return pair, nil
}

// Logout revokes the presented refresh token (single-device logout).
func (s *AuthService) Logout(ctx context.Context, userID string, req models.LogoutRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid logout payload")
	}

	if err := s.tokens.RevokeToken(ctx, req.RefreshToken); err != nil {
		return err
	}

	s.audit(ctx, &userID, models.AuditActionLogout, "", "")
	return nil
}

// LogoutAll revokes every refresh token for the administrator.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	count, err := s.tokens.RevokeAllUserTokens(ctx, userID, "")
	if err != nil {
		return 0, err
	}

	s.audit(ctx, &userID, models.AuditActionLogoutAll, "", "")
	return count, nil
}

// ChangePassword updates the stored hash and revokes every refresh token,
// forcing all other devices to re-authenticate.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.users.UpdatePassword(ctx, userID, string(newHash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if _, err := s.tokens.RevokeAllUserTokens(ctx, userID, ""); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after password change", zap.Error(err))
	}

	s.audit(ctx, &userID, models.AuditActionPasswordChange, "", "")
	return nil
}

// Me re-resolves the administrator behind validated access claims.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.AdminInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "user no longer active")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Usable() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "user no longer active")
	}
	return &models.AdminInfo{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      user.Role,
		NetworkID: user.NetworkID,
	}, nil
}

func (s *AuthService) audit(ctx context.Context, userID *string, action, ip, userAgent string) {
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:    userID,
		Action:    action,
		IPAddress: ip,
		UserAgent: userAgent,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *AuthService) recordLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordLogin(outcome)
	}
}
