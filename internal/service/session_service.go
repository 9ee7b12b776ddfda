package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/washnet/washnet-api/internal/models"
	"github.com/washnet/washnet-api/internal/repository"
)

// ErrSessionNotFound mirrors the repository sentinel so callers depend on
// the service alone. Missing, expired, and wrong-kind sessions are all the
// same result; the distinction is never surfaced.
var ErrSessionNotFound = repository.ErrSessionNotFound

// sessionHandleBytes is the fixed entropy of a session handle; hex-encoded
// it yields a 64-character opaque string.
const sessionHandleBytes = 32

// SessionConfig defines configuration for the opaque session store.
type SessionConfig struct {
	DefaultTTL time.Duration
}

// SessionService multiplexes driver, operator and partner portal sessions
// over one kind-tagged store.
type SessionService struct {
	repo    repository.SessionRepository
	logger  *zap.Logger
	metrics *MetricsService
	config  SessionConfig
	now     func() time.Time
}

// NewSessionService constructs a SessionService instance.
func NewSessionService(repo repository.SessionRepository, logger *zap.Logger, metrics *MetricsService, config SessionConfig) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 24 * time.Hour
	}
	return &SessionService{repo: repo, logger: logger, metrics: metrics, config: config, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores a new session and returns its opaque handle. A zero ttl
// falls back to the configured default.
func (s *SessionService) Create(ctx context.Context, kind models.SessionKind, payload interface{}, ttl time.Duration, owner *models.SessionOwner) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("unknown session kind %q", kind)
	}
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode session payload: %w", err)
	}

	handle, err := generateHandle()
	if err != nil {
		return "", err
	}

	now := s.now()
	session := &models.Session{
		Handle:     handle,
		Kind:       kind,
		Payload:    raw,
		ExpiresAt:  now.Add(ttl),
		LastUsedAt: now,
		CreatedAt:  now,
	}
	if owner != nil {
		session.OwnerNetworkID = owner.NetworkID
		session.OwnerUserID = owner.UserID
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return "", err
	}

	if s.metrics != nil {
		s.metrics.RecordSessionCreated(string(kind))
	}
	return handle, nil
}

// Get validates and touches a session. expectedKind may be empty to accept
// any kind; when set, a mismatch is indistinguishable from absence.
func (s *SessionService) Get(ctx context.Context, handle string, expectedKind models.SessionKind) (*models.Session, error) {
	if handle == "" {
		return nil, ErrSessionNotFound
	}
	return s.repo.GetAndTouch(ctx, handle, expectedKind, s.now())
}

// Update shallow-merges partial into a still-valid session's payload.
// Returns false when the session is gone; the caller must re-authenticate.
func (s *SessionService) Update(ctx context.Context, handle string, partial interface{}) (bool, error) {
	raw, err := json.Marshal(partial)
	if err != nil {
		return false, fmt.Errorf("encode partial payload: %w", err)
	}
	return s.repo.UpdatePayload(ctx, handle, raw, s.now())
}

// Extend recomputes the expiry as now + ttl for a still-valid session.
// Used by explicit keep-me-logged-in actions, distinct from the implicit
// touch that Get performs.
func (s *SessionService) Extend(ctx context.Context, handle string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}
	now := s.now()
	return s.repo.Extend(ctx, handle, now.Add(ttl), now)
}

// Delete removes a session. Idempotent; used for logout.
func (s *SessionService) Delete(ctx context.Context, handle string) error {
	return s.repo.Delete(ctx, handle)
}

// DeleteAllForOwner leaves no valid sessions behind when an upstream
// driver, operator or partner is deactivated. kind may be empty to cover
// every kind.
func (s *SessionService) DeleteAllForOwner(ctx context.Context, ownerUserID string, kind models.SessionKind) error {
	return s.repo.DeleteAllForOwner(ctx, ownerUserID, kind)
}

// SweepExpired purges rows whose expiry has passed. Correctness never
// depends on this having run; it only bounds storage for idle sessions.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	count, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("swept expired sessions", zap.Int64("count", count))
	}
	if s.metrics != nil {
		s.metrics.RecordSessionsSwept(count)
	}
	return count, nil
}

func generateHandle() (string, error) {
	buf := make([]byte, sessionHandleBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session handle: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
