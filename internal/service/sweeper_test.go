package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/washnet/washnet-api/internal/models"
)

func TestSweeperRunOnce(t *testing.T) {
	sessionRepo := newFakeSessionRepo()
	sessionSvc := newSessionService(sessionRepo)

	base := time.Now().UTC()
	sessionSvc.now = func() time.Time { return base }
	_, err := sessionSvc.Create(context.Background(), models.SessionKindDriver, driverPayload(), time.Second, nil)
	require.NoError(t, err)
	sessionSvc.now = func() time.Time { return base.Add(time.Minute) }

	tokenRepo := newFakeTokenRepo()
	users := &fakeUserResolver{users: map[string]*models.AdminUser{"u1": adminUser("u1")}}
	tokenSvc := newTokenService(tokenRepo, users)
	require.NoError(t, tokenRepo.Create(context.Background(), &models.RefreshToken{
		ID: "rt1", Token: "rt1", UserID: "u1", ExpiresAt: base.Add(-time.Hour),
	}))

	sweeper := NewSweeper(sessionSvc, tokenSvc, zap.NewNop(), time.Hour, time.Hour)
	sweeper.RunOnce(context.Background())

	assert.Empty(t, sessionRepo.sessions)
	assert.Empty(t, tokenRepo.byID)
}

func TestSweeperStartStop(t *testing.T) {
	sweeper := NewSweeper(nil, nil, zap.NewNop(), 10*time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper.Start(ctx)
	// Second start is a no-op.
	sweeper.Start(ctx)

	time.Sleep(30 * time.Millisecond)
	sweeper.Stop()
	// Second stop is a no-op too.
	sweeper.Stop()
}
