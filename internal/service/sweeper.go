package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper runs the periodic cleanup passes: expired sessions and the
// refresh-token retention sweep. A failed pass is logged and retried on the
// next tick; request-serving paths never depend on a sweep having run.
type Sweeper struct {
	sessions *SessionService
	tokens   *TokenService
	logger   *zap.Logger

	sessionInterval time.Duration
	tokenInterval   time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewSweeper constructs a Sweeper instance.
func NewSweeper(sessions *SessionService, tokens *TokenService, logger *zap.Logger, sessionInterval, tokenInterval time.Duration) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessionInterval <= 0 {
		sessionInterval = time.Hour
	}
	if tokenInterval <= 0 {
		tokenInterval = time.Hour
	}
	return &Sweeper{
		sessions:        sessions,
		tokens:          tokens,
		logger:          logger,
		sessionInterval: sessionInterval,
		tokenInterval:   tokenInterval,
	}
}

// Start launches the sweep loops. Safe to call once.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.wg.Add(2)
	go s.loop(ctx, s.sessionInterval, s.sweepSessions)
	go s.loop(ctx, s.tokenInterval, s.sweepTokens)
}

// Stop cancels the loops and waits for them to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

// RunOnce executes both sweeps immediately. Used at startup and in tests.
func (s *Sweeper) RunOnce(ctx context.Context) {
	s.sweepSessions(ctx)
	s.sweepTokens(ctx)
}

func (s *Sweeper) loop(ctx context.Context, interval time.Duration, sweep func(context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx)
		}
	}
}

func (s *Sweeper) sweepSessions(ctx context.Context) {
	if s.sessions == nil {
		return
	}
	if _, err := s.sessions.SweepExpired(ctx); err != nil {
		s.logger.Error("session sweep failed", zap.Error(err))
	}
}

func (s *Sweeper) sweepTokens(ctx context.Context) {
	if s.tokens == nil {
		return
	}
	if _, err := s.tokens.CleanupExpiredTokens(ctx); err != nil {
		s.logger.Error("token sweep failed", zap.Error(err))
	}
}
