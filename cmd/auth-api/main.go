package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/washnet/washnet-api/api/swagger"
	"github.com/washnet/washnet-api/internal/handler"
	"github.com/washnet/washnet-api/internal/middleware"
	"github.com/washnet/washnet-api/internal/models"
	"github.com/washnet/washnet-api/internal/repository"
	"github.com/washnet/washnet-api/internal/service"
	"github.com/washnet/washnet-api/pkg/cache"
	"github.com/washnet/washnet-api/pkg/config"
	"github.com/washnet/washnet-api/pkg/database"
	"github.com/washnet/washnet-api/pkg/logger"
	corsmiddleware "github.com/washnet/washnet-api/pkg/middleware/cors"
	reqidmiddleware "github.com/washnet/washnet-api/pkg/middleware/requestid"
)

// @title WashNet Auth API
// @version 1.0.0
// @description Authentication service for the WashNet car-wash platform
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var sessionRepo repository.SessionRepository
	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		sessionRepo = repository.NewRedisSessionRepository(redisClient)
	default:
		sessionRepo = repository.NewPostgresSessionRepository(db)
	}

	tokenRepo := repository.NewPostgresTokenRepository(db)
	userRepo := repository.NewUserRepository(db)

	metricsSvc := service.NewMetricsService()

	sessionSvc := service.NewSessionService(sessionRepo, logr, metricsSvc, service.SessionConfig{
		DefaultTTL: cfg.Session.DefaultTTL,
	})

	tokenSvc := service.NewTokenService(tokenRepo, userRepo, logr, metricsSvc, service.TokenConfig{
		Secret:             cfg.Auth.Secret,
		AccessTokenExpiry:  cfg.Auth.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.Auth.RefreshTokenExpiry,
		RetentionWindow:    cfg.Auth.RetentionWindow,
		Issuer:             cfg.Auth.Issuer,
		Audience:           cfg.Auth.Audience,
	})

	// The brute-force lockout counter lives in the platform's abuse service;
	// this binary only consumes the pass/fail signal when one is wired.
	authSvc := service.NewAuthService(userRepo, tokenSvc, nil, validator.New(), logr, metricsSvc)

	sweeper := service.NewSweeper(sessionSvc, tokenSvc, logr, cfg.Session.SweepInterval, cfg.Auth.SweepInterval)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	authHandler := handler.NewAuthHandler(authSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	opsHandler := handler.NewOpsHandler(sweeper)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", authHandler.Logout)

	authed := api.Group("/auth")
	authed.Use(middleware.JWT(tokenSvc))
	authed.POST("/logout-all", authHandler.LogoutAll)
	authed.POST("/change-password", authHandler.ChangePassword)
	authed.GET("/me", authHandler.Me)

	admin := api.Group("/admin")
	admin.Use(middleware.JWT(tokenSvc), middleware.RequireRole(models.RolePlatformAdmin))
	admin.POST("/sweep", opsHandler.Sweep)

	portal := api.Group("/portal")
	portal.Use(middleware.Session(sessionSvc, ""))
	portal.GET("/session", sessionHandler.Show)
	portal.POST("/session/extend", sessionHandler.Extend)
	portal.DELETE("/session", sessionHandler.Destroy)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper.Start(ctx)
	defer sweeper.Stop()

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		<-ctx.Done()
		logr.Sugar().Infow("shutting down")
		_ = srv.Shutdown(context.Background())
	}()

	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "session_backend", cfg.Session.Backend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
