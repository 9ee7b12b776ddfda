package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Session store backends.
const (
	SessionBackendPostgres = "postgres"
	SessionBackendRedis    = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Session  SessionConfig
	CORS     CORSConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig drives the token-pair issuer.
type AuthConfig struct {
	Secret             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	RetentionWindow    time.Duration
	SweepInterval      time.Duration
	Issuer             string
	Audience           []string
}

// SessionConfig drives the opaque session store.
type SessionConfig struct {
	Backend       string
	DefaultTTL    time.Duration
	SweepInterval time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Auth = AuthConfig{
		Secret:             v.GetString("JWT_SECRET"),
		AccessTokenExpiry:  parseDuration(v.GetString("ACCESS_TOKEN_EXPIRATION"), 15*time.Minute),
		RefreshTokenExpiry: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		RetentionWindow:    parseDuration(v.GetString("TOKEN_RETENTION_WINDOW"), 30*24*time.Hour),
		SweepInterval:      parseDuration(v.GetString("TOKEN_SWEEP_INTERVAL"), time.Hour),
		Issuer:             v.GetString("JWT_ISSUER"),
		Audience:           splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.Session = SessionConfig{
		Backend:       v.GetString("SESSION_BACKEND"),
		DefaultTTL:    parseDuration(v.GetString("SESSION_DEFAULT_TTL"), 24*time.Hour),
		SweepInterval: parseDuration(v.GetString("SESSION_SWEEP_INTERVAL"), time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate enforces startup-fatal misconfiguration. A production deployment
// without a real signing secret must not come up.
func (c *Config) validate() error {
	if c.Env == EnvProduction {
		if c.Auth.Secret == "" || c.Auth.Secret == "dev_secret" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
	}

	switch c.Session.Backend {
	case SessionBackendPostgres, SessionBackendRedis:
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "washnet_auth")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "washnet-auth")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("ACCESS_TOKEN_EXPIRATION", "15m")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("TOKEN_RETENTION_WINDOW", "720h")
	v.SetDefault("TOKEN_SWEEP_INTERVAL", "1h")

	v.SetDefault("SESSION_BACKEND", SessionBackendPostgres)
	v.SetDefault("SESSION_DEFAULT_TTL", "24h")
	v.SetDefault("SESSION_SWEEP_INTERVAL", "1h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
