// Package config loads the engine's environment-style configuration
// surface: a .env overlay, environment variables decoded by struct tag,
// and a handful of derived conveniences.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/CePseudoBE/digitaltwin-sub001/pkg/logger"
)

// AuthMode selects which auth provider the engine constructs.
type AuthMode string

const (
	AuthModeGateway AuthMode = "gateway"
	AuthModeJWT     AuthMode = "jwt"
	AuthModeNone    AuthMode = "none"
)

// AuthConfig controls §4.3's three auth modes.
type AuthConfig struct {
	Mode            string `env:"AUTH_MODE" yaml:"mode"`
	DisableAuth     bool   `env:"DISABLE_AUTH" yaml:"disableAuth"`
	AnonymousUserID string `env:"ANONYMOUS_USER_ID" yaml:"anonymousUserId"`
	AdminRoleName   string `env:"ADMIN_ROLE_NAME" yaml:"adminRoleName"`
	JWTSecret       string `env:"JWT_SECRET" yaml:"-"`
	JWTPublicKey    string `env:"JWT_PUBLIC_KEY" yaml:"-"`
	JWTAlgorithm    string `env:"JWT_ALGORITHM" yaml:"jwtAlgorithm"`
	JWTIssuer       string `env:"JWT_ISSUER" yaml:"jwtIssuer"`
	JWTAudience     string `env:"JWT_AUDIENCE" yaml:"jwtAudience"`
	JWTUserIDClaim  string `env:"JWT_USER_ID_CLAIM" yaml:"jwtUserIdClaim"`
	JWTRolesClaim   string `env:"JWT_ROLES_CLAIM" yaml:"jwtRolesClaim"`
}

// Mode_ resolves the effective auth mode under the precedence of §4.3:
// explicit mode, then env override, then default gateway, with the
// disabled-auth escape hatch always forcing "none".
func (a AuthConfig) Mode_() AuthMode {
	if a.DisableAuth {
		return AuthModeNone
	}
	switch AuthMode(strings.ToLower(strings.TrimSpace(a.Mode))) {
	case AuthModeJWT:
		return AuthModeJWT
	case AuthModeNone:
		return AuthModeNone
	case AuthModeGateway:
		return AuthModeGateway
	default:
		return AuthModeGateway
	}
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string `env:"SERVER_HOST" yaml:"host"`
	Port            int    `env:"SERVER_PORT" yaml:"port"`
	ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT_SECONDS" yaml:"shutdownTimeoutSeconds"`
	BodyLimitBytes  int64  `env:"BODY_LIMIT_BYTES" yaml:"bodyLimitBytes"`
	EnableGzip      bool   `env:"ENABLE_COMPRESSION" yaml:"enableCompression"`
}

// ShutdownTimeoutDuration returns the configured shutdown budget, defaulting
// to 30s per spec §4.2.
func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	if s.ShutdownTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// DatabaseConfig controls the record store's postgres backend.
type DatabaseConfig struct {
	DSN             string `env:"DATABASE_DSN" yaml:"-"`
	MaxOpenConns    int    `env:"DATABASE_MAX_OPEN_CONNS" yaml:"maxOpenConns"`
	MaxIdleConns    int    `env:"DATABASE_MAX_IDLE_CONNS" yaml:"maxIdleConns"`
	ConnMaxLifetime int    `env:"DATABASE_CONN_MAX_LIFETIME_SECONDS" yaml:"connMaxLifetimeSeconds"`
}

// QueueConfig controls the job queue backend.
type QueueConfig struct {
	RedisAddr         string `env:"QUEUE_REDIS_ADDR" yaml:"redisAddr"`
	LegacySingleQueue bool   `env:"QUEUE_LEGACY_SINGLE_MODE" yaml:"legacySingleQueue"`
	UploadConcurrency int    `env:"QUEUE_UPLOAD_CONCURRENCY" yaml:"uploadConcurrency"`
}

// Config is the top-level configuration structure for the engine.
type Config struct {
	Env      string         `env:"NODE_ENV" yaml:"env"`
	Server   ServerConfig   `env:"" yaml:"server"`
	Database DatabaseConfig `env:"" yaml:"database"`
	Queue    QueueConfig    `env:"" yaml:"queue"`
	Auth     AuthConfig     `env:"" yaml:"auth"`
	Logging  logger.Config  `env:"" yaml:"logging"`
}

// IsProduction reports whether stack traces should be suppressed in the
// HTTP error envelope per §6/§7.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// Load reads a .env file (if present), overlays an optional YAML config
// file onto the defaults, then decodes environment variables on top of
// that, mirroring the teacher's envdecode+godotenv+yaml composition
// (env vars win over the file, the file wins over defaults).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile overlays a YAML document at path onto cfg. A missing file is
// not an error: the config file is optional, with env vars and defaults
// sufficient on their own.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Default returns a Config populated with the engine's baseline defaults.
func Default() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30,
			BodyLimitBytes:  32 << 20,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Queue: QueueConfig{
			RedisAddr:         "127.0.0.1:6379",
			UploadConcurrency: 2,
		},
		Auth: AuthConfig{
			Mode:            string(AuthModeGateway),
			AnonymousUserID: "anonymous",
			AdminRoleName:   "admin",
			JWTAlgorithm:    "HS256",
			JWTUserIDClaim:  "sub",
			JWTRolesClaim:   "realm_access.roles",
		},
		Logging: logger.Config{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// EnvBool is a small helper used outside of envdecode-managed structs, for
// ad-hoc boolean flags read directly from the process environment.
func EnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
