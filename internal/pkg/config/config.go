package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	JWTSecret string `env:"JWT_SECRET, required"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=10s"`

	Mongo MongoConfig
	Redis RedisConfig
	Auth  AuthConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=event_planner"`
	// WatchChanges enables change streams; requires a replica set.
	WatchChanges bool `env:"MONGO_WATCH_CHANGES, default=true"`
	// ChangeWorkers is the number of sharded change-feed delivery workers.
	ChangeWorkers int `env:"MONGO_CHANGE_WORKERS, default=8"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,      default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,        default=0"`
	PoolSize int    `env:"REDIS_POOL_SIZE, default=0"`
}

// AuthConfig tunes the credential store and the session/role machinery.
type AuthConfig struct {
	TokenTTL          time.Duration `env:"AUTH_TOKEN_TTL,           default=24h"`
	ResolveTimeout    time.Duration `env:"AUTH_RESOLVE_TIMEOUT,     default=5s"`
	SignUpSpacing     time.Duration `env:"AUTH_SIGNUP_SPACING,      default=1500ms"`
	MinPasswordLength int           `env:"AUTH_MIN_PASSWORD_LENGTH, default=6"`
	SignInAttempts    int64         `env:"AUTH_SIGNIN_ATTEMPTS,     default=5"`
	SignInWindow      time.Duration `env:"AUTH_SIGNIN_WINDOW,       default=1m"`
	RequireConfirm    bool          `env:"AUTH_REQUIRE_CONFIRMATION, default=false"`
	ResetTokenTTL     time.Duration `env:"AUTH_RESET_TOKEN_TTL,     default=1h"`
	// MaxSessions bounds each session pool of the registry; idle sessions
	// are closed after SessionIdleTimeout.
	MaxSessions        int           `env:"AUTH_MAX_SESSIONS,         default=10000"`
	SessionIdleTimeout time.Duration `env:"AUTH_SESSION_IDLE_TIMEOUT, default=24h"`
	// BootstrapAdminEmail seeds the first administrator and always resolves
	// to the admin role. Empty disables both.
	BootstrapAdminEmail    string `env:"AUTH_BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword string `env:"AUTH_BOOTSTRAP_ADMIN_PASSWORD"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return &cfg
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
