package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Session       SessionConfig
	Observability ObservabilityConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
	Tenant        TenantConfig
	Bootstrap     BootstrapConfig
	CORS          CORSConfig
	Audit         AuditConfig
	Billing       BillingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the rate-limit counter store configuration.
// An empty Addr selects the in-process counter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SessionConfig holds session token configuration
type SessionConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
	MetricsEnabled bool
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Argon2Memory      uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8
	Argon2SaltLength  uint32
	Argon2KeyLength   uint32
	LoginRPS          float64
	LoginBurst        int
	LockoutAttempts   int
	LockoutDuration   time.Duration
}

// RateLimitConfig holds the fixed-window limiter configuration
type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int64
	PlanAware   bool
}

// TenantConfig holds tenant defaults
type TenantConfig struct {
	DefaultSlug   string
	DefaultLocale string
}

// BootstrapConfig controls the superadmin seed
type BootstrapConfig struct {
	SeedSuperadmin     bool
	SuperadminEmail    string
	SuperadminPassword string
	DefaultTenantName  string
}

// CORSConfig holds allowed origins for the API
type CORSConfig struct {
	AllowedOrigins []string
}

// AuditConfig holds the async recorder configuration
type AuditConfig struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

// BillingConfig holds billing hints returned to clients
type BillingConfig struct {
	UpgradeURL string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout:    parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:     parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
			ShutdownTimeout: parseDuration("SERVER_SHUTDOWN_TIMEOUT", "30s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "claimdesk"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "claimdesk"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt("REDIS_DB", 0),
		},
		Session: SessionConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "claimdesk"),
			TokenTTL:  parseDuration("JWT_TTL", "1h"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "claimdesk"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
			MetricsEnabled: parseBool("METRICS_ENABLED", true),
		},
		Security: SecurityConfig{
			Argon2Memory:      uint32(parseInt("ARGON2_MEMORY", 65536)),
			Argon2Iterations:  uint32(parseInt("ARGON2_ITERATIONS", 3)),
			Argon2Parallelism: uint8(parseInt("ARGON2_PARALLELISM", 4)),
			Argon2SaltLength:  uint32(parseInt("ARGON2_SALT_LENGTH", 16)),
			Argon2KeyLength:   uint32(parseInt("ARGON2_KEY_LENGTH", 32)),
			LoginRPS:          parseFloat("LOGIN_RPS", 1),
			LoginBurst:        parseInt("LOGIN_BURST", 5),
			LockoutAttempts:   parseInt("LOCKOUT_MAX_ATTEMPTS", 5),
			LockoutDuration:   parseDuration("LOCKOUT_DURATION", "15m"),
		},
		RateLimit: RateLimitConfig{
			Window:      time.Duration(parseInt("RATE_LIMIT_WINDOW_SECONDS", 900)) * time.Second,
			MaxRequests: int64(parseInt("RATE_LIMIT_MAX", 300)),
			PlanAware:   parseBool("RATE_LIMIT_PLAN_AWARE", false),
		},
		Tenant: TenantConfig{
			DefaultSlug:   getEnv("DEFAULT_TENANT_SLUG", "default"),
			DefaultLocale: getEnv("DEFAULT_LOCALE", "es"),
		},
		Bootstrap: BootstrapConfig{
			SeedSuperadmin:     parseBool("SEED_SUPERADMIN", false),
			SuperadminEmail:    getEnv("SUPERADMIN_EMAIL", ""),
			SuperadminPassword: getEnv("SUPERADMIN_PASSWORD", ""),
			DefaultTenantName:  getEnv("DEFAULT_TENANT_NAME", "Default"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseList("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Audit: AuditConfig{
			QueueSize:    parseInt("AUDIT_QUEUE_SIZE", 1024),
			Workers:      parseInt("AUDIT_WORKERS", 2),
			WriteTimeout: parseDuration("AUDIT_WRITE_TIMEOUT", "5s"),
		},
		Billing: BillingConfig{
			UpgradeURL: getEnv("BILLING_UPGRADE_URL", "/api/billing/upgrade"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if len(c.Session.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_SECONDS must be positive")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}
	if c.Bootstrap.SeedSuperadmin && (c.Bootstrap.SuperadminEmail == "" || c.Bootstrap.SuperadminPassword == "") {
		return fmt.Errorf("SUPERADMIN_EMAIL and SUPERADMIN_PASSWORD are required when SEED_SUPERADMIN is set")
	}
	if c.Audit.Workers <= 0 || c.Audit.QueueSize <= 0 {
		return fmt.Errorf("AUDIT_WORKERS and AUDIT_QUEUE_SIZE must be positive")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}

func parseList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
