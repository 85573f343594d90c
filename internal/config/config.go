package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go_agentos/internal/auth"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Store drivers
const (
	StoreDriverMySQL  = "mysql"
	StoreDriverSQLite = "sqlite"
)

// DefaultXPThreshold is the XP a training version needs before the sweep promotes it
const DefaultXPThreshold = 1000

// Config holds all configuration
type Config struct {
	StoreDriver string
	MySQL       MySQLConfig
	SQLite      SQLiteConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Log         LogConfig
	Migrate     bool
	HTTPAddr    string
	CronAPIKey  string
	WSEnabled   bool
	Admin       AdminConfig
	Evolution   EvolutionConfig
	Vote        VoteConfig
	StoreRetry  StoreRetryConfig
	Audit       AuditConfig
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// SQLiteConfig holds SQLite configuration
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
	LeewaySec     int
}

// TokenOptions converts the JWT settings for auth.NewTokens
func (c JWTConfig) TokenOptions() auth.TokenOptions {
	return auth.TokenOptions{
		Secret: c.Secret,
		Issuer: c.Issuer,
		TTL:    time.Duration(c.ExpireMinutes) * time.Minute,
		Leeway: time.Duration(c.LeewaySec) * time.Second,
	}
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// AdminConfig seeds the first admin account during migration
type AdminConfig struct {
	TenantID string
	Username string
	Password string
}

// EvolutionConfig holds the promotion sweep configuration
type EvolutionConfig struct {
	XPThreshold    int64
	WorkerEnabled  bool
	IntervalSec    int
	WorkerTenantID string
}

// VoteConfig holds vote reconciliation configuration
type VoteConfig struct {
	LockEnabled   bool
	LockTTLSec    int
	StatsCacheSec int
}

// StoreRetryConfig holds retry settings for record store reads
type StoreRetryConfig struct {
	MaxAttempts int
	InitialMs   int
	MaxMs       int
}

// AuditConfig holds audit recorder configuration
type AuditConfig struct {
	QueueSize int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		StoreDriver: getEnv("STORE_DRIVER", StoreDriverMySQL),
		MySQL: MySQLConfig{
			DSN: getEnv("MYSQL_DSN", ""),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "agentos.db"),
		},
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "1") == "1",
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "agentos"),
			LeewaySec:     getEnvInt("JWT_LEEWAY_SEC", 30),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Migrate:    getEnv("MIGRATE", "0") == "1",
		HTTPAddr:   getEnv("HTTP_ADDR", ":8080"),
		CronAPIKey: getEnv("CRON_API_KEY", ""),
		WSEnabled:  getEnv("WS_ENABLED", "1") == "1",
		Admin: AdminConfig{
			TenantID: getEnv("ADMIN_TENANT_ID", "default"),
			Username: getEnv("ADMIN_USERNAME", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
		Evolution: EvolutionConfig{
			XPThreshold:    int64(getEnvInt("EVOLUTION_XP_THRESHOLD", DefaultXPThreshold)),
			WorkerEnabled:  getEnv("EVOLUTION_WORKER_ENABLED", "0") == "1",
			IntervalSec:    getEnvInt("EVOLUTION_WORKER_INTERVAL_SEC", 3600),
			WorkerTenantID: getEnv("EVOLUTION_WORKER_TENANT", ""),
		},
		Vote: VoteConfig{
			LockEnabled:   getEnv("VOTE_LOCK_ENABLED", "0") == "1",
			LockTTLSec:    getEnvInt("VOTE_LOCK_TTL_SEC", 5),
			StatsCacheSec: getEnvInt("VOTE_STATS_CACHE_SEC", 30),
		},
		StoreRetry: StoreRetryConfig{
			MaxAttempts: getEnvInt("STORE_RETRY_MAX_ATTEMPTS", 3),
			InitialMs:   getEnvInt("STORE_RETRY_INITIAL_MS", 100),
			MaxMs:       getEnvInt("STORE_RETRY_MAX_MS", 2000),
		},
		Audit: AuditConfig{
			QueueSize: getEnvInt("AUDIT_QUEUE_SIZE", 256),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	// Priority: ENV > INI > default
	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	cfg := &Config{
		StoreDriver: getValue("STORE_DRIVER", "store", "driver", StoreDriverMySQL),
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		SQLite: SQLiteConfig{
			Path: getValue("SQLITE_PATH", "sqlite", "path", "agentos.db"),
		},
		Redis: RedisConfig{
			Enabled:  getValueBool("REDIS_ENABLED", "redis", "enabled", true),
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        getValue("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: getValueInt("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
			Issuer:        getValue("JWT_ISSUER", "jwt", "issuer", "agentos"),
			LeewaySec:     getValueInt("JWT_LEEWAY_SEC", "jwt", "leeway_sec", 30),
		},
		Log: LogConfig{
			Level:  getValue("LOG_LEVEL", "log", "level", "info"),
			Format: getValue("LOG_FORMAT", "log", "format", "text"),
		},
		Migrate:    getValueBool("MIGRATE", "app", "migrate", false),
		HTTPAddr:   getValue("HTTP_ADDR", "http", "addr", ":8080"),
		CronAPIKey: getValue("CRON_API_KEY", "http", "cron_api_key", ""),
		WSEnabled:  getValueBool("WS_ENABLED", "ws", "enabled", true),
		Admin: AdminConfig{
			TenantID: getValue("ADMIN_TENANT_ID", "admin", "tenant_id", "default"),
			Username: getValue("ADMIN_USERNAME", "admin", "username", ""),
			Password: getValue("ADMIN_PASSWORD", "admin", "password", ""),
		},
		Evolution: EvolutionConfig{
			XPThreshold:    int64(getValueInt("EVOLUTION_XP_THRESHOLD", "evolution", "xp_threshold", DefaultXPThreshold)),
			WorkerEnabled:  getValueBool("EVOLUTION_WORKER_ENABLED", "evolution", "worker_enabled", false),
			IntervalSec:    getValueInt("EVOLUTION_WORKER_INTERVAL_SEC", "evolution", "interval_sec", 3600),
			WorkerTenantID: getValue("EVOLUTION_WORKER_TENANT", "evolution", "tenant_id", ""),
		},
		Vote: VoteConfig{
			LockEnabled:   getValueBool("VOTE_LOCK_ENABLED", "vote", "lock_enabled", false),
			LockTTLSec:    getValueInt("VOTE_LOCK_TTL_SEC", "vote", "lock_ttl_sec", 5),
			StatsCacheSec: getValueInt("VOTE_STATS_CACHE_SEC", "vote", "stats_cache_sec", 30),
		},
		StoreRetry: StoreRetryConfig{
			MaxAttempts: getValueInt("STORE_RETRY_MAX_ATTEMPTS", "store", "retry_max_attempts", 3),
			InitialMs:   getValueInt("STORE_RETRY_INITIAL_MS", "store", "retry_initial_ms", 100),
			MaxMs:       getValueInt("STORE_RETRY_MAX_MS", "store", "retry_max_ms", 2000),
		},
		Audit: AuditConfig{
			QueueSize: getValueInt("AUDIT_QUEUE_SIZE", "audit", "queue_size", 256),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverMySQL:
		if c.MySQL.DSN == "" {
			return fmt.Errorf("MYSQL_DSN is required")
		}
	case StoreDriverSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Evolution.XPThreshold < 0 {
		return fmt.Errorf("EVOLUTION_XP_THRESHOLD must not be negative")
	}
	if c.Evolution.WorkerEnabled && c.Evolution.IntervalSec <= 0 {
		return fmt.Errorf("EVOLUTION_WORKER_INTERVAL_SEC must be positive")
	}
	if c.StoreRetry.MaxAttempts < 1 {
		return fmt.Errorf("STORE_RETRY_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}
