package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	StoreDriver string
	Database    DatabaseConfig
	Mongo       MongoConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Server      ServerConfig
	Slack       SlackConfig
	Archive     ArchiveConfig
	Audit       AuditConfig
	SelfHosted  bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
	Migrate  bool
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// Enabled reports whether Redis is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// JWTConfig holds JWT verification settings. Tokens are issued elsewhere.
type JWTConfig struct {
	Secret string //nolint:gosec // G117: JWT signing secret config
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// SlackConfig holds the operational alert destination.
type SlackConfig struct {
	BotToken     string
	AlertChannel string
}

// Enabled reports whether Slack alerts are configured.
func (c *SlackConfig) Enabled() bool {
	return c.BotToken != "" && c.AlertChannel != ""
}

// ArchiveConfig holds the export archive bucket. An empty Bucket disables
// archiving.
type ArchiveConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string //nolint:gosec // G117: object storage credential
}

// AuditConfig tunes the recorder.
type AuditConfig struct {
	SerializeWrites  bool
	SnapshotCacheTTL time.Duration
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("CLINAUDIT_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("CLINAUDIT_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMigrate, err := getEnvBool("CLINAUDIT_DB_MIGRATE", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("CLINAUDIT_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("CLINAUDIT_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("CLINAUDIT_SERVER_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateLimitRPS, err := getEnvFloat("CLINAUDIT_RATE_LIMIT_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateLimitBurst, err := getEnvInt("CLINAUDIT_RATE_LIMIT_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	serializeWrites, err := getEnvBool("CLINAUDIT_AUDIT_SERIALIZE_WRITES", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	snapshotTTL, err := getEnvDuration("CLINAUDIT_AUDIT_SNAPSHOT_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	selfHosted, err := getEnvBool("CLINAUDIT_SELF_HOSTED", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("CLINAUDIT_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		StoreDriver: strings.ToLower(getEnv("CLINAUDIT_STORE_DRIVER", DriverPostgres)),
		Database: DatabaseConfig{
			Host:     getEnv("CLINAUDIT_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("CLINAUDIT_DB_USER", "clinaudit"),
			Password: getEnv("CLINAUDIT_DB_PASSWORD", ""),
			DBName:   getEnv("CLINAUDIT_DB_NAME", "clinaudit_dev"),
			SSLMode:  getEnv("CLINAUDIT_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
			Migrate:  dbMigrate,
		},
		Mongo: MongoConfig{
			URI:      getEnv("CLINAUDIT_MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("CLINAUDIT_MONGO_DB", "clinaudit"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("CLINAUDIT_REDIS_ADDR"),
			Password: getEnv("CLINAUDIT_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret: getEnv("CLINAUDIT_JWT_SECRET", ""),
		},
		Server: ServerConfig{
			Addr:           getEnv("CLINAUDIT_SERVER_ADDR", ":8080"),
			ReadTimeout:    readTimeout,
			WriteTimeout:   writeTimeout,
			CORSOrigins:    corsOrigins,
			RateLimitRPS:   rateLimitRPS,
			RateLimitBurst: rateLimitBurst,
		},
		Slack: SlackConfig{
			BotToken:     getEnv("CLINAUDIT_SLACK_BOT_TOKEN", ""),
			AlertChannel: getEnv("CLINAUDIT_SLACK_ALERT_CHANNEL", ""),
		},
		Archive: ArchiveConfig{
			Bucket:          getEnv("CLINAUDIT_EXPORT_ARCHIVE_BUCKET", ""),
			Region:          getEnv("CLINAUDIT_EXPORT_ARCHIVE_REGION", "us-east-1"),
			Endpoint:        getEnv("CLINAUDIT_EXPORT_ARCHIVE_ENDPOINT", ""),
			AccessKeyID:     getEnv("CLINAUDIT_EXPORT_ARCHIVE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("CLINAUDIT_EXPORT_ARCHIVE_SECRET_ACCESS_KEY", ""),
		},
		Audit: AuditConfig{
			SerializeWrites:  serializeWrites,
			SnapshotCacheTTL: snapshotTTL,
		},
		SelfHosted: selfHosted,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("CLINAUDIT_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("CLINAUDIT_JWT_SECRET must be at least 32 characters")
	}

	switch c.StoreDriver {
	case DriverPostgres:
		// DB SSL mode warning for non-self-hosted deployments.
		if c.Database.SSLMode == "disable" && !c.SelfHosted {
			log.Warn().Msg("CLINAUDIT_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
		}
	case DriverMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return errors.New("CLINAUDIT_MONGO_URI and CLINAUDIT_MONGO_DB are required for the mongo driver")
		}
	case DriverMemory:
		log.Warn().Msg("CLINAUDIT_STORE_DRIVER=memory keeps the audit trail in process memory; events are lost on restart")
	default:
		return fmt.Errorf("CLINAUDIT_STORE_DRIVER must be one of postgres, mongo, memory, got %q", c.StoreDriver)
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("CLINAUDIT_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("CLINAUDIT_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("CLINAUDIT_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("CLINAUDIT_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.RateLimitRPS <= 0 {
		return fmt.Errorf("CLINAUDIT_RATE_LIMIT_RPS must be positive, got %g", c.Server.RateLimitRPS)
	}
	if c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("CLINAUDIT_RATE_LIMIT_BURST must be >= 1, got %d", c.Server.RateLimitBurst)
	}
	if c.Audit.SnapshotCacheTTL <= 0 {
		return fmt.Errorf("CLINAUDIT_AUDIT_SNAPSHOT_CACHE_TTL must be positive, got %s", c.Audit.SnapshotCacheTTL)
	}
	if (c.Slack.BotToken == "") != (c.Slack.AlertChannel == "") {
		return errors.New("CLINAUDIT_SLACK_BOT_TOKEN and CLINAUDIT_SLACK_ALERT_CHANNEL must be set together")
	}
	if c.Archive.AccessKeyID != "" && c.Archive.SecretAccessKey == "" {
		return errors.New("CLINAUDIT_EXPORT_ARCHIVE_SECRET_ACCESS_KEY is required when an access key id is set")
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
