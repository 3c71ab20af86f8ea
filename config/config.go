package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ledgerwise/coaching-backend/pkg/logger"
)

const defaultJWTSecret = "change-me-in-production"

// Config holds application configuration loaded from environment.
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Booking     BookingConfig
	Zego        ZegoConfig
	Log         logger.Config
	Metrics     MetricsConfig
	Worker      WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string // if set, used as-is
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds bearer token validation settings. Tokens are issued elsewhere.
type JWTConfig struct {
	Secret string
	Issuer string // optional; checked when set
	Leeway time.Duration
}

// BookingConfig bounds the booking transaction.
type BookingConfig struct {
	LockTimeout   time.Duration // max wait for a slot or booking row lock
	TxTimeout     time.Duration // max wall time of one booking transaction
	NotifyTimeout time.Duration // max time spent publishing the post-commit event
	SlotLength    time.Duration
}

// ZegoConfig holds ZEGOCLOUD credentials for meeting-room tokens. Empty AppID disables it.
type ZegoConfig struct {
	AppID        uint32
	ServerSecret string
	TokenGrace   time.Duration // token validity past the slot end
}

// Enabled reports whether ZEGOCLOUD credentials are configured.
func (z ZegoConfig) Enabled() bool { return z.AppID != 0 }

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// WorkerConfig controls the notification relay.
type WorkerConfig struct {
	MetricsAddr string // listen address for the worker's /metrics; empty disables
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	appID, err := strconv.ParseUint(getEnv("ZEGO_APP_ID", "0"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("ZEGO_APP_ID: %w", err)
	}

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:       getEnvDuration("WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "coaching"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxConns:        int32(getEnvInt("DB_MAX_CONNS", 20)),
			MinConns:        int32(getEnvInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime: getEnvDuration("DB_MAX_CONN_LIFETIME", time.Hour),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", defaultJWTSecret),
			Issuer: getEnv("JWT_ISSUER", ""),
			Leeway: getEnvDuration("JWT_LEEWAY", 30*time.Second),
		},
		Booking: BookingConfig{
			LockTimeout:   getEnvDuration("BOOKING_LOCK_TIMEOUT", 5*time.Second),
			TxTimeout:     getEnvDuration("BOOKING_TX_TIMEOUT", 10*time.Second),
			NotifyTimeout: getEnvDuration("BOOKING_NOTIFY_TIMEOUT", 3*time.Second),
			SlotLength:    getEnvDuration("BOOKING_SLOT_LENGTH", time.Hour),
		},
		Zego: ZegoConfig{
			AppID:        uint32(appID),
			ServerSecret: getEnv("ZEGO_SERVER_SECRET", ""),
			TokenGrace:   getEnvDuration("ZEGO_TOKEN_GRACE", 15*time.Minute),
		},
		Log: logger.Config{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			FilePath:   getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 7),
			Compress:   getEnvBool("LOG_COMPRESS", false),
		},
		Metrics: MetricsConfig{
			Enabled:   getEnvBool("METRICS_ENABLED", true),
			Namespace: getEnv("METRICS_NAMESPACE", "coaching"),
		},
		Worker: WorkerConfig{
			MetricsAddr: getEnv("WORKER_METRICS_ADDR", ":9091"),
		},
	}
	return cfg, nil
}

// Validate rejects configurations the services cannot run with.
func (c Config) Validate() error {
	if c.Environment == "production" {
		if strings.TrimSpace(c.JWT.Secret) == "" || c.JWT.Secret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if c.Database.URL == "" && c.Database.Password == "postgres" {
			return fmt.Errorf("DATABASE_URL or DB_PASSWORD must be set in production")
		}
	}
	if c.Booking.LockTimeout <= 0 {
		return fmt.Errorf("BOOKING_LOCK_TIMEOUT must be positive")
	}
	if c.Booking.TxTimeout <= 0 {
		return fmt.Errorf("BOOKING_TX_TIMEOUT must be positive")
	}
	if c.Booking.LockTimeout >= c.Booking.TxTimeout {
		return fmt.Errorf("BOOKING_LOCK_TIMEOUT must be shorter than BOOKING_TX_TIMEOUT")
	}
	if c.Booking.NotifyTimeout <= 0 {
		return fmt.Errorf("BOOKING_NOTIFY_TIMEOUT must be positive")
	}
	if c.Booking.SlotLength <= 0 {
		return fmt.Errorf("BOOKING_SLOT_LENGTH must be positive")
	}
	if c.Zego.Enabled() && len(c.Zego.ServerSecret) != 32 {
		return fmt.Errorf("ZEGO_SERVER_SECRET must be 32 characters when ZEGO_APP_ID is set")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("DB_MAX_CONNS must not be below DB_MIN_CONNS")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
