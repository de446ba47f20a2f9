package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates application settings sourced from environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
	Clamd    ClamdConfig    `mapstructure:"clamd"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Log      LogConfig      `mapstructure:"log"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	CookieDomain   string   `mapstructure:"cookie_domain"`
	InternalSecret string   `mapstructure:"internal_secret"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowQuery       time.Duration `mapstructure:"slow_query"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig carries the RS256 key pair and login throttling knobs.
type AuthConfig struct {
	PrivateKeyPEM         string        `mapstructure:"private_key_pem"`
	PublicKeyPEM          string        `mapstructure:"public_key_pem"`
	AccessTokenTTL        time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL       time.Duration `mapstructure:"refresh_token_ttl"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl"`
}

// PaymentConfig selects and configures the payment gateway.
type PaymentConfig struct {
	Provider             string        `mapstructure:"provider"`
	Currency             string        `mapstructure:"currency"`
	RazorpayKeyID        string        `mapstructure:"razorpay_key_id"`
	RazorpayKeySecret    string        `mapstructure:"razorpay_key_secret"`
	RazorpayAPIURL       string        `mapstructure:"razorpay_api_url"`
	StripeSecretKey      string        `mapstructure:"stripe_secret_key"`
	StripePublishableKey string        `mapstructure:"stripe_publishable_key"`
	StripeWebhookSecret  string        `mapstructure:"stripe_webhook_secret"`
	StripeAPIURL         string        `mapstructure:"stripe_api_url"`
	PendingTTL           time.Duration `mapstructure:"pending_ttl"`
}

// CheckoutConfig tunes the application-to-course workflow.
type CheckoutConfig struct {
	SessionTTL         time.Duration `mapstructure:"session_ttl"`
	CallbackRatePerSec float64       `mapstructure:"callback_rate_per_sec"`
	CallbackBurst      int           `mapstructure:"callback_burst"`
	ReconcileSpec      string        `mapstructure:"reconcile_spec"`
	PurgeSpec          string        `mapstructure:"purge_spec"`
}

// ClamdConfig points at the clamd daemon used for upload scanning. Empty disables scanning.
type ClamdConfig struct {
	Addr string `mapstructure:"addr"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// WorkerConfig 包含 asynq worker 的运行参数。
type WorkerConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
	ChromeBin     string        `mapstructure:"chrome_bin"`
}

// DSN builds a libpq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration from environment variables (with optional defaults).
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := validate(*cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase is Load for tools that only talk to PostgreSQL; other sections are not validated.
func LoadDatabase() (DatabaseConfig, error) {
	cfg, err := read()
	if err != nil {
		return DatabaseConfig{}, err
	}
	if err := validateDatabase(cfg.Database); err != nil {
		return DatabaseConfig{}, err
	}
	return cfg.Database, nil
}

func read() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.API.AllowedOrigins = splitList(cfg.API.AllowedOrigins)
	cfg.Payment.Provider = strings.ToLower(strings.TrimSpace(cfg.Payment.Provider))
	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "careerhub")
	v.SetDefault("database.user", "careerhub")
	v.SetDefault("database.password", "careerhub")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.slow_query", 200*time.Millisecond)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "careerhub")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", 15*time.Minute)
	v.SetDefault("payment.provider", "razorpay")
	v.SetDefault("payment.currency", "INR")
	v.SetDefault("payment.razorpay_api_url", "https://api.razorpay.com/v1")
	v.SetDefault("payment.pending_ttl", 24*time.Hour)
	v.SetDefault("checkout.session_ttl", 2*time.Hour)
	v.SetDefault("checkout.callback_rate_per_sec", 5.0)
	v.SetDefault("checkout.callback_burst", 10)
	v.SetDefault("checkout.reconcile_spec", "@every 15m")
	v.SetDefault("checkout.purge_spec", "@hourly")
	v.SetDefault("sentry.environment", "development")
	v.SetDefault("sentry.sample_rate", 1.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.render_timeout", 30*time.Second)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"api.allowed_origins":            "API_ALLOWED_ORIGINS",
		"api.cookie_domain":              "API_COOKIE_DOMAIN",
		"api.internal_secret":            "INTERNAL_API_SECRET",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"database.max_open_conns":        "DATABASE_MAX_OPEN_CONNS",
		"database.max_idle_conns":        "DATABASE_MAX_IDLE_CONNS",
		"database.conn_max_lifetime":     "DATABASE_CONN_MAX_LIFETIME",
		"database.slow_query":            "DATABASE_SLOW_QUERY",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.region":                   "MINIO_REGION",
		"minio.bucket_lookup":            "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"auth.private_key_pem":           "JWT_PRIVATE_KEY",
		"auth.public_key_pem":            "JWT_PUBLIC_KEY",
		"auth.access_token_ttl":          "JWT_ACCESS_TOKEN_TTL",
		"auth.refresh_token_ttl":         "JWT_REFRESH_TOKEN_TTL",
		"auth.login_rate_limit_per_hour": "LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":      "LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":            "LOGIN_LOCK_TTL",
		"payment.provider":               "PAYMENT_PROVIDER",
		"payment.currency":               "PAYMENT_CURRENCY",
		"payment.razorpay_key_id":        "RAZORPAY_KEY_ID",
		"payment.razorpay_key_secret":    "RAZORPAY_KEY_SECRET",
		"payment.razorpay_api_url":       "RAZORPAY_API_URL",
		"payment.stripe_secret_key":      "STRIPE_SECRET_KEY",
		"payment.stripe_publishable_key": "STRIPE_PUBLISHABLE_KEY",
		"payment.stripe_webhook_secret":  "STRIPE_WEBHOOK_SECRET",
		"payment.stripe_api_url":         "STRIPE_API_URL",
		"payment.pending_ttl":            "PAYMENT_PENDING_TTL",
		"checkout.session_ttl":           "CHECKOUT_SESSION_TTL",
		"checkout.callback_rate_per_sec": "CHECKOUT_CALLBACK_RATE",
		"checkout.callback_burst":        "CHECKOUT_CALLBACK_BURST",
		"checkout.reconcile_spec":        "CHECKOUT_RECONCILE_SPEC",
		"checkout.purge_spec":            "CHECKOUT_PURGE_SPEC",
		"clamd.addr":                     "CLAMD_ADDR",
		"sentry.dsn":                     "SENTRY_DSN",
		"sentry.environment":             "SENTRY_ENVIRONMENT",
		"sentry.sample_rate":             "SENTRY_SAMPLE_RATE",
		"log.level":                      "LOG_LEVEL",
		"log.format":                     "LOG_FORMAT",
		"log.file":                       "LOG_FILE",
		"log.max_size_mb":                "LOG_MAX_SIZE_MB",
		"log.max_backups":                "LOG_MAX_BACKUPS",
		"log.max_age_days":               "LOG_MAX_AGE_DAYS",
		"worker.concurrency":             "WORKER_CONCURRENCY",
		"worker.render_timeout":          "WORKER_RENDER_TIMEOUT",
		"worker.chrome_bin":              "CHROME_BIN",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

// splitList accepts either a proper list or a single comma-separated env value.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func validateDatabase(d DatabaseConfig) error {
	switch {
	case d.Host == "":
		return errors.New("database host is required")
	case d.Port <= 0:
		return errors.New("database port must be positive")
	case d.Name == "":
		return errors.New("database name is required")
	case d.User == "":
		return errors.New("database user is required")
	case d.Password == "":
		return errors.New("database password is required")
	case d.SSLMode == "":
		return errors.New("database sslmode is required")
	}
	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if err := validateDatabase(cfg.Database); err != nil {
		return err
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Auth.AccessTokenTTL <= 0 || cfg.Auth.RefreshTokenTTL <= 0 {
		return errors.New("token ttls must be positive")
	}
	switch cfg.Payment.Provider {
	case "razorpay":
		if cfg.Payment.RazorpayKeyID == "" || cfg.Payment.RazorpayKeySecret == "" {
			return errors.New("razorpay key id and secret are required")
		}
	case "stripe":
		if cfg.Payment.StripeSecretKey == "" {
			return errors.New("stripe secret key is required")
		}
	default:
		return fmt.Errorf("unsupported payment provider %q", cfg.Payment.Provider)
	}
	if cfg.Payment.Currency == "" {
		return errors.New("payment currency is required")
	}
	if cfg.Checkout.SessionTTL <= 0 {
		return errors.New("checkout session ttl must be positive")
	}
	return nil
}
