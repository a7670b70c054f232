package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from a .env file or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Export   ExportConfig   `mapstructure:"export"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port int `mapstructure:"port"`
	// AllowedOrigins 为空时 WebSocket 只接受同源请求。
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// MetricsToken 非空时 /metrics 需要 X-Metrics-Token 头。
	MetricsToken string `mapstructure:"metrics_token"`
}

// DatabaseConfig contains connection options for PostgreSQL or a local SQLite file.
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Name       string `mapstructure:"name"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	SSLMode    string `mapstructure:"sslmode"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// StoreConfig selects the entity store implementation.
type StoreConfig struct {
	// Backend 取值 gorm 或 memory。
	Backend      string `mapstructure:"backend"`
	SeedDemo     bool   `mapstructure:"seed_demo"`
	SeedPassword string `mapstructure:"seed_password"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port.
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
	Region           string `mapstructure:"region"`
	Bucket           string `mapstructure:"bucket"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig 描述会话令牌与登录保护参数。
type AuthConfig struct {
	PrivateKeyPath        string        `mapstructure:"private_key_path"`
	PublicKeyPath         string        `mapstructure:"public_key_path"`
	AccessTokenTTL        time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL       time.Duration `mapstructure:"refresh_token_ttl"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl"`
	CookieDomain          string        `mapstructure:"cookie_domain"`
}

// ScoringConfig 暴露 rubric 权重校验策略（proportional / strict）。
type ScoringConfig struct {
	WeightPolicy string `mapstructure:"weight_policy"`
}

// UploadConfig controls document uploads.
type UploadConfig struct {
	ClamdAddr    string        `mapstructure:"clamd_addr"`
	MaxBytes     int64         `mapstructure:"max_bytes"`
	AllowedTypes []string      `mapstructure:"allowed_types"`
	ScanDisabled bool          `mapstructure:"scan_disabled"`
	LinkTTL      time.Duration `mapstructure:"link_ttl"`
}

// ExportConfig controls asynchronous CSV exports.
type ExportConfig struct {
	LinkTTL  time.Duration `mapstructure:"link_ttl"`
	MaxRetry int           `mapstructure:"max_retry"`
}

// DSN builds a lib/pq compatible connection string.
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

// Load reads configuration from an optional .env file and environment variables (with defaults).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

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
	cfg.Upload.AllowedTypes = splitList(cfg.Upload.AllowedTypes)

	if err := validate(cfg); err != nil {
		return nil, err
	}

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
	v.SetDefault("api.allowed_origins", []string{})
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "cohortflow")
	v.SetDefault("database.user", "cohortflow")
	v.SetDefault("database.password", "cohortflow")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "cohortflow.db")
	v.SetDefault("store.backend", "gorm")
	v.SetDefault("store.seed_demo", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "cohortflow")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("auth.private_key_path", "keys/jwt_private.pem")
	v.SetDefault("auth.public_key_path", "keys/jwt_public.pem")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", 15*time.Minute)
	v.SetDefault("scoring.weight_policy", "proportional")
	v.SetDefault("upload.clamd_addr", "tcp://localhost:3310")
	v.SetDefault("upload.max_bytes", 10*1024*1024)
	v.SetDefault("upload.allowed_types", []string{"application/pdf", "image/png", "image/jpeg"})
	v.SetDefault("upload.link_ttl", 10*time.Minute)
	v.SetDefault("export.link_ttl", 30*time.Minute)
	v.SetDefault("export.max_retry", 3)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"api.allowed_origins":            "API_ALLOWED_ORIGINS",
		"api.metrics_token":              "METRICS_TOKEN",
		"database.driver":                "DATABASE_DRIVER",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"database.sqlite_path":           "DATABASE_SQLITE_PATH",
		"store.backend":                  "STORE_BACKEND",
		"store.seed_demo":                "STORE_SEED_DEMO",
		"store.seed_password":            "STORE_SEED_PASSWORD",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.region":                   "MINIO_REGION",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.bucket_lookup":            "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"auth.private_key_path":          "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":           "JWT_PUBLIC_KEY_PATH",
		"auth.access_token_ttl":          "JWT_ACCESS_TOKEN_TTL",
		"auth.refresh_token_ttl":         "JWT_REFRESH_TOKEN_TTL",
		"auth.login_rate_limit_per_hour": "LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":      "LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":            "LOGIN_LOCK_TTL",
		"auth.cookie_domain":             "COOKIE_DOMAIN",
		"scoring.weight_policy":          "SCORING_WEIGHT_POLICY",
		"upload.clamd_addr":              "CLAMD_ADDR",
		"upload.max_bytes":               "UPLOAD_MAX_BYTES",
		"upload.allowed_types":           "UPLOAD_ALLOWED_TYPES",
		"upload.scan_disabled":           "UPLOAD_SCAN_DISABLED",
		"upload.link_ttl":                "UPLOAD_LINK_TTL",
		"export.link_ttl":                "EXPORT_LINK_TTL",
		"export.max_retry":               "EXPORT_MAX_RETRY",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

// splitList 兼容 "a,b" 形式的环境变量。
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

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	switch cfg.Store.Backend {
	case "gorm", "memory":
	default:
		return fmt.Errorf("store backend must be gorm or memory, got %q", cfg.Store.Backend)
	}
	if cfg.Store.SeedDemo && len(cfg.Store.SeedPassword) < 8 {
		return errors.New("store seed password must be at least 8 characters when demo seeding is enabled")
	}
	if cfg.Store.Backend == "gorm" {
		if err := validateDatabase(cfg.Database); err != nil {
			return err
		}
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
		return errors.New("token ttl must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Scoring.WeightPolicy)) {
	case "", "proportional", "strict":
	default:
		return fmt.Errorf("scoring weight policy must be proportional or strict, got %q", cfg.Scoring.WeightPolicy)
	}
	if cfg.Upload.MaxBytes <= 0 {
		return errors.New("upload max bytes must be positive")
	}
	if !cfg.Upload.ScanDisabled && cfg.Upload.ClamdAddr == "" {
		return errors.New("clamd address is required unless scanning is disabled")
	}
	return nil
}

func validateDatabase(db DatabaseConfig) error {
	switch db.Driver {
	case "sqlite":
		if db.SQLitePath == "" {
			return errors.New("database sqlite path is required")
		}
		return nil
	case "postgres":
	default:
		return fmt.Errorf("database driver must be postgres or sqlite, got %q", db.Driver)
	}
	if db.Host == "" {
		return errors.New("database host is required")
	}
	if db.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if db.Name == "" {
		return errors.New("database name is required")
	}
	if db.User == "" {
		return errors.New("database user is required")
	}
	if db.Password == "" {
		return errors.New("database password is required")
	}
	if db.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	return nil
}
