package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage and feed drivers.
const (
	StorageLocal = "local"
	StorageMinio = "minio"
	FeedRedis    = "redis"
	FeedLocal    = "local"
)

type Config struct {
	Env             string
	Port            int
	APIPrefix       string
	ShutdownTimeout time.Duration

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Storage  StorageConfig
	Minio    MinioConfig
	Search   SearchConfig
	Feed     FeedConfig
	Metrics  MetricsConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	MigrationsDir string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects where article images live.
type StorageConfig struct {
	Driver          string
	LocalDir        string
	PublicBaseURL   string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	MaxImageBytes   int64
	AllowedMIMEs    []string
}

// MinioConfig addresses an S3 compatible bucket.
type MinioConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	UseSSL     bool
	PublicRead bool
	URLTTL     time.Duration
}

// SearchConfig governs the public search index and the feed debounce.
type SearchConfig struct {
	MeiliURL       string
	MeiliAPIKey    string
	IndexWorkers   int
	IndexRetries   int
	DebounceDelay  time.Duration
	HealthInterval time.Duration
	CacheTTL       time.Duration
}

// FeedConfig selects the change notification transport for live queries.
type FeedConfig struct {
	Driver string
}

type MetricsConfig struct {
	Enabled bool
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects development secrets in production and unknown drivers.
func (c *Config) Validate() error {
	if c.Env == EnvProduction {
		if c.JWT.Secret == "" || c.JWT.Secret == devJWTSecret {
			return errors.New("config: JWT_SECRET must be set in production")
		}
		if c.Storage.Driver == StorageLocal && c.Storage.SignedURLSecret == devMediaSecret {
			return errors.New("config: STORAGE_SIGNED_URL_SECRET must be set in production")
		}
	}
	switch c.Storage.Driver {
	case StorageLocal, StorageMinio:
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	switch c.Feed.Driver {
	case FeedLocal, FeedRedis:
	default:
		return fmt.Errorf("config: unknown FEED_DRIVER %q", c.Feed.Driver)
	}
	return nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.ShutdownTimeout = parseDuration(v.GetString("SHUTDOWN_TIMEOUT"), 15*time.Second)

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		MigrationsDir: v.GetString("MIGRATIONS_DIR"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxImage := v.GetInt64("STORAGE_MAX_IMAGE_SIZE")
	if maxImage <= 0 {
		maxImage = 5 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LocalDir:        v.GetString("STORAGE_LOCAL_DIR"),
		PublicBaseURL:   strings.TrimRight(v.GetString("STORAGE_PUBLIC_BASE_URL"), "/"),
		SignedURLSecret: v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 0),
		MaxImageBytes:   maxImage,
		AllowedMIMEs:    splitAndTrim(v.GetString("STORAGE_ALLOWED_MIME_TYPES")),
	}

	cfg.Minio = MinioConfig{
		Endpoint:   v.GetString("MINIO_ENDPOINT"),
		AccessKey:  v.GetString("MINIO_ACCESS_KEY"),
		SecretKey:  v.GetString("MINIO_SECRET_KEY"),
		Bucket:     v.GetString("MINIO_BUCKET"),
		UseSSL:     v.GetBool("MINIO_USE_SSL"),
		PublicRead: v.GetBool("MINIO_PUBLIC_READ"),
		URLTTL:     parseDuration(v.GetString("MINIO_URL_TTL"), 24*time.Hour),
	}

	cfg.Search = SearchConfig{
		MeiliURL:       v.GetString("MEILI_URL"),
		MeiliAPIKey:    v.GetString("MEILI_API_KEY"),
		IndexWorkers:   v.GetInt("SEARCH_INDEX_WORKERS"),
		IndexRetries:   v.GetInt("SEARCH_INDEX_RETRIES"),
		DebounceDelay:  parseDuration(v.GetString("SEARCH_DEBOUNCE"), 300*time.Millisecond),
		HealthInterval: parseDuration(v.GetString("SEARCH_HEALTH_INTERVAL"), 15*time.Second),
		CacheTTL:       parseDuration(v.GetString("SEARCH_CACHE_TTL"), 30*time.Second),
	}

	cfg.Feed = FeedConfig{Driver: strings.ToLower(v.GetString("FEED_DRIVER"))}
	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("METRICS_ENABLED")}

	return cfg
}

const (
	devJWTSecret   = "dev_secret"
	devMediaSecret = "dev_media_secret"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "newsdesk")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "./db/migrations")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", devJWTSecret)
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_DRIVER", StorageLocal)
	v.SetDefault("STORAGE_LOCAL_DIR", "./media")
	v.SetDefault("STORAGE_PUBLIC_BASE_URL", "http://localhost:8080/media")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", devMediaSecret)
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "0s")
	v.SetDefault("STORAGE_MAX_IMAGE_SIZE", 5*1024*1024)
	v.SetDefault("STORAGE_ALLOWED_MIME_TYPES", "image/jpeg,image/png,image/gif,image/webp")

	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_BUCKET", "news-images")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("MINIO_PUBLIC_READ", true)
	v.SetDefault("MINIO_URL_TTL", "24h")

	v.SetDefault("MEILI_URL", "")
	v.SetDefault("MEILI_API_KEY", "")
	v.SetDefault("SEARCH_INDEX_WORKERS", 1)
	v.SetDefault("SEARCH_INDEX_RETRIES", 3)
	v.SetDefault("SEARCH_DEBOUNCE", "300ms")
	v.SetDefault("SEARCH_HEALTH_INTERVAL", "15s")
	v.SetDefault("SEARCH_CACHE_TTL", "30s")

	v.SetDefault("FEED_DRIVER", FeedRedis)
	v.SetDefault("METRICS_ENABLED", true)
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
