package config

import (
	"errors"
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

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Matching      MatchingConfig
	Escalation    EscalationConfig
	Notifications NotificationConfig
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

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MatchingConfig holds the system-wide defaults merged under each school's matching settings.
type MatchingConfig struct {
	DefaultBatchSize   int
	DefaultWaitMinutes int
	CacheEnabled       bool
	CacheTTL           time.Duration
}

// EscalationConfig sizes the deferred-check worker pool and the recovery sweep.
type EscalationConfig struct {
	Workers       int
	BufferSize    int
	MaxRetries    int
	RetryDelay    time.Duration
	SweepInterval time.Duration
}

// NotificationConfig controls the pub/sub fan-out channel naming.
type NotificationConfig struct {
	ChannelPrefix string
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
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

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Matching = MatchingConfig{
		DefaultBatchSize:   positiveOr(v.GetInt("MATCHING_DEFAULT_BATCH_SIZE"), 10),
		DefaultWaitMinutes: positiveOr(v.GetInt("MATCHING_DEFAULT_WAIT_MINUTES"), 10),
		CacheEnabled:       v.GetBool("MATCHING_CONFIG_CACHE_ENABLED"),
		CacheTTL:           parseDuration(v.GetString("MATCHING_CONFIG_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Escalation = EscalationConfig{
		Workers:       positiveOr(v.GetInt("ESCALATION_WORKERS"), 2),
		BufferSize:    v.GetInt("ESCALATION_BUFFER_SIZE"),
		MaxRetries:    positiveOr(v.GetInt("ESCALATION_MAX_RETRIES"), 3),
		RetryDelay:    parseDuration(v.GetString("ESCALATION_RETRY_DELAY"), 5*time.Second),
		SweepInterval: parseDuration(v.GetString("ESCALATION_SWEEP_INTERVAL"), 5*time.Minute),
	}

	cfg.Notifications = NotificationConfig{
		ChannelPrefix: v.GetString("NOTIFICATIONS_CHANNEL_PREFIX"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "substitutes")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "sma-substitute-api")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MATCHING_DEFAULT_BATCH_SIZE", 10)
	v.SetDefault("MATCHING_DEFAULT_WAIT_MINUTES", 10)
	v.SetDefault("MATCHING_CONFIG_CACHE_ENABLED", true)
	v.SetDefault("MATCHING_CONFIG_CACHE_TTL", "5m")

	v.SetDefault("ESCALATION_WORKERS", 2)
	v.SetDefault("ESCALATION_BUFFER_SIZE", 64)
	v.SetDefault("ESCALATION_MAX_RETRIES", 3)
	v.SetDefault("ESCALATION_RETRY_DELAY", "5s")
	v.SetDefault("ESCALATION_SWEEP_INTERVAL", "5m")

	v.SetDefault("NOTIFICATIONS_CHANNEL_PREFIX", "substitutes")
}

// viper reports a missing explicit config file as a plain fs error rather than
// ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
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
