package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath    = "CONFIG_PATH"
	EnvDBConnection  = "DB_CONNECTION"
	EnvJWTSecret     = "JWT_SECRET"
	EnvJWTExpiry     = "JWT_EXPIRY"
	EnvStorageDir    = "STORAGE_DIR"
	EnvSigningSecret = "URL_SIGNING_SECRET"
	EnvRedisAddr     = "REDIS_ADDR"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// ErrMissingSigningSecret indicates no URL signing secret is configured.
var ErrMissingSigningSecret = errors.New("missing url signing secret (set `storage.signing-secret` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// StorageConfig holds object store and signed URL settings.
type StorageConfig struct {
	Dir           string        `yaml:"dir"`
	SigningSecret string        `yaml:"signing-secret"`
	URLTTL        time.Duration `yaml:"url-ttl"`
}

// RedisConfig holds the optional redis counter backend settings.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RateLimitConfig holds sweeper cadence and retention settings.
type RateLimitConfig struct {
	CleanupInterval time.Duration `yaml:"cleanup-interval"`
	Retention       time.Duration `yaml:"retention"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

const (
	defaultStorageDir = "./objects"
	defaultURLTTL     = 15 * time.Minute
)

// LoadStorageConfig loads object store settings from the YAML config file.
func LoadStorageConfig(configPath string) (StorageConfig, error) {
	// fileConfig maps the YAML fields needed for storage settings.
	type fileConfig struct {
		Storage StorageConfig `yaml:"storage"`
	}

	result := StorageConfig{Dir: defaultStorageDir, URLTTL: defaultURLTTL}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Storage
		}
	}

	if dir := strings.TrimSpace(os.Getenv(EnvStorageDir)); dir != "" {
		result.Dir = dir
	}
	if secret := strings.TrimSpace(os.Getenv(EnvSigningSecret)); secret != "" {
		result.SigningSecret = secret
	}

	if strings.TrimSpace(result.Dir) == "" {
		result.Dir = defaultStorageDir
	}
	if result.URLTTL <= 0 {
		result.URLTTL = defaultURLTTL
	}
	if strings.TrimSpace(result.SigningSecret) == "" {
		return result, ErrMissingSigningSecret
	}
	return result, nil
}

// LoadRedisConfig loads the redis counter backend settings from the YAML config file.
func LoadRedisConfig(configPath string) (RedisConfig, error) {
	// fileConfig maps the YAML fields needed for redis settings.
	type fileConfig struct {
		Redis RedisConfig `yaml:"redis"`
	}

	result := RedisConfig{Prefix: "cloudez:rl"}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.Redis
		}
	}

	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		result.Addr = addr
		result.Enabled = true
	}

	result.Addr = strings.TrimSpace(result.Addr)
	result.Prefix = strings.TrimSpace(result.Prefix)
	if result.Prefix == "" {
		result.Prefix = "cloudez:rl"
	}
	if result.DB < 0 {
		result.DB = 0
	}
	if result.Enabled && result.Addr == "" {
		return result, fmt.Errorf("redis enabled but no address configured")
	}
	return result, nil
}

const (
	defaultCleanupInterval = time.Hour
	defaultRetention       = 24 * time.Hour
)

// LoadRateLimitConfig loads sweeper settings from the YAML config file.
func LoadRateLimitConfig(configPath string) (RateLimitConfig, error) {
	// fileConfig maps the YAML fields needed for rate limit settings.
	type fileConfig struct {
		RateLimit RateLimitConfig `yaml:"rate-limit"`
	}

	result := RateLimitConfig{CleanupInterval: defaultCleanupInterval, Retention: defaultRetention}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.RateLimit
		}
	}

	if result.CleanupInterval <= 0 {
		result.CleanupInterval = defaultCleanupInterval
	}
	if result.Retention <= 0 {
		result.Retention = defaultRetention
	}
	return result, nil
}

// LoadServerPort loads the listen port from the YAML config file, falling
// back to the given default.
func LoadServerPort(configPath string, fallback int) int {
	// fileConfig maps the YAML fields needed for the listen port.
	type fileConfig struct {
		Port int `yaml:"port"`
	}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil && cfg.Port > 0 {
			return cfg.Port
		}
	}
	return fallback
}
