// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinIOBucketPhotos() string
	GetMinIOPublicBaseURL() string
	IsMinIOEnabled() bool
}

// VisionConfig provides settings for the hosted vision model.
type VisionConfig interface {
	GetVisionAPIKey() string
	GetVisionBaseURL() string
	GetVisionModel() string
	GetClassificationTimeout() time.Duration
	IsVisionEnabled() bool
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// CacheConfig provides settings for the stats cache.
type CacheConfig interface {
	GetRedisURL() string
	GetStatsCacheTTL() time.Duration
}

// HotspotConfig provides hotspot lifecycle settings.
type HotspotConfig interface {
	GetHotspotDefaultTTL() time.Duration
}

// GeocodingConfig provides settings for the geocoding upstream.
type GeocodingConfig interface {
	GetGeocodingBaseURL() string
	GetGeocodingUserAgent() string
}

// ProfileConfig provides profile normalisation settings.
type ProfileConfig interface {
	GetPhoneDefaultRegion() string
}

// PolicyConfig exposes the business policy values.
type PolicyConfig interface {
	GetPolicy() Policy
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string
	HTTPAddr              string
	DatabaseURL           string
	JWTAccessSecret       string
	CORSAllowAll          bool
	CORSOrigins           []string
	CORSAllowCreds        bool
	MinIOEndpoint         string
	MinIOAccessKey        string
	MinIOSecretKey        string
	MinIOUseSSL           bool
	MinIOMaxFileSize      int64
	MinIOBucketPhotos     string
	MinIOPublicBaseURL    string
	VisionAPIKey          string
	VisionBaseURL         string
	VisionModel           string
	ClassificationTimeout time.Duration
	RedisURL              string
	RedisTLSInsecure      bool
	AsynqQueueName        string
	AsynqConcurrency      int
	StatsCacheTTL         time.Duration
	HotspotDefaultTTL     time.Duration
	GeocodingBaseURL      string
	GeocodingUserAgent    string
	PhoneDefaultRegion    string
	Policy                Policy
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string      { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string     { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string     { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool          { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64    { return c.MinIOMaxFileSize }
func (c *Config) GetMinIOBucketPhotos() string  { return c.MinIOBucketPhotos }
func (c *Config) GetMinIOPublicBaseURL() string { return c.MinIOPublicBaseURL }
func (c *Config) IsMinIOEnabled() bool          { return c.MinIOEndpoint != "" }

// VisionConfig implementation
func (c *Config) GetVisionAPIKey() string                 { return c.VisionAPIKey }
func (c *Config) GetVisionBaseURL() string                { return c.VisionBaseURL }
func (c *Config) GetVisionModel() string                  { return c.VisionModel }
func (c *Config) GetClassificationTimeout() time.Duration { return c.ClassificationTimeout }
func (c *Config) IsVisionEnabled() bool                   { return c.VisionAPIKey != "" }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }

// CacheConfig implementation
func (c *Config) GetStatsCacheTTL() time.Duration { return c.StatsCacheTTL }

// HotspotConfig implementation
func (c *Config) GetHotspotDefaultTTL() time.Duration { return c.HotspotDefaultTTL }

// GeocodingConfig implementation
func (c *Config) GetGeocodingBaseURL() string   { return c.GeocodingBaseURL }
func (c *Config) GetGeocodingUserAgent() string { return c.GeocodingUserAgent }

// ProfileConfig implementation
func (c *Config) GetPhoneDefaultRegion() string { return c.PhoneDefaultRegion }

// PolicyConfig implementation
func (c *Config) GetPolicy() Policy { return c.Policy }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	policy, err := LoadPolicy(getEnv("POLICY_FILE", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		JWTAccessSecret:       getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:          corsAllowAll,
		CORSOrigins:           corsOrigins,
		CORSAllowCreds:        strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		MinIOEndpoint:         getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:        getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:        getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:           strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOMaxFileSize:      mustInt64(getEnv("MINIO_MAX_FILE_SIZE", "10485760")),
		MinIOBucketPhotos:     getEnv("MINIO_BUCKET_PHOTOS", "pickup-photos"),
		MinIOPublicBaseURL:    getEnv("MINIO_PUBLIC_BASE_URL", ""),
		VisionAPIKey:          getEnv("VISION_API_KEY", ""),
		VisionBaseURL:         getEnv("VISION_BASE_URL", "https://api.openai.com/v1"),
		VisionModel:           getEnv("VISION_MODEL", "gpt-4o-mini"),
		ClassificationTimeout: mustDuration(getEnv("CLASSIFICATION_TIMEOUT", "20s")),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:      int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "5"))),
		StatsCacheTTL:         mustDuration(getEnv("STATS_CACHE_TTL", "60s")),
		HotspotDefaultTTL:     mustDuration(getEnv("HOTSPOT_DEFAULT_TTL", "72h")),
		GeocodingBaseURL:      getEnv("GEOCODING_BASE_URL", "https://nominatim.openstreetmap.org"),
		GeocodingUserAgent:    getEnv("GEOCODING_USER_AGENT", "EkoMarket/1.0"),
		PhoneDefaultRegion:    getEnv("PHONE_DEFAULT_REGION", "ID"),
		Policy:                policy,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.ClassificationTimeout <= 0 {
		cfg.ClassificationTimeout = 20 * time.Second
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
