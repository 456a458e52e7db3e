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
// Module-Specific Configuration Interfaces
// Each module depends only on the configuration it needs.
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides HTTP server settings.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// JWTConfig provides the access token secret used by the auth middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// SchedulerConfig provides Redis and asynq settings for background jobs.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// BillingConfig provides recurring-billing platform API settings.
type BillingConfig interface {
	GetBillingAPIURL() string
	GetBillingAPIToken() string
	GetBillingRequestsPerSecond() float64
	IsBillingEnabled() bool
}

// OrdersConfig provides commerce platform order history API settings.
type OrdersConfig interface {
	GetOrdersAPIURL() string
	GetOrdersAPIToken() string
	GetOrdersRequestsPerSecond() float64
	IsOrdersEnabled() bool
}

// AIConfig provides settings for the classification suggestion agent.
type AIConfig interface {
	GetMoonshotAPIKey() string
	GetMoonshotModel() string
	IsSuggestionAgentEnabled() bool
}

// StorageConfig provides MinIO settings for report storage.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketAuditReports() string
	IsMinIOEnabled() bool
}

// MailConfig provides SMTP settings for operator notifications.
type MailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetOpsNotifyEmail() string
	IsMailEnabled() bool
}

// MigrationConfig provides tuning for migration runs.
type MigrationConfig interface {
	GetMigrationBatchSize() int
	GetMigrationBatchDelay() time.Duration
	GetMigrationLockTTL() time.Duration
}

// PhoneConfig provides the default region for phone normalization.
type PhoneConfig interface {
	GetPhoneDefaultRegion() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Env            string
	HTTPAddr       string
	DatabaseURL    string
	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool

	JWTAccessSecret string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int
	ImportInterval   time.Duration

	BillingAPIURL            string
	BillingAPIToken          string
	BillingRequestsPerSecond float64

	OrdersAPIURL            string
	OrdersAPIToken          string
	OrdersRequestsPerSecond float64

	MoonshotAPIKey string
	MoonshotModel  string

	MinIOEndpoint           string
	MinIOAccessKey          string
	MinIOSecretKey          string
	MinIOUseSSL             bool
	MinioBucketAuditReports string

	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string
	OpsNotifyEmail   string

	MigrationBatchSize  int
	MigrationBatchDelay time.Duration
	MigrationLockTTL    time.Duration

	PhoneDefaultRegion string
}

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }
func (c *Config) IsSchedulerEnabled() bool   { return c.RedisURL != "" }
func (c *Config) GetImportInterval() time.Duration { return c.ImportInterval }

// BillingConfig implementation
func (c *Config) GetBillingAPIURL() string              { return c.BillingAPIURL }
func (c *Config) GetBillingAPIToken() string            { return c.BillingAPIToken }
func (c *Config) GetBillingRequestsPerSecond() float64  { return c.BillingRequestsPerSecond }
func (c *Config) IsBillingEnabled() bool                { return c.BillingAPIURL != "" }

// OrdersConfig implementation
func (c *Config) GetOrdersAPIURL() string             { return c.OrdersAPIURL }
func (c *Config) GetOrdersAPIToken() string           { return c.OrdersAPIToken }
func (c *Config) GetOrdersRequestsPerSecond() float64 { return c.OrdersRequestsPerSecond }
func (c *Config) IsOrdersEnabled() bool               { return c.OrdersAPIURL != "" }

// AIConfig implementation
func (c *Config) GetMoonshotAPIKey() string     { return c.MoonshotAPIKey }
func (c *Config) GetMoonshotModel() string      { return c.MoonshotModel }
func (c *Config) IsSuggestionAgentEnabled() bool { return c.MoonshotAPIKey != "" }

// StorageConfig implementation
func (c *Config) GetMinIOEndpoint() string         { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string        { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string        { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool             { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketAuditReports() string { return c.MinioBucketAuditReports }
func (c *Config) IsMinIOEnabled() bool             { return c.MinIOEndpoint != "" }

// MailConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetOpsNotifyEmail() string   { return c.OpsNotifyEmail }
func (c *Config) IsMailEnabled() bool {
	return c.SMTPHost != "" && c.EmailFromAddress != "" && c.OpsNotifyEmail != ""
}

// MigrationConfig implementation
func (c *Config) GetMigrationBatchSize() int             { return c.MigrationBatchSize }
func (c *Config) GetMigrationBatchDelay() time.Duration  { return c.MigrationBatchDelay }
func (c *Config) GetMigrationLockTTL() time.Duration     { return c.MigrationLockTTL }

// PhoneConfig implementation
func (c *Config) GetPhoneDefaultRegion() string { return c.PhoneDefaultRegion }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPAddr:                 getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		CORSAllowAll:             corsAllowAll,
		CORSOrigins:              corsOrigins,
		CORSAllowCreds:           strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		JWTAccessSecret:          getEnv("JWT_ACCESS_SECRET", ""),
		RedisURL:                 getEnv("REDIS_URL", ""),
		RedisTLSInsecure:         strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:           getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:         mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		ImportInterval:           mustDuration(getEnv("SUBSCRIBER_IMPORT_INTERVAL", "6h")),
		BillingAPIURL:            strings.TrimRight(getEnv("BILLING_API_URL", ""), "/"),
		BillingAPIToken:          getEnv("BILLING_API_TOKEN", ""),
		BillingRequestsPerSecond: mustFloat(getEnv("BILLING_RPS", "2")),
		OrdersAPIURL:             strings.TrimRight(getEnv("ORDERS_API_URL", ""), "/"),
		OrdersAPIToken:           getEnv("ORDERS_API_TOKEN", ""),
		OrdersRequestsPerSecond:  mustFloat(getEnv("ORDERS_RPS", "2")),
		MoonshotAPIKey:           getEnv("MOONSHOT_API_KEY", ""),
		MoonshotModel:            getEnv("MOONSHOT_MODEL", ""),
		MinIOEndpoint:            getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:           getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:           getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:              strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketAuditReports:  getEnv("MINIO_BUCKET_AUDIT_REPORTS", "audit-reports"),
		SMTPHost:                 getEnv("SMTP_HOST", ""),
		SMTPPort:                 mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:             getEnv("SMTP_USERNAME", ""),
		SMTPPassword:             getEnv("SMTP_PASSWORD", ""),
		EmailFromName:            getEnv("EMAIL_FROM_NAME", "Subscription Audit"),
		EmailFromAddress:         getEnv("EMAIL_FROM_ADDRESS", ""),
		OpsNotifyEmail:           getEnv("OPS_NOTIFY_EMAIL", ""),
		MigrationBatchSize:       mustInt(getEnv("MIGRATION_BATCH_SIZE", "5")),
		MigrationBatchDelay:      mustDuration(getEnv("MIGRATION_BATCH_DELAY", "500ms")),
		MigrationLockTTL:         mustDuration(getEnv("MIGRATION_LOCK_TTL", "10m")),
		PhoneDefaultRegion:       strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "US")),
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
	if cfg.MigrationBatchSize < 1 {
		return nil, fmt.Errorf("MIGRATION_BATCH_SIZE must be at least 1")
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

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
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
