package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gatekeeper/internal/models"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GATEKEEPER_"

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// deprecatedConfig mirrors renamed config fields for detecting stale operator configs.
type deprecatedConfig struct {
	Limiter struct {
		ClientHeader string      `yaml:"client_header"`
		RefillRate   interface{} `yaml:"refill_rate"`
	} `yaml:"limiter"`
	Janitor struct {
		Interval string `yaml:"interval"`
	} `yaml:"janitor"`
}

// warnDeprecatedKeys logs a warning for each renamed config key found in the YAML data.
// The service continues to start normally - these keys are silently ignored by the main decoder.
func warnDeprecatedKeys(data []byte) {
	var dep deprecatedConfig
	if err := yaml.Unmarshal(data, &dep); err != nil {
		return
	}
	if dep.Limiter.ClientHeader != "" {
		slog.Warn("Config key has moved; set gateway.client_header instead.", "config_key", "limiter.client_header")
	}
	if dep.Limiter.RefillRate != nil {
		slog.Warn("Config key is no longer used; set limiter.base_rate in tokens per millisecond.", "config_key", "limiter.refill_rate")
	}
	if dep.Janitor.Interval != "" {
		slog.Warn("Config key is no longer used; set janitor.schedule, e.g. \"@every "+dep.Janitor.Interval+"\".", "config_key", "janitor.interval")
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnDeprecatedKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables.
// Unparseable values are ignored and the file or default value stays in place.
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	envInt("PORT", &config.Server.Port)
	envString("HOST", &config.Server.Host)
	envDuration("READ_TIMEOUT", &config.Server.ReadTimeout)
	envDuration("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	envDuration("IDLE_TIMEOUT", &config.Server.IdleTimeout)
	envBool("TLS_ENABLED", &config.Server.TLSEnabled)
	envString("TLS_CERT_FILE", &config.Server.TLSCertFile)
	envString("TLS_KEY_FILE", &config.Server.TLSKeyFile)

	// Limiter configuration
	envInt("LIMITER_CAPACITY", &config.Limiter.Capacity)
	envFloat("LIMITER_BASE_RATE", &config.Limiter.BaseRate)
	envFloat("LIMITER_MIN_RATE_FRACTION", &config.Limiter.MinRateFraction)
	envInt64("LIMITER_MAX_ALLOWED_REQUESTS", &config.Limiter.MaxAllowedRequests)
	envDuration("LIMITER_RETENTION_WINDOW", &config.Limiter.RetentionWindow)

	// Janitor configuration
	envBool("JANITOR_ENABLED", &config.Janitor.Enabled)
	envString("JANITOR_SCHEDULE", &config.Janitor.Schedule)

	// Gateway configuration
	envString("GATEWAY_UPSTREAM_URL", &config.Gateway.UpstreamURL)
	envString("GATEWAY_CLIENT_HEADER", &config.Gateway.ClientHeader)
	envBool("GATEWAY_TRUST_CLIENT_HEADER", &config.Gateway.TrustClientHeader)
	envBool("GATEWAY_TRUST_FORWARDED_FOR", &config.Gateway.TrustForwardedFor)

	// Security configuration
	envString("ADMIN_TOKEN", &config.Security.AdminToken)

	// Storage configuration
	envString("STORAGE_TYPE", &config.Storage.Type)
	envString("STORAGE_PATH", &config.Storage.Path)
	envInt("STORAGE_MAX_RECORDS", &config.Storage.MaxRecords)
	envString("DATABASE_DSN", &config.Storage.Database.DSN)
	envInt("DATABASE_MAX_OPEN_CONNS", &config.Storage.Database.MaxOpenConns)
	envInt("DATABASE_MAX_IDLE_CONNS", &config.Storage.Database.MaxIdleConns)

	// Stats configuration
	envBool("STATS_ENABLED", &config.Stats.Enabled)
	envString("STATS_TYPE", &config.Stats.Type)
	envBool("STATS_TRACK_CLIENTS", &config.Stats.TrackClients)
	envDuration("STATS_TTL", &config.Stats.TTL)
	envString("STATS_BUCKET", &config.Stats.Bucket)

	// Redis configuration
	envString("REDIS_ADDR", &config.Stats.Redis.Addr)
	envString("REDIS_PASSWORD", &config.Stats.Redis.Password)
	envInt("REDIS_DB", &config.Stats.Redis.DB)
	envInt("REDIS_POOL_SIZE", &config.Stats.Redis.PoolSize)
	envString("REDIS_PREFIX", &config.Stats.Redis.Prefix)

	// Logging configuration
	envString("LOG_LEVEL", &config.Logging.Level)
	envString("LOG_FORMAT", &config.Logging.Format)
	envString("LOG_OUTPUT", &config.Logging.Output)
	envString("LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics configuration
	envBool("METRICS_ENABLED", &config.Metrics.Enabled)
	envString("METRICS_PATH", &config.Metrics.Path)
	envInt("METRICS_PORT", &config.Metrics.Port)

	// Tracing configuration
	envBool("TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	envString("TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	envString("TRACING_OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	envFloat("TRACING_SAMPLE_RATE", &config.Observability.Tracing.SampleRate)
}

func envString(key string, dst *string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = strings.ToLower(v) == "true"
	}
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Get default config with some example values
	config := models.NewDefaultConfig()

	// Example admin token; generate a real one with `gatekeeper -generate-token`
	config.Security.AdminToken = models.AdminTokenPrefix + "your-admin-token-here"

	// Example gateway configuration
	config.Gateway.UpstreamURL = "http://localhost:3000"

	// Example durable sweep history
	config.Storage.Type = models.StorageTypeSQLite
	config.Storage.Database.DSN = "file:./data/sweeps.db"

	// Example TLS configuration
	config.Server.TLSEnabled = false
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	// Marshal to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// Write to file
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
