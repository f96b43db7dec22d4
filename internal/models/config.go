// Package models - Service configuration and operational settings.
// This file defines the configuration structures for every service component.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, limiter, janitor, etc.)
// - Defaults that work out of the box with no external dependencies
// - Validation at load time so misconfiguration fails fast
// - Limiter parameters are fixed at construction; only logging can change live
package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Storage type constants
const (
	StorageTypeJSON     = "json"
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Stats backend constants
const (
	StatsTypeMemory = "memory"
	StatsTypeRedis  = "redis"

	StatsBucketMinute = "minute"
	StatsBucketNone   = "none"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Limiter: Token bucket parameters (capacity, refill rates, load scaling, retention)
// - Janitor: Sweep schedule for stale bucket eviction
// - Gateway: Optional upstream proxied behind the limiter
// - Security: Admin endpoint protection
// - Storage: Janitor history persistence
// - Stats: Admission decision statistics
// - Logging: Structured logging and output configuration
// - Metrics: Prometheus exposition
// - Observability: Tracing
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Limiter       LimiterConfig       `yaml:"limiter" json:"limiter"`
	Janitor       JanitorConfig       `yaml:"janitor" json:"janitor"`
	Gateway       GatewayConfig       `yaml:"gateway" json:"gateway"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Stats         StatsConfig         `yaml:"stats" json:"stats"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

// LimiterConfig holds the token bucket parameters. BaseRate is in tokens per
// millisecond at zero load; MinRateFraction is the share of BaseRate that is
// still granted at full load.
type LimiterConfig struct {
	Capacity           int           `yaml:"capacity" json:"capacity"`
	BaseRate           float64       `yaml:"base_rate" json:"base_rate"`
	MinRateFraction    float64       `yaml:"min_rate_fraction" json:"min_rate_fraction"`
	MaxAllowedRequests int64         `yaml:"max_allowed_requests" json:"max_allowed_requests"`
	RetentionWindow    time.Duration `yaml:"retention_window" json:"retention_window"`
}

type JanitorConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Schedule string `yaml:"schedule" json:"schedule"`
}

// GatewayConfig enables the reverse proxy. Proxied requests are keyed by the
// connection's remote address unless one of the trust switches is set.
type GatewayConfig struct {
	UpstreamURL       string `yaml:"upstream_url" json:"upstream_url"`
	ClientHeader      string `yaml:"client_header" json:"client_header"`
	TrustClientHeader bool   `yaml:"trust_client_header" json:"trust_client_header"`
	TrustForwardedFor bool   `yaml:"trust_forwarded_for" json:"trust_forwarded_for"`
}

type SecurityConfig struct {
	AdminToken string `yaml:"admin_token" json:"admin_token"`
}

type StorageConfig struct {
	Type       string         `yaml:"type" json:"type"`
	Path       string         `yaml:"path" json:"path"`
	MaxRecords int            `yaml:"max_records" json:"max_records"`
	Database   DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

type StatsConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Type         string        `yaml:"type" json:"type"`
	TrackClients bool          `yaml:"track_clients" json:"track_clients"`
	TTL          time.Duration `yaml:"ttl" json:"ttl"`
	Bucket       string        `yaml:"bucket" json:"bucket"`
	Redis        RedisConfig   `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Default Values Rationale:
// - Port 8080: Standard non-privileged HTTP port
// - Capacity 10, 0.05 tokens/ms: a client may burst 10 requests and recovers
//   one token every 20ms when the system is idle
// - 10% floor: no client is locked out even at full load
// - 24h retention and daily sweep: idle clients are forgotten once a day
// - Memory storage and stats: no external dependencies
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			TLSEnabled:   false,
		},
		Limiter: LimiterConfig{
			Capacity:           10,
			BaseRate:           0.05,
			MinRateFraction:    0.1,
			MaxAllowedRequests: 1000,
			RetentionWindow:    24 * time.Hour,
		},
		Janitor: JanitorConfig{
			Enabled:  true,
			Schedule: "@every 24h",
		},
		Gateway: GatewayConfig{
			ClientHeader: "X-Client-ID",
		},
		Storage: StorageConfig{
			Type:       StorageTypeMemory,
			Path:       "./data/sweeps.json",
			MaxRecords: 1000,
			Database: DatabaseConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Stats: StatsConfig{
			Enabled: true,
			Type:    StatsTypeMemory,
			TTL:     24 * time.Hour,
			Bucket:  StatsBucketMinute,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "gatekeeper:stats",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "gatekeeper",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Limiter.Validate(); err != nil {
		return fmt.Errorf("invalid limiter config: %w", err)
	}

	if err := c.Janitor.Validate(); err != nil {
		return fmt.Errorf("invalid janitor config: %w", err)
	}

	if err := c.Gateway.Validate(); err != nil {
		return fmt.Errorf("invalid gateway config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Stats.Validate(); err != nil {
		return fmt.Errorf("invalid stats config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (lc *LimiterConfig) Validate() error {
	if lc.Capacity <= 0 {
		return errors.New("capacity must be positive")
	}
	if math.IsNaN(lc.BaseRate) || math.IsInf(lc.BaseRate, 0) || lc.BaseRate <= 0 {
		return errors.New("base rate must be a positive finite number")
	}
	if math.IsNaN(lc.MinRateFraction) || lc.MinRateFraction <= 0 || lc.MinRateFraction > 1 {
		return errors.New("min rate fraction must be in (0, 1]")
	}
	if lc.MaxAllowedRequests <= 0 {
		return errors.New("max allowed requests must be positive")
	}
	if lc.RetentionWindow <= 0 {
		return errors.New("retention window must be positive")
	}
	return nil
}

func (jc *JanitorConfig) Validate() error {
	if !jc.Enabled {
		return nil
	}
	if jc.Schedule == "" {
		return errors.New("schedule is required when janitor is enabled")
	}
	if _, err := cron.ParseStandard(jc.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", jc.Schedule, err)
	}
	return nil
}

func (gc *GatewayConfig) Validate() error {
	if gc.UpstreamURL == "" {
		return nil
	}
	if !strings.HasPrefix(gc.UpstreamURL, "http://") && !strings.HasPrefix(gc.UpstreamURL, "https://") {
		return fmt.Errorf("upstream URL must be http or https: %s", gc.UpstreamURL)
	}
	return nil
}

func (stc *StorageConfig) Validate() error {
	validTypes := []string{StorageTypeJSON, StorageTypeMemory, StorageTypePostgres, StorageTypeSQLite}
	found := false
	for _, vt := range validTypes {
		if stc.Type == vt {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}

	if stc.MaxRecords < 0 {
		return errors.New("max records cannot be negative")
	}

	if stc.Type == StorageTypeJSON && stc.Path == "" {
		return errors.New("path is required for JSON storage")
	}

	if stc.Type == StorageTypeMemory {
		// Memory storage requires no additional configuration
		return nil
	}

	if (stc.Type == StorageTypePostgres || stc.Type == StorageTypeSQLite) && stc.Database.DSN == "" {
		return errors.New("database DSN is required for database storage")
	}

	return nil
}

func (sc *StatsConfig) Validate() error {
	if !sc.Enabled {
		return nil
	}

	if sc.Type != StatsTypeMemory && sc.Type != StatsTypeRedis {
		return fmt.Errorf("invalid stats type: %s", sc.Type)
	}

	if sc.TTL < 0 {
		return errors.New("stats TTL cannot be negative")
	}

	if sc.Bucket != "" && sc.Bucket != StatsBucketMinute && sc.Bucket != StatsBucketNone {
		return fmt.Errorf("invalid stats bucket: %s", sc.Bucket)
	}

	if sc.Type == StatsTypeRedis && sc.Redis.Addr == "" {
		return errors.New("Redis address is required when stats type is redis")
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	found := false
	for _, vl := range validLevels {
		if lc.Level == vl {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	found = false
	for _, vf := range validFormats {
		if lc.Format == vf {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	found = false
	for _, vo := range validOutputs {
		if lc.Output == vo {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if !oc.Tracing.Enabled {
		return nil
	}

	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required when exporter is otlp")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}
