package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/queuekit/queue-analytics/pkg/analytics"
	"github.com/queuekit/queue-analytics/pkg/observability"
	"github.com/queuekit/queue-analytics/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Analytics     AnalyticsConfig
	Observability ObservabilityConfig
	Snapshotter   SnapshotterConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// CORSOrigins lists the dashboard origins allowed to call the API
	CORSOrigins []string

	// RateLimitPerMinute is the per-shop request budget; 0 disables limiting
	RateLimitPerMinute int
	RateLimitBurst     int

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AnalyticsConfig holds calculation settings
type AnalyticsConfig struct {
	// Timezone is the IANA zone used for hour bucketing and calendar windows
	Timezone string
}

// Location loads the configured timezone
func (a AnalyticsConfig) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(a.Timezone)
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// SnapshotterConfig holds the daily snapshot job settings
type SnapshotterConfig struct {
	Schedule      string
	Workers       int
	TaskTimeout   time.Duration
	Archive       bool
	ArchiveFormat string
	RunOnStart    bool
}

// fileConfig is the YAML layout of QA_CONFIG_FILE
type fileConfig struct {
	Server struct {
		Host            string        `yaml:"host"`
		Port            string        `yaml:"port"`
		HealthPort      string        `yaml:"health_port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		RateLimit       *int          `yaml:"rate_limit_per_minute"`
		RateLimitBurst  int           `yaml:"rate_limit_burst"`
	} `yaml:"server"`
	Postgres struct {
		URL         string   `yaml:"url"`
		ReplicaURLs []string `yaml:"replica_urls"`
		MaxConns    int      `yaml:"max_conns"`
		MinConns    int      `yaml:"min_conns"`
	} `yaml:"postgres"`
	Redis struct {
		URL      string `yaml:"url"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`
	Cache struct {
		Backend     string        `yaml:"backend"`
		TTL         time.Duration `yaml:"ttl"`
		KeyStrategy string        `yaml:"key_strategy"`
		Size        int           `yaml:"size"`
	} `yaml:"cache"`
	S3 struct {
		Endpoint     string `yaml:"endpoint"`
		Region       string `yaml:"region"`
		Bucket       string `yaml:"bucket"`
		Prefix       string `yaml:"prefix"`
		UsePathStyle bool   `yaml:"use_path_style"`
	} `yaml:"s3"`
	Analytics struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"analytics"`
	Observability struct {
		LogLevel        string  `yaml:"log_level"`
		MetricsEnabled  *bool   `yaml:"metrics_enabled"`
		OTelEnabled     bool    `yaml:"otel_enabled"`
		OTelEndpoint    string  `yaml:"otel_endpoint"`
		OTelSampleRatio float64 `yaml:"otel_sample_ratio"`
	} `yaml:"observability"`
	Snapshotter struct {
		Schedule      string        `yaml:"schedule"`
		Workers       int           `yaml:"workers"`
		TaskTimeout   time.Duration `yaml:"task_timeout"`
		Archive       bool          `yaml:"archive"`
		ArchiveFormat string        `yaml:"archive_format"`
	} `yaml:"snapshotter"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",

			RateLimitPerMinute: 600,
			RateLimitBurst:     60,
		},
		Storage: storage.DefaultConfig(),
		Observability: ObservabilityConfig{
			LogLevel:           observability.InfoLevel,
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "queue-analytics",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
		Snapshotter: SnapshotterConfig{
			Schedule:      "15 0 * * *",
			Workers:       4,
			TaskTimeout:   2 * time.Minute,
			ArchiveFormat: analytics.FormatPDF,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by QA_CONFIG_FILE, and QA_* environment variables, in that order.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("QA_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&c.Server.Host, f.Server.Host)
	setString(&c.Server.Port, f.Server.Port)
	setString(&c.Server.HealthPort, f.Server.HealthPort)
	setDuration(&c.Server.ReadTimeout, f.Server.ReadTimeout)
	setDuration(&c.Server.WriteTimeout, f.Server.WriteTimeout)
	setDuration(&c.Server.IdleTimeout, f.Server.IdleTimeout)
	setDuration(&c.Server.ShutdownTimeout, f.Server.ShutdownTimeout)
	if len(f.Server.CORSOrigins) > 0 {
		c.Server.CORSOrigins = f.Server.CORSOrigins
	}
	if f.Server.RateLimit != nil {
		c.Server.RateLimitPerMinute = *f.Server.RateLimit
	}
	setInt(&c.Server.RateLimitBurst, f.Server.RateLimitBurst)

	setString(&c.Storage.PostgresURL, f.Postgres.URL)
	if len(f.Postgres.ReplicaURLs) > 0 {
		c.Storage.PostgresReplicaURLs = f.Postgres.ReplicaURLs
	}
	setInt(&c.Storage.PostgresMaxConns, f.Postgres.MaxConns)
	setInt(&c.Storage.PostgresMinConns, f.Postgres.MinConns)

	setString(&c.Storage.RedisURL, f.Redis.URL)
	setInt(&c.Storage.RedisDB, f.Redis.DB)
	setInt(&c.Storage.RedisPoolSize, f.Redis.PoolSize)

	setString(&c.Storage.CacheBackend, f.Cache.Backend)
	setDuration(&c.Storage.CacheTTL, f.Cache.TTL)
	setString(&c.Storage.CacheKeyStrategy, f.Cache.KeyStrategy)
	setInt(&c.Storage.L1CacheSize, f.Cache.Size)

	setString(&c.Storage.S3Endpoint, f.S3.Endpoint)
	setString(&c.Storage.S3Region, f.S3.Region)
	setString(&c.Storage.S3Bucket, f.S3.Bucket)
	setString(&c.Storage.S3Prefix, f.S3.Prefix)
	c.Storage.S3UsePathStyle = c.Storage.S3UsePathStyle || f.S3.UsePathStyle

	setString(&c.Analytics.Timezone, f.Analytics.Timezone)

	if f.Observability.LogLevel != "" {
		c.Observability.LogLevel = observability.ParseLogLevel(f.Observability.LogLevel)
	}
	if f.Observability.MetricsEnabled != nil {
		c.Observability.MetricsEnabled = *f.Observability.MetricsEnabled
	}
	c.Observability.OTelEnabled = c.Observability.OTelEnabled || f.Observability.OTelEnabled
	setString(&c.Observability.OTelEndpoint, f.Observability.OTelEndpoint)
	if f.Observability.OTelSampleRatio > 0 {
		c.Observability.OTelSampleRatio = f.Observability.OTelSampleRatio
	}

	setString(&c.Snapshotter.Schedule, f.Snapshotter.Schedule)
	setInt(&c.Snapshotter.Workers, f.Snapshotter.Workers)
	setDuration(&c.Snapshotter.TaskTimeout, f.Snapshotter.TaskTimeout)
	c.Snapshotter.Archive = c.Snapshotter.Archive || f.Snapshotter.Archive
	setString(&c.Snapshotter.ArchiveFormat, f.Snapshotter.ArchiveFormat)

	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("QA_HOST", c.Server.Host)
	c.Server.Port = getEnv("QA_PORT", c.Server.Port)
	c.Server.HealthPort = getEnv("QA_HEALTH_PORT", c.Server.HealthPort)
	c.Server.ReadTimeout = getEnvDuration("QA_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("QA_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("QA_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("QA_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	if origins := getEnv("QA_CORS_ORIGINS", ""); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}
	c.Server.RateLimitPerMinute = getEnvInt("QA_RATE_LIMIT_PER_MINUTE", c.Server.RateLimitPerMinute)
	c.Server.RateLimitBurst = getEnvInt("QA_RATE_LIMIT_BURST", c.Server.RateLimitBurst)

	s := &c.Storage
	s.PostgresURL = getEnv("QA_POSTGRES_URL", s.PostgresURL)
	if replicas := getEnv("QA_POSTGRES_REPLICA_URLS", ""); replicas != "" {
		s.PostgresReplicaURLs = splitList(replicas)
	}
	s.PostgresMaxConns = getEnvInt("QA_POSTGRES_MAX_CONNS", s.PostgresMaxConns)
	s.PostgresMinConns = getEnvInt("QA_POSTGRES_MIN_CONNS", s.PostgresMinConns)
	s.PostgresTimeout = getEnvDuration("QA_POSTGRES_TIMEOUT", s.PostgresTimeout)

	s.S3Endpoint = getEnv("QA_S3_ENDPOINT", s.S3Endpoint)
	s.S3Region = getEnv("QA_S3_REGION", s.S3Region)
	s.S3Bucket = getEnv("QA_S3_BUCKET", s.S3Bucket)
	s.S3Prefix = getEnv("QA_S3_PREFIX", s.S3Prefix)
	s.S3AccessKey = getEnv("QA_S3_ACCESS_KEY", s.S3AccessKey)
	s.S3SecretKey = getEnv("QA_S3_SECRET_KEY", s.S3SecretKey)
	s.S3UsePathStyle = getEnvBool("QA_S3_USE_PATH_STYLE", s.S3UsePathStyle)

	s.RedisURL = getEnv("QA_REDIS_URL", s.RedisURL)
	s.RedisPassword = getEnv("QA_REDIS_PASSWORD", s.RedisPassword)
	s.RedisDB = getEnvInt("QA_REDIS_DB", s.RedisDB)
	s.RedisMaxRetries = getEnvInt("QA_REDIS_MAX_RETRIES", s.RedisMaxRetries)
	s.RedisPoolSize = getEnvInt("QA_REDIS_POOL_SIZE", s.RedisPoolSize)

	s.CacheBackend = strings.ToLower(getEnv("QA_CACHE_BACKEND", s.CacheBackend))
	s.CacheTTL = getEnvDuration("QA_CACHE_TTL", s.CacheTTL)
	s.CacheKeyStrategy = strings.ToLower(getEnv("QA_CACHE_KEY_STRATEGY", s.CacheKeyStrategy))
	s.L1CacheSize = getEnvInt("QA_CACHE_SIZE", s.L1CacheSize)

	c.Analytics.Timezone = getEnv("QA_TIMEZONE", c.Analytics.Timezone)

	o := &c.Observability
	if level := getEnv("QA_LOG_LEVEL", ""); level != "" {
		o.LogLevel = observability.ParseLogLevel(level)
	}
	o.MetricsEnabled = getEnvBool("QA_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("QA_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("QA_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("QA_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("QA_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("QA_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("QA_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)

	sn := &c.Snapshotter
	sn.Schedule = getEnv("QA_SNAPSHOT_SCHEDULE", sn.Schedule)
	sn.Workers = getEnvInt("QA_SNAPSHOT_WORKERS", sn.Workers)
	sn.TaskTimeout = getEnvDuration("QA_SNAPSHOT_TASK_TIMEOUT", sn.TaskTimeout)
	sn.Archive = getEnvBool("QA_SNAPSHOT_ARCHIVE", sn.Archive)
	sn.ArchiveFormat = strings.ToLower(getEnv("QA_SNAPSHOT_ARCHIVE_FORMAT", sn.ArchiveFormat))
	sn.RunOnStart = getEnvBool("QA_SNAPSHOT_RUN_ON_START", sn.RunOnStart)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.RateLimitPerMinute < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.PostgresMinConns > c.Storage.PostgresMaxConns {
		return fmt.Errorf("postgres min conns (%d) exceeds max conns (%d)", c.Storage.PostgresMinConns, c.Storage.PostgresMaxConns)
	}

	switch c.Storage.CacheBackend {
	case storage.CacheBackendMemory:
	case storage.CacheBackendRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory or redis)", c.Storage.CacheBackend)
	}
	if c.Storage.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if _, err := analytics.ParseKeyStrategy(c.Storage.CacheKeyStrategy); err != nil {
		return err
	}

	if _, err := c.Analytics.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Analytics.Timezone, err)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	if _, err := cron.ParseStandard(c.Snapshotter.Schedule); err != nil {
		return fmt.Errorf("invalid snapshot schedule %q: %w", c.Snapshotter.Schedule, err)
	}
	if c.Snapshotter.Archive {
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required when snapshot archiving is enabled")
		}
		if !analytics.IsSupportedFormat(c.Snapshotter.ArchiveFormat) {
			return fmt.Errorf("unsupported archive format: %s", c.Snapshotter.ArchiveFormat)
		}
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
