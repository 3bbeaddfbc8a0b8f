package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Reprocess ReprocessConfig `mapstructure:"reprocess"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Retention RetentionConfig `mapstructure:"retention"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	APIKey       string        `mapstructure:"api_key"`
	// Inbound limit shared by all /internal callers
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RateLimitConfig holds outbound rate limiting configuration for the provider
type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	Burst             int `mapstructure:"burst"`
	MaxRetries        int `mapstructure:"max_retries"`
	InitialBackoffMs  int `mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int `mapstructure:"max_backoff_ms"`
}

// StorageConfig holds object store configuration
type StorageConfig struct {
	Type             string `mapstructure:"type"`
	BasePath         string `mapstructure:"base_path"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// ProviderConfig holds the extraction provider endpoint and credentials
type ProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Product        string        `mapstructure:"product"`
	Layers         []string      `mapstructure:"layers"`
	TaskName       string        `mapstructure:"task_name"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CallRetries    int           `mapstructure:"call_retries"`
	CallRetryDelay time.Duration `mapstructure:"call_retry_delay"`
}

// RedisConfig holds the optional token cache connection
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PipelineConfig holds submission settings
type PipelineConfig struct {
	RegionsPath   string `mapstructure:"regions_path"`
	DateDelayDays int    `mapstructure:"date_delay_days"`
}

// PollerConfig holds the status polling state machine settings
type PollerConfig struct {
	BaseWait            time.Duration `mapstructure:"base_wait"`
	MaxWait             time.Duration `mapstructure:"max_wait"`
	StatusRetries       int           `mapstructure:"status_retries"`
	StatusRetryInterval time.Duration `mapstructure:"status_retry_interval"`
	TickInterval        time.Duration `mapstructure:"tick_interval"`
	Lease               time.Duration `mapstructure:"lease"`
	MaxConcurrent       int           `mapstructure:"max_concurrent"`
}

// WorkerConfig holds queue consumer settings
type WorkerConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	BatchSize         int           `mapstructure:"batch_size"`
	PollDelay         time.Duration `mapstructure:"poll_delay"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	MaxInvalidRatio   float64       `mapstructure:"max_invalid_ratio"`
}

// ArtifactsConfig toggles optional artifact variants
type ArtifactsConfig struct {
	WriteRaw  bool `mapstructure:"write_raw"`
	WriteXLSX bool `mapstructure:"write_xlsx"`
	Deflate   bool `mapstructure:"deflate"`
}

// ReprocessConfig holds reprocess guard settings
type ReprocessConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

// RetentionConfig holds housekeeping windows for finished poll states and queue tasks
type RetentionConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	PollStateAge time.Duration `mapstructure:"poll_state_age"`
	QueueDays    int           `mapstructure:"queue_days"`
}

// SchedulerConfig holds the daily trigger settings
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	RunAt    string `mapstructure:"run_at"`
	LockPath string `mapstructure:"lock_path"`
}

// TelemetryConfig holds OpenTelemetry settings
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

var globalConfig *Config

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// .env is optional
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg(".env file not loaded")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("THERMAL_SERVICE")

	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside the pipeline
func (c *Config) Validate() error {
	if c.Poller.BaseWait <= 0 {
		return fmt.Errorf("poller.base_wait must be positive")
	}
	if c.Poller.MaxWait < c.Poller.BaseWait {
		return fmt.Errorf("poller.max_wait (%s) must be >= poller.base_wait (%s)", c.Poller.MaxWait, c.Poller.BaseWait)
	}
	if c.Storage.Type != "" && c.Storage.Type != "local" {
		return fmt.Errorf("storage.type %q is not supported, only \"local\"", c.Storage.Type)
	}
	if c.Worker.MaxInvalidRatio <= 0 || c.Worker.MaxInvalidRatio > 1 {
		return fmt.Errorf("worker.max_invalid_ratio must be in (0, 1], got %v", c.Worker.MaxInvalidRatio)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be >= 1")
	}
	if c.Storage.CollectionPrefix == "" {
		return fmt.Errorf("storage.collection_prefix must not be empty")
	}
	return nil
}

func loadEnvFile() error {
	for _, path := range []string{".env", "./config/.env"} {
		if _, err := os.Stat(path); err == nil {
			return godotenv.Load(path)
		}
	}
	return fmt.Errorf("no .env file found")
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("database.url", "DATABASE_URL")

	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")
	v.BindEnv("server.api_key", "INTERNAL_API_KEY")

	v.BindEnv("logging.level", "LOG_LEVEL")

	v.BindEnv("storage.base_path", "STORAGE_PATH")

	v.BindEnv("provider.base_url", "APPEEARS_URL")
	v.BindEnv("provider.username", "APPEEARS_USER")
	v.BindEnv("provider.password", "APPEEARS_PASS")

	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	v.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.requests_per_second", 50)
	v.SetDefault("server.burst", 100)

	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("rate_limit.requests_per_second", 4)
	v.SetDefault("rate_limit.burst", 1)
	v.SetDefault("rate_limit.max_retries", 3)
	v.SetDefault("rate_limit.initial_backoff_ms", 500)
	v.SetDefault("rate_limit.max_backoff_ms", 30000)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.base_path", "./data/artifacts")
	v.SetDefault("storage.collection_prefix", "ECO")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)

	v.SetDefault("provider.base_url", "https://appeears.earthdatacloud.nasa.gov/api")
	v.SetDefault("provider.product", "ECO_L2T_LSTE.002")
	v.SetDefault("provider.layers", []string{"LST", "LST_err", "QC", "water", "cloud", "EmisWB", "height"})
	v.SetDefault("provider.task_name", "ECOStress_Request")
	v.SetDefault("provider.request_timeout", 120*time.Second)
	v.SetDefault("provider.call_retries", 3)
	v.SetDefault("provider.call_retry_delay", 5*time.Second)

	v.SetDefault("pipeline.regions_path", "./static/regions.geojson")
	v.SetDefault("pipeline.date_delay_days", 1)

	v.SetDefault("poller.base_wait", 30*time.Second)
	v.SetDefault("poller.max_wait", 1*time.Hour)
	v.SetDefault("poller.status_retries", 3)
	v.SetDefault("poller.status_retry_interval", 10*time.Second)
	v.SetDefault("poller.tick_interval", 5*time.Second)
	v.SetDefault("poller.lease", 5*time.Minute)
	v.SetDefault("poller.max_concurrent", 4)

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.batch_size", 1)
	v.SetDefault("worker.poll_delay", 2*time.Second)
	v.SetDefault("worker.visibility_timeout", 15*time.Minute)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.sweep_interval", 1*time.Minute)
	v.SetDefault("worker.max_invalid_ratio", 0.9)

	v.SetDefault("artifacts.write_raw", true)
	v.SetDefault("artifacts.write_xlsx", false)
	v.SetDefault("artifacts.deflate", true)

	v.SetDefault("reprocess.retention", 30*24*time.Hour)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.run_at", "06:00")
	v.SetDefault("scheduler.lock_path", "./data/scheduler.lock")

	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.interval", 6*time.Hour)
	v.SetDefault("retention.poll_state_age", 7*24*time.Hour)
	v.SetDefault("retention.queue_days", 14)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "opentelemetry-collector:4317")
	v.SetDefault("telemetry.service_name", "thermal-service")
	v.SetDefault("telemetry.environment", "production")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// GetDatabaseURL returns the database URL from config or environment
func GetDatabaseURL() string {
	if cfg := Get(); cfg != nil && cfg.Database.URL != "" {
		return cfg.Database.URL
	}
	return os.Getenv("DATABASE_URL")
}
