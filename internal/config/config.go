package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Environment variables that override secrets and deployment specifics
const (
	EnvSunoAPIKey          = "SUNO_API_KEY"
	EnvSunoCallbackBaseURL = "SUNO_CALLBACK_BASE_URL"
	EnvSunoBaseURL         = "SUNO_BASE_URL"
	EnvDatabasePassword    = "DATABASE_PASSWORD"
	EnvRabbitMQPassword    = "RABBITMQ_PASSWORD"
	EnvRedisPassword       = "REDIS_PASSWORD"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Suno     SunoConfig     `yaml:"suno"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration.
// SubmitRateLimit caps submissions per second per client IP; 0 disables it.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SubmitRateLimit int           `yaml:"submit_rate_limit"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration.
// CallbackRoutingKey routes provider callbacks on the same exchange; empty disables fan-out.
type RabbitMQConfig struct {
	Enabled            bool             `yaml:"enabled"`
	Host               string           `yaml:"host"`
	Port               int              `yaml:"port"`
	User               string           `yaml:"user"`
	Password           string           `yaml:"password"`
	VHost              string           `yaml:"vhost"`
	Exchange           ExchangeConfig   `yaml:"exchange"`
	Queue              QueueConfig      `yaml:"queue"`
	RoutingKey         string           `yaml:"routing_key"`
	CallbackRoutingKey string           `yaml:"callback_routing_key"`
	Connection         ConnectionConfig `yaml:"connection"`
	Publish            PublishConfig    `yaml:"publish"`
	Consumer           ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int  `yaml:"prefetch_count"`
	AutoAck       bool `yaml:"auto_ack"`
	Exclusive     bool `yaml:"exclusive"`
}

// RedisConfig holds the callback cache connection
type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	KeyPrefix   string        `yaml:"key_prefix"`
	CallbackTTL time.Duration `yaml:"callback_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	EnableCaller     bool   `yaml:"enable_caller"`
	EnableStackTrace bool   `yaml:"enable_stack_trace"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// SunoConfig holds the upstream provider settings
type SunoConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	CallbackBaseURL string        `yaml:"callback_base_url"`
	GenerateTimeout time.Duration `yaml:"generate_timeout"`
	StatusTimeout   time.Duration `yaml:"status_timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
}

// TrackerConfig holds client job tracker settings
type TrackerConfig struct {
	APIBaseURL    string        `yaml:"api_base_url"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	MaxPolls      int           `yaml:"max_polls"`
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
	SnapshotPath  string        `yaml:"snapshot_path"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	MaxJobs           int           `yaml:"max_jobs"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file, then applies environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyEnv(os.Getenv)

	return &config, nil
}

// ApplyEnv overrides secrets and provider endpoints from the environment
func (c *Config) ApplyEnv(getenv func(string) string) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	override(&c.Suno.APIKey, EnvSunoAPIKey)
	override(&c.Suno.CallbackBaseURL, EnvSunoCallbackBaseURL)
	override(&c.Suno.BaseURL, EnvSunoBaseURL)
	override(&c.Database.Password, EnvDatabasePassword)
	override(&c.RabbitMQ.Password, EnvRabbitMQPassword)
	override(&c.Redis.Password, EnvRedisPassword)
}

// CallbackURL returns the default result-delivery URL injected into submissions
func (c *SunoConfig) CallbackURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.CallbackBaseURL), "/")
	if base == "" {
		return ""
	}
	return base + "/api/v1/callback"
}

// ValidateAPIConfig checks the settings the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Suno.CallbackBaseURL == "" {
		return fmt.Errorf("suno callback_base_url is required")
	}

	if c.Server.SubmitRateLimit < 0 {
		return fmt.Errorf("server submit_rate_limit must not be negative")
	}

	if c.Suno.MaxRetries < 0 {
		return fmt.Errorf("suno max_retries must not be negative")
	}

	if c.Database.Enabled {
		if err := c.validateDatabase(); err != nil {
			return err
		}
	}

	if c.RabbitMQ.Enabled {
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service depends on
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.MaxJobs <= 0 {
		return fmt.Errorf("worker max_jobs must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if err := c.ValidateTrackerConfig(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	return c.validateRabbitMQ()
}

// ValidateTrackerConfig checks the client job tracker settings
func (c *Config) ValidateTrackerConfig() error {
	if c.Tracker.APIBaseURL == "" {
		return fmt.Errorf("tracker api_base_url is required")
	}

	if c.Tracker.PollInterval <= 0 {
		return fmt.Errorf("tracker poll_interval must be greater than 0")
	}

	if c.Tracker.MaxRetries <= 0 {
		return fmt.Errorf("tracker max_retries must be greater than 0")
	}

	if c.Tracker.MaxPolls < 0 {
		return fmt.Errorf("tracker max_polls must not be negative")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
