package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"slotbook/internal/models"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	Exports    ExportConfig     `yaml:"exports"`
}

// SchedulingConfig holds the booking policy applied by the engine.
type SchedulingConfig struct {
	SlotDuration time.Duration `yaml:"slot_duration"`
	LeadTime     time.Duration `yaml:"lead_time"`
	HoldDuration time.Duration `yaml:"hold_duration"`
	SweepGrace   time.Duration `yaml:"sweep_grace"`
	SweepBatch   int           `yaml:"sweep_batch_size"`
}

type SweeperConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Schedule     string        `yaml:"schedule"`
	LeaseKey     string        `yaml:"lease_key"`
	LeaseTTL     time.Duration `yaml:"lease_ttl"`
	RequireLease bool          `yaml:"require_lease"`
	Retry        RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled bool         `yaml:"enabled"`
	Port    int          `yaml:"port"`
	TLS     APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// Load reads the YAML config at configPath, expanding ${VAR} references
// from the environment and an optional .env file.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	// An explicit lead_time: 0 must survive decoding.
	config := Config{Scheduling: SchedulingConfig{LeadTime: models.DefaultLeadTime}}
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if err := c.Scheduling.Validate(); err != nil {
		return err
	}

	if c.Sweeper.Enabled {
		if _, err := cron.ParseStandard(c.Sweeper.Schedule); err != nil {
			return fmt.Errorf("invalid sweeper schedule %q: %w", c.Sweeper.Schedule, err)
		}
		if c.Sweeper.RequireLease && c.Redis.Address == "" {
			return errors.New("sweeper.require_lease needs redis.address")
		}
	}

	if c.Backup.Enabled && c.Backup.StoragePath == "" {
		return errors.New("backup storage path is required when backups are enabled")
	}

	return nil
}

// Validate checks the booking policy values.
func (s SchedulingConfig) Validate() error {
	if s.SlotDuration <= 0 {
		return fmt.Errorf("scheduling.slot_duration must be positive, got %s", s.SlotDuration)
	}
	if s.HoldDuration <= 0 {
		return fmt.Errorf("scheduling.hold_duration must be positive, got %s", s.HoldDuration)
	}
	if s.LeadTime < 0 {
		return fmt.Errorf("scheduling.lead_time must not be negative, got %s", s.LeadTime)
	}
	if s.SweepGrace < 0 {
		return fmt.Errorf("scheduling.sweep_grace must not be negative, got %s", s.SweepGrace)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "slotbook"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	// Scheduling defaults
	if c.Scheduling.SlotDuration == 0 {
		c.Scheduling.SlotDuration = models.DefaultSlotDuration
	}
	if c.Scheduling.HoldDuration == 0 {
		c.Scheduling.HoldDuration = models.DefaultHoldDuration
	}
	if c.Scheduling.SweepBatch <= 0 {
		c.Scheduling.SweepBatch = models.DefaultSweepBatchSize
	}

	// Sweeper defaults
	if c.Sweeper.Schedule == "" {
		c.Sweeper.Schedule = "@every 1m"
	}
	if c.Sweeper.LeaseKey == "" {
		c.Sweeper.LeaseKey = c.App.Name + ":sweeper"
	}
	if c.Sweeper.LeaseTTL == 0 {
		c.Sweeper.LeaseTTL = models.DefaultSweepLeaseTTL
	}
	if c.Sweeper.Retry.MaxRetries == 0 {
		c.Sweeper.Retry.MaxRetries = 3
	}
	if c.Sweeper.Retry.InitialDelay == 0 {
		c.Sweeper.Retry.InitialDelay = time.Second
	}
	if c.Sweeper.Retry.MaxDelay == 0 {
		c.Sweeper.Retry.MaxDelay = 30 * time.Second
	}
	if c.Sweeper.Retry.BackoffFactor == 0 {
		c.Sweeper.Retry.BackoffFactor = 2
	}

	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
