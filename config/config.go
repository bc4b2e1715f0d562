// Package config provides configuration for the parley services. Settings
// load from a YAML file and environment variables, with environment taking
// precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/pkg/db"
	"github.com/parleyhq/parley/pkg/jobs"
	"github.com/parleyhq/parley/pkg/logging"
	"github.com/parleyhq/parley/pkg/rtc"
	"github.com/parleyhq/parley/pkg/webhook"
)

// Default configuration values.
const (
	DefaultServerAddress   = ":8080"
	DefaultRedisAddr       = "localhost:6379"
	DefaultShutdownTimeout = 30 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Address is the listen address (host:port).
	Address string `yaml:"address"`

	// ReadTimeout bounds reading the full request including the body.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing the response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful drain on SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig holds Redis connection settings for the job queue and event
// publishing.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AIConfig holds completion provider settings.
type AIConfig struct {
	// BaseURL is the provider API root. Any OpenAI-compatible server works.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates with the provider.
	APIKey string `yaml:"api_key"`

	// Model selects the completion model.
	Model string `yaml:"model"`

	// Timeout bounds each completion call.
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level       logging.Level `yaml:"level"`
	Environment string        `yaml:"environment"`
	JSONFormat  bool          `yaml:"json_format"`
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig      `yaml:"server"`
	Database *db.Config        `yaml:"database"`
	Redis    RedisConfig       `yaml:"redis"`
	RTC      rtc.Config        `yaml:"rtc"`
	AI       AIConfig          `yaml:"ai"`
	Webhook  webhook.Config    `yaml:"webhook"`
	Queue    jobs.QueueConfig  `yaml:"queue"`
	Worker   jobs.WorkerConfig `yaml:"worker"`
	Logging  LoggingConfig     `yaml:"logging"`
}

// Default returns a Config with default values. RTC and AI credentials have
// no defaults and must come from the file or environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         DefaultServerAddress,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Database: db.DefaultConfig(),
		Redis: RedisConfig{
			Addr: DefaultRedisAddr,
		},
		RTC: rtc.Config{
			Timeout: 10 * time.Second,
		},
		AI: AIConfig{
			BaseURL: "https://api.openai.com",
			Model:   "gpt-4o-mini",
			Timeout: 30 * time.Second,
		},
		Webhook: webhook.DefaultConfig(),
		Queue:   jobs.DefaultQueueConfig(),
		Worker:  jobs.DefaultWorkerConfig(),
		Logging: LoggingConfig{
			Level:       logging.LevelInfo,
			Environment: "development",
		},
	}
}

// Load reads configuration from the given YAML file (if path is non-empty
// and the file exists) and overlays environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := loadFromFile(cfg, path); err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("PARLEY_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}

	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}

	if v := os.Getenv("PARLEY_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PARLEY_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PARLEY_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}

	if v := os.Getenv("PARLEY_RTC_BASE_URL"); v != "" {
		cfg.RTC.BaseURL = v
	}
	if v := os.Getenv("PARLEY_RTC_API_KEY"); v != "" {
		cfg.RTC.APIKey = v
	}
	if v := os.Getenv("PARLEY_RTC_API_SECRET"); v != "" {
		cfg.RTC.APISecret = v
	}

	if v := os.Getenv("PARLEY_AI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
	if v := os.Getenv("PARLEY_AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("PARLEY_AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}

	if v := os.Getenv("PARLEY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = logging.Level(v)
	}
	if v := os.Getenv("PARLEY_LOG_JSON"); v == "true" || v == "1" {
		cfg.Logging.JSONFormat = true
	}
	if v := os.Getenv("PARLEY_ENVIRONMENT"); v != "" {
		cfg.Logging.Environment = v
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Database == nil {
		return fmt.Errorf("database config is required")
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if err := c.RTC.Validate(); err != nil {
		return err
	}
	if c.AI.APIKey == "" {
		return fmt.Errorf("ai api key is required")
	}
	return nil
}
