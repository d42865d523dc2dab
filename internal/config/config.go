package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Redis         RedisConfig         `yaml:"redis"`
	AMQP          AMQPConfig          `yaml:"amqp"`
	Auth          AuthConfig          `yaml:"auth"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type JobsConfig struct {
	// Percentage added on top of the declared print time when a job starts printing.
	EstimatedTimeBuffer float64 `yaml:"estimated_time_buffer_percent"`
}

type NotificationsConfig struct {
	WorkerCount int           `yaml:"worker_count"`
	QueueSize   int           `yaml:"queue_size"`
	RetryCount  int           `yaml:"retry_count"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Timeout     time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	DB         int           `yaml:"db"`
	StatusTTL  time.Duration `yaml:"status_ttl"`
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/printfarm.db",
		},
		Jobs: JobsConfig{
			EstimatedTimeBuffer: 10,
		},
		Notifications: NotificationsConfig{
			WorkerCount: 3,
			QueueSize:   256,
			RetryCount:  3,
			RetryDelay:  5 * time.Second,
			Timeout:     10 * time.Second,
		},
		Redis: RedisConfig{
			DB:         0,
			StatusTTL:  time.Hour,
			RateLimit:  120,
			RateWindow: time.Minute,
		},
		AMQP: AMQPConfig{
			Exchange: "printfarm.notifications",
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaults()
}

// Load reads the YAML file at configPath on top of the defaults and then
// applies PRINTFARM_* environment overrides. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := defaults()
	applyEnv(cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PRINTFARM_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("PRINTFARM_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("PRINTFARM_TIME_BUFFER"); v != "" {
		if buffer, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Jobs.EstimatedTimeBuffer = buffer
		}
	}

	if v := os.Getenv("PRINTFARM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}

	if v := os.Getenv("PRINTFARM_AMQP_URL"); v != "" {
		cfg.AMQP.URL = v
	}

	if v := os.Getenv("PRINTFARM_AUTH_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.Enabled = enabled
		}
	}

	if v := os.Getenv("PRINTFARM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("PRINTFARM_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Jobs.EstimatedTimeBuffer < 0 || c.Jobs.EstimatedTimeBuffer > 100 {
		return fmt.Errorf("estimated time buffer must be between 0 and 100, got %v", c.Jobs.EstimatedTimeBuffer)
	}

	if c.Notifications.WorkerCount < 1 {
		return fmt.Errorf("notification worker count must be at least 1")
	}

	if c.Notifications.QueueSize < 1 {
		return fmt.Errorf("notification queue size must be at least 1")
	}

	if c.Notifications.RetryCount < 0 {
		return fmt.Errorf("notification retry count must be non-negative")
	}

	if c.Notifications.RetryDelay < 0 {
		return fmt.Errorf("notification retry delay must be non-negative")
	}

	if c.Redis.Addr != "" {
		if c.Redis.RateLimit < 1 {
			return fmt.Errorf("redis rate limit must be at least 1")
		}
		if c.Redis.RateWindow <= 0 {
			return fmt.Errorf("redis rate window must be positive")
		}
	}

	if c.AMQP.URL != "" && c.AMQP.Exchange == "" {
		return fmt.Errorf("amqp exchange is required when amqp url is set")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":  true,
		"text":  true,
		"plain": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text, plain)", c.Logging.Format)
	}

	return nil
}
