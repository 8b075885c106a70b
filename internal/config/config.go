// Package config handles configuration loading for the forensic agent.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Recording RecordingConfig `yaml:"recording"`
	Masking   MaskingConfig   `yaml:"masking"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Replay    ReplayConfig    `yaml:"replay"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPPort       int           `yaml:"http_port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxBatchSize   int           `yaml:"max_batch_size"`
	MaxPayloadSize int           `yaml:"max_payload_size"`
}

// RecordingConfig holds session recording settings.
type RecordingConfig struct {
	ThrottleInterval time.Duration `yaml:"throttle_interval"`
	Mouse            bool          `yaml:"mouse"`
	Keyboard         bool          `yaml:"keyboard"`
	Scroll           bool          `yaml:"scroll"`
	Resize           bool          `yaml:"resize"`
	Navigation       bool          `yaml:"navigation"`
	FormInputs       bool          `yaml:"form_inputs"`
	Clicks           bool          `yaml:"clicks"`
}

// MaskingConfig holds sensitive-field masking settings.
type MaskingConfig struct {
	// ExtraPatterns extends the built-in sensitive field name patterns.
	ExtraPatterns []string `yaml:"extra_patterns"`
}

// ScoringConfig holds suspicious-activity scoring settings.
type ScoringConfig struct {
	Threshold      float64       `yaml:"threshold"`
	ClickWindow    time.Duration `yaml:"click_window"`
	AllowedDomains []string      `yaml:"allowed_domains"`
}

// ReplayConfig holds replay engine settings.
type ReplayConfig struct {
	Speed float64 `yaml:"speed"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	BufferSize   int           `yaml:"buffer_size"`
	QueueSize    int           `yaml:"queue_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	SQLite       SQLiteConfig  `yaml:"sqlite"`
	Redis        RedisConfig   `yaml:"redis"`
	Kafka        KafkaConfig   `yaml:"kafka"`
	Remote       RemoteConfig  `yaml:"remote"`
}

// SQLiteConfig holds local archive database settings.
type SQLiteConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RedisConfig holds Redis cache settings.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// KafkaConfig holds suspicious-event stream settings.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RemoteConfig holds remote collector settings.
type RemoteConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Endpoint string            `yaml:"endpoint"`
	Headers  map[string]string `yaml:"headers"`
	Timeout  time.Duration     `yaml:"timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:       8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxBatchSize:   500,
			MaxPayloadSize: 4 * 1024 * 1024, // 4MB
		},
		Recording: RecordingConfig{
			ThrottleInterval: 75 * time.Millisecond,
			Mouse:            true,
			Keyboard:         true,
			Scroll:           true,
			Resize:           true,
			Navigation:       true,
			FormInputs:       true,
			Clicks:           true,
		},
		Scoring: ScoringConfig{
			Threshold:   0.8,
			ClickWindow: time.Second,
		},
		Replay: ReplayConfig{
			Speed: 1.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			BufferSize:   10000,
			QueueSize:    4096,
			WriteTimeout: 5 * time.Second,
			SQLite: SQLiteConfig{
				Enabled: true,
				Path:    "forensic.db",
			},
			Redis: RedisConfig{
				Enabled: false,
				Address: "localhost:6379",
				TTL:     24 * time.Hour,
			},
			Kafka: KafkaConfig{
				Enabled: false,
				Brokers: []string{"localhost:9092"},
				Topic:   "forensic.suspicious",
			},
			Remote: RemoteConfig{
				Enabled: false,
				Timeout: 10 * time.Second,
			},
		},
	}
}

// Load loads configuration from a file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Check for config file path in environment
	configPath := os.Getenv("FORENSIC_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, use defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("FORENSIC_HTTP_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Server.HTTPPort)
	}

	if level := os.Getenv("FORENSIC_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if domains := os.Getenv("FORENSIC_ALLOWED_DOMAINS"); domains != "" {
		c.Scoring.AllowedDomains = splitAndTrim(domains, ",")
	}

	if threshold := os.Getenv("FORENSIC_SCORE_THRESHOLD"); threshold != "" {
		fmt.Sscanf(threshold, "%f", &c.Scoring.Threshold)
	}

	if path := os.Getenv("FORENSIC_SQLITE_PATH"); path != "" {
		c.Storage.SQLite.Enabled = true
		c.Storage.SQLite.Path = path
	}

	if addr := os.Getenv("FORENSIC_REDIS_ADDR"); addr != "" {
		c.Storage.Redis.Enabled = true
		c.Storage.Redis.Address = addr
	}

	if pass := os.Getenv("FORENSIC_REDIS_PASSWORD"); pass != "" {
		c.Storage.Redis.Password = pass
	}

	if brokers := os.Getenv("FORENSIC_KAFKA_BROKERS"); brokers != "" {
		c.Storage.Kafka.Enabled = true
		c.Storage.Kafka.Brokers = splitAndTrim(brokers, ",")
	}

	if endpoint := os.Getenv("FORENSIC_REMOTE_ENDPOINT"); endpoint != "" {
		c.Storage.Remote.Enabled = true
		c.Storage.Remote.Endpoint = endpoint
	}
}

// splitAndTrim splits a string by separator and trims whitespace from each part.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	if c.Server.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive")
	}

	if c.Recording.ThrottleInterval < 0 {
		return fmt.Errorf("throttle_interval must not be negative")
	}

	if c.Scoring.Threshold < 0 || c.Scoring.Threshold > 1 {
		return fmt.Errorf("invalid scoring threshold: %v", c.Scoring.Threshold)
	}

	if c.Scoring.ClickWindow < 0 {
		return fmt.Errorf("click_window must not be negative")
	}

	if c.Replay.Speed <= 0 {
		return fmt.Errorf("replay speed must be positive")
	}

	if c.Storage.BufferSize <= 0 {
		return fmt.Errorf("storage buffer_size must be positive")
	}

	if c.Storage.Redis.Enabled && c.Storage.Redis.Address == "" {
		return fmt.Errorf("redis enabled without address")
	}

	if c.Storage.Kafka.Enabled && len(c.Storage.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled without brokers")
	}

	if c.Storage.Remote.Enabled && c.Storage.Remote.Endpoint == "" {
		return fmt.Errorf("remote storage enabled without endpoint")
	}

	return nil
}
