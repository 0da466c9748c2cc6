package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/cafeclock/go/internal/countdown"
	"gopkg.in/yaml.v3"
)

const (
	// PathEnv names the environment variable holding the YAML config path
	PathEnv     = "CAFECLOCK_CONFIG"
	DefaultPath = "cafeclock.yaml"
)

type Config struct {
	LogLevel  string             `yaml:"log_level"`
	Countdown countdown.Settings `yaml:"countdown"`
	API       APIConfig          `yaml:"api"`
	Poller    PollerConfig       `yaml:"poller"`
	Server    ServerConfig       `yaml:"server"`
	NATS      NATSConfig         `yaml:"nats"`
	Outbox    OutboxConfig       `yaml:"outbox"`
	Snapshot  SnapshotConfig     `yaml:"snapshot"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type PollerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	CafeIDs  []string      `yaml:"cafe_ids"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type NATSConfig struct {
	URL                string `yaml:"url"`
	ConsumeEvents      bool   `yaml:"consume_events"`
	SessionStream      string `yaml:"session_stream"`
	SessionSubject     string `yaml:"session_subject"`
	ConsumerName       string `yaml:"consumer_name"`
	EventStream        string `yaml:"event_stream"`
	EventSubjectPrefix string `yaml:"event_subject_prefix"`
}

type OutboxConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FallbackInterval time.Duration `yaml:"fallback_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	BatchSize        int32         `yaml:"batch_size"`
}

type SnapshotConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		LogLevel:  "info",
		Countdown: countdown.DefaultSettings(),
		API: APIConfig{
			BaseURL: "http://localhost:8001",
			Timeout: 30 * time.Second,
		},
		Poller: PollerConfig{
			Enabled:  true,
			Interval: 15 * time.Second,
		},
		Server: ServerConfig{
			Port: "8082",
		},
		NATS: NATSConfig{
			URL:                "nats://127.0.0.1:4222",
			ConsumeEvents:      false,
			SessionStream:      "CAFE_SESSIONS",
			SessionSubject:     "cafe.sessions.>",
			ConsumerName:       "countdown-gateway",
			EventStream:        "COUNTDOWN_EVENTS",
			EventSubjectPrefix: "countdown.events",
		},
		Outbox: OutboxConfig{
			Enabled:          false,
			FallbackInterval: 30 * time.Second,
			MaxRetries:       5,
			BatchSize:        100,
		},
	}
}

// Load reads .env, then the YAML file, then environment overrides.
// A missing file is only an error when the path was set explicitly.
func Load() (Config, error) {
	_ = godotenv.Load()

	path := os.Getenv(PathEnv)
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	cfg, err := LoadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			cfg = Default()
		} else {
			return Config{}, err
		}
	}

	cfg.applyEnv()
	cfg.Countdown = cfg.Countdown.Normalize()
	return cfg, cfg.Validate()
}

// LoadFile parses a YAML file on top of the defaults
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.API.BaseURL = getEnv("CAFE_API_URL", c.API.BaseURL)
	c.API.Token = getEnv("CAFE_API_TOKEN", c.API.Token)

	c.Poller.Enabled = getEnvAsBool("POLL_ENABLED", c.Poller.Enabled)
	c.Poller.Interval = getEnvAsDuration("POLL_INTERVAL", c.Poller.Interval)
	if ids := os.Getenv("CAFE_IDS"); ids != "" {
		c.Poller.CafeIDs = splitList(ids)
	}

	c.Countdown.TickInterval = getEnvAsDuration("TICK_INTERVAL", c.Countdown.TickInterval)
	c.Countdown.LowTimeThreshold = getEnvAsFloat("LOW_TIME_THRESHOLD", c.Countdown.LowTimeThreshold)

	c.Server.Port = getEnv("PORT", c.Server.Port)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.ConsumeEvents = getEnvAsBool("CONSUME_EVENTS", c.NATS.ConsumeEvents)

	c.Outbox.Enabled = getEnvAsBool("OUTBOX_ENABLED", c.Outbox.Enabled)
	c.Snapshot.Enabled = getEnvAsBool("SNAPSHOT_ENABLED", c.Snapshot.Enabled)
}

// Validate rejects configurations the service cannot run with
func (c Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid server port %q: %w", c.Server.Port, err)
	}
	if c.Poller.Enabled && c.API.BaseURL == "" {
		return errors.New("api base_url is required when polling is enabled")
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("invalid poll interval %s", c.Poller.Interval)
	}
	return nil
}

// NeedsDatabase reports whether any Postgres-backed component is on
func (c Config) NeedsDatabase() bool {
	return c.Outbox.Enabled || c.Snapshot.Enabled
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
