package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"taskline/internal/domain"
)

const FileName = "taskline.yml"

// Config models taskline.yml.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	Locks  LockConfig   `yaml:"locks"`
	Relay  RelayConfig  `yaml:"relay"`
	Log    struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	// DevTokens exposes POST /auth/dev/token. Never enable outside local setups.
	DevTokens bool `yaml:"dev_tokens"`
}

type LockConfig struct {
	Backend  string        `yaml:"backend"`
	RedisURL string        `yaml:"redis_url"`
	Wait     time.Duration `yaml:"wait"`
	TTL      time.Duration `yaml:"ttl"`
}

type RelayConfig struct {
	Interval time.Duration   `yaml:"interval"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Kafka    KafkaConfig     `yaml:"kafka"`
}

type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"secret"`
	Events  []string      `yaml:"events"`
	Timeout time.Duration `yaml:"timeout"`
	Enabled *bool         `yaml:"enabled"`
}

// Active reports whether the webhook should receive deliveries.
func (w WebhookConfig) Active() bool {
	return strings.TrimSpace(w.URL) != "" && (w.Enabled == nil || *w.Enabled)
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Events  []string `yaml:"events"`
}

func (k KafkaConfig) Active() bool { return len(k.Brokers) > 0 }

const (
	LockMemory = "memory"
	LockRedis  = "redis"
)

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("config.auth.token_ttl must not be negative")
	}
	switch c.Locks.Backend {
	case LockMemory:
	case LockRedis:
		if strings.TrimSpace(c.Locks.RedisURL) == "" {
			return fmt.Errorf("config.locks.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("config.locks.backend must be %q or %q", LockMemory, LockRedis)
	}
	if c.Locks.Wait < 0 || c.Locks.TTL < 0 {
		return fmt.Errorf("config.locks durations must not be negative")
	}
	for i, hook := range c.Relay.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.relay.webhooks[%d].url is required", i)
		}
		if err := checkKinds(fmt.Sprintf("config.relay.webhooks[%d].events", i), hook.Events); err != nil {
			return err
		}
	}
	if c.Relay.Kafka.Active() && strings.TrimSpace(c.Relay.Kafka.Topic) == "" {
		return fmt.Errorf("config.relay.kafka.topic is required when brokers are set")
	}
	if err := checkKinds("config.relay.kafka.events", c.Relay.Kafka.Events); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

func checkKinds(field string, kinds []string) error {
	for _, k := range kinds {
		known := false
		for _, ek := range domain.EventKinds {
			if k == ek {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%s: unknown event kind %s", field, k)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration with an empty JWT secret.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(""))).Decode(&cfg)
	return &cfg
}

// FromYAML parses raw YAML on top of the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns the commented default config YAML.
func GenerateDefault(jwtSecret string) string {
	return fmt.Sprintf(defaultTemplate, jwtSecret)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1

auth:
  # HS256 signing key for bearer tokens. Override with TASKLINE_AUTH_JWT_SECRET.
  jwt_secret: "%s"
  token_ttl: 24h
  dev_tokens: false

locks:
  # memory serialises writers inside one process; redis across processes.
  backend: memory
  redis_url: ""
  wait: 5s
  ttl: 30s

relay:
  interval: 2s
  webhooks: []
  # - url: https://analytics.example.com/hooks/taskline
  #   secret: change-me
  #   events: [task_completed, stopped_timer]
  kafka:
    brokers: []
    topic: taskline.behavioral-events
    events: []

log:
  level: info
`
