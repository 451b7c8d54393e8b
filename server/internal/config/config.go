package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hvacdiag/hvacdiag/pkg/logging"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "efficiency_score < 60",
	// "total_cost > 500", "high_issues >= 3", "grade == poor".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultHTTPPort       = 8080
	DefaultRunTTL         = 24 * time.Hour
	DefaultMaxUploadBytes = 10 << 20
	DefaultEventsTopic    = "hvacdiag.runs"
)

// Config holds the server-side configuration parsed from the `server:` section
// of the config file. Other top-level keys are ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, metrics and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port"`

	Runs RunsConfig `yaml:"runs"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`

	Events EventsConfig `yaml:"events"`

	Log logging.Options `yaml:"log"`
}

// RunsConfig controls in-memory run retention and upload limits.
type RunsConfig struct {
	// TTL is how long a run stays in the store after it was received.
	TTL time.Duration `yaml:"ttl"`

	// MaxUploadBytes caps the body of POST /api/v1/analyze.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// EventsConfig controls publication of run.completed events to Kafka.
type EventsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	// BrokersEnv, when set, names a comma-separated broker list in the
	// environment that overrides Brokers.
	BrokersEnv string `yaml:"brokers_env"`
}

// BrokerList returns the effective broker addresses.
func (e EventsConfig) BrokerList() []string {
	if e.BrokersEnv != "" {
		if v := os.Getenv(e.BrokersEnv); v != "" {
			var out []string
			for _, b := range strings.Split(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					out = append(out, b)
				}
			}
			return out
		}
	}
	return e.Brokers
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Runs: RunsConfig{
				TTL:            DefaultRunTTL,
				MaxUploadBytes: DefaultMaxUploadBytes,
			},
			Events: EventsConfig{Topic: DefaultEventsTopic},
		},
	}
}

func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.Runs.TTL < 0 {
		return fmt.Errorf("server.runs.ttl must not be negative")
	}
	if s.Runs.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.runs.max_upload_bytes must be positive")
	}
	if err := s.Log.Validate(); err != nil {
		return fmt.Errorf("server.log: %w", err)
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name is required", i)
		}
		if len(strings.Fields(r.Condition)) != 3 {
			return fmt.Errorf("server.alerts.rules[%d] %q: condition %q must be \"field op value\"", i, r.Name, r.Condition)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("server.alerts.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "teams", "slack", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	if s.Events.Enabled {
		if len(s.Events.BrokerList()) == 0 {
			return fmt.Errorf("server.events: brokers are required when enabled")
		}
		if s.Events.Topic == "" {
			return fmt.Errorf("server.events.topic must not be empty")
		}
	}
	return nil
}
