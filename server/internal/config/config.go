package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cardiosense/cardiosense/pkg/risk"
)

// AlertsConfig holds alert suppression and webhook delivery targets.
type AlertsConfig struct {
	// Cooldown suppresses re-fires for the same patient for this duration.
	// Defaults to 5 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`

	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | pagerduty | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	return env(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultHTTPPort       = 8080
	DefaultLogLevel       = "info"
	DefaultHistoryTTL     = 24 * time.Hour
	DefaultHistoryMax     = 10000
	DefaultAlertCooldown  = 5 * time.Minute
	DefaultTable          = "readings"
	DefaultNATSSubject    = "cardiosense.assessments"
	DefaultKafkaTopic     = "cardiosense.assessments"
	DefaultCacheTTL       = 30 * time.Second
	DefaultRateLimitRPS   = 20
	DefaultRateLimitBurst = 40
	DefaultAuthHeader     = "x-api-key"
	DefaultRuleSet        = risk.BuiltinExtended
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, metrics and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	Auth      AuthConfig      `yaml:"auth"`
	Rules     RulesConfig     `yaml:"rules"`
	History   HistoryConfig   `yaml:"history"`
	Storage   StorageConfig   `yaml:"storage"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Events    EventsConfig    `yaml:"events"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig controls client authentication on the REST API.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	return env(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAuthHeader
}

// RulesConfig selects the active rule set.
type RulesConfig struct {
	// Set names a built-in rule set: basic | extended.
	Set string `yaml:"set"`

	// File, when set, is a YAML rule set loaded instead of Set. The file is
	// watched and reloaded on change.
	File string `yaml:"file"`
}

// Load returns the rule set named by the config.
func (r RulesConfig) Load() (*risk.RuleSet, error) {
	if r.File != "" {
		return risk.LoadRuleSet(r.File)
	}
	return risk.Builtin(r.Set)
}

// HistoryConfig controls in-memory reading retention.
type HistoryConfig struct {
	// TTL is how long a reading stays in the in-memory log. Zero keeps readings
	// until MaxEntries pushes them out.
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries caps the in-memory log; the oldest readings are dropped first.
	MaxEntries int `yaml:"max_entries"`
}

// StorageConfig selects the reading log backend.
type StorageConfig struct {
	// Backend is one of: memory | postgres | clickhouse.
	Backend string `yaml:"backend"`

	// DSNEnv is the environment variable holding the database DSN.
	DSNEnv string `yaml:"dsn_env"`

	// Table is the readings table name (default "readings").
	Table string `yaml:"table"`

	// CreateTables runs the schema migration on startup.
	CreateTables bool `yaml:"create_tables"`
}

// DSN returns the database DSN resolved from the environment.
func (s StorageConfig) DSN() string {
	return env(s.DSNEnv)
}

// EventsConfig selects where assessment events are published.
type EventsConfig struct {
	// Backend is one of: none | nats | kafka.
	Backend string `yaml:"backend"`

	// URL is the NATS server URL.
	URL string `yaml:"url"`

	// Subject is the NATS subject prefix (default "cardiosense.assessments").
	Subject string `yaml:"subject"`

	// Brokers lists the Kafka bootstrap brokers.
	Brokers []string `yaml:"brokers"`

	// Topic is the Kafka topic (default "cardiosense.assessments").
	Topic string `yaml:"topic"`
}

// CacheConfig selects the summary report cache.
type CacheConfig struct {
	// Backend is one of: none | redis.
	Backend string `yaml:"backend"`

	Addr        string        `yaml:"addr"`
	PasswordEnv string        `yaml:"password_env"`
	DB          int           `yaml:"db"`
	TTL         time.Duration `yaml:"ttl"`
}

// Password returns the Redis password resolved from the environment.
func (c CacheConfig) Password() string {
	return env(c.PasswordEnv)
}

// RateLimitConfig limits requests per client IP. RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`

	// TrustedProxies lists the addresses or CIDR ranges of reverse proxies
	// whose X-Forwarded-For and X-Real-IP headers are believed. Requests
	// from anywhere else are limited by their connection address.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// Proxies parses TrustedProxies. A bare address is a single-host range.
func (r RateLimitConfig) Proxies() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(r.TrustedProxies))
	for _, p := range r.TrustedProxies {
		if !strings.Contains(p, "/") {
			addr, err := netip.ParseAddr(p)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", p, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(p)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", p, err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a config document, applying defaults and validating it.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaults()
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			LogLevel: DefaultLogLevel,
			Auth:     AuthConfig{Mode: "none"},
			Rules:    RulesConfig{Set: DefaultRuleSet},
			History: HistoryConfig{
				TTL:        DefaultHistoryTTL,
				MaxEntries: DefaultHistoryMax,
			},
			Storage: StorageConfig{
				Backend: "memory",
				Table:   DefaultTable,
			},
			Alerts: AlertsConfig{Cooldown: DefaultAlertCooldown},
			Events: EventsConfig{
				Backend: "none",
				Subject: DefaultNATSSubject,
				Topic:   DefaultKafkaTopic,
			},
			Cache: CacheConfig{
				Backend: "none",
				TTL:     DefaultCacheTTL,
			},
			RateLimit: RateLimitConfig{
				RPS:   DefaultRateLimitRPS,
				Burst: DefaultRateLimitBurst,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := &cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	switch s.Auth.Mode {
	case "apikey":
		if s.Auth.KeyEnv == "" {
			return fmt.Errorf("server.auth.key_env is required when mode is apikey")
		}
	case "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Rules.File == "" {
		if _, err := risk.Builtin(s.Rules.Set); err != nil {
			return fmt.Errorf("server.rules.set: %w", err)
		}
	}
	if s.History.TTL < 0 {
		return fmt.Errorf("server.history.ttl must not be negative")
	}
	if s.History.MaxEntries < 0 {
		return fmt.Errorf("server.history.max_entries must not be negative")
	}
	switch s.Storage.Backend {
	case "memory":
	case "postgres", "clickhouse":
		if s.Storage.DSNEnv == "" {
			return fmt.Errorf("server.storage.dsn_env is required for backend %q", s.Storage.Backend)
		}
		if s.Storage.Table == "" {
			return fmt.Errorf("server.storage.table must not be empty")
		}
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want memory|postgres|clickhouse", s.Storage.Backend)
	}
	if s.Alerts.Cooldown < 0 {
		return fmt.Errorf("server.alerts.cooldown must not be negative")
	}
	for i, wh := range s.Alerts.Webhooks {
		switch wh.Type {
		case "teams", "slack", "pagerduty", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d].type %q unknown: want teams|slack|pagerduty|http", i, wh.Type)
		}
	}
	switch s.Events.Backend {
	case "none", "":
	case "nats":
		if s.Events.URL == "" {
			return fmt.Errorf("server.events.url is required for backend nats")
		}
	case "kafka":
		if len(s.Events.Brokers) == 0 {
			return fmt.Errorf("server.events.brokers is required for backend kafka")
		}
	default:
		return fmt.Errorf("server.events.backend %q unknown: want none|nats|kafka", s.Events.Backend)
	}
	switch s.Cache.Backend {
	case "none", "":
	case "redis":
		if s.Cache.Addr == "" {
			return fmt.Errorf("server.cache.addr is required for backend redis")
		}
	default:
		return fmt.Errorf("server.cache.backend %q unknown: want none|redis", s.Cache.Backend)
	}
	if s.Cache.TTL < 0 {
		return fmt.Errorf("server.cache.ttl must not be negative")
	}
	if s.RateLimit.RPS > 0 && s.RateLimit.Burst < 1 {
		return fmt.Errorf("server.rate_limit.burst must be at least 1 when rps is set")
	}
	if _, err := s.RateLimit.Proxies(); err != nil {
		return fmt.Errorf("server.rate_limit: %w", err)
	}
	return nil
}
