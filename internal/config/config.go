// Package config centralizes application configuration. Load order:
// defaults -> config.yml -> config.local.yml -> env overrides ->
// validation. A configuration error is fatal at startup: a route
// without a usable rule must never fall through to unlimited traffic.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rategate/internal/events"
	"rategate/internal/identity"
	"rategate/internal/ratelimit"
	"rategate/internal/server"
)

// StoreConfig selects and configures the window store backend.
type StoreConfig struct {
	// Type is "memory" (single instance) or "redis" (shared).
	Type string `yaml:"type"`

	Memory ratelimit.MemoryStoreConfig `yaml:"memory"`
	Redis  ratelimit.RedisConfig       `yaml:"redis"`
}

// EventsConfig selects and configures the decision event sink.
type EventsConfig struct {
	// Type is "none", "memory", or "nats".
	Type string `yaml:"type"`

	NATS     events.NATSConfig     `yaml:"nats"`
	Recorder events.RecorderConfig `yaml:"recorder"`
}

// Config holds the application configuration.
type Config struct {
	Logging  LoggingConfig   `yaml:"logging"`
	Server   server.Config   `yaml:"server"`
	Identity identity.Config `yaml:"identity"`
	Store    StoreConfig     `yaml:"store"`
	Events   EventsConfig    `yaml:"events"`

	// DefaultRule applies to routes without an explicit entry in
	// Routes.
	DefaultRule ratelimit.Rule `yaml:"default_rule"`

	// Routes maps a route pattern to its rate limit rule.
	Routes map[string]ratelimit.Rule `yaml:"routes"`
}

// LoadConfig loads configuration from files and environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Logging:     DefaultLoggingConfig(),
		Server:      server.DefaultConfig(),
		Identity:    identity.DefaultConfig(),
		Store:       StoreConfig{Type: "memory", Memory: ratelimit.DefaultMemoryStoreConfig()},
		Events:      EventsConfig{Type: "none", NATS: events.DefaultNATSConfig(), Recorder: events.DefaultRecorderConfig()},
		DefaultRule: ratelimit.DefaultRule(),
		Routes: map[string]ratelimit.Rule{
			// Login attempts get the stricter rule out of the box;
			// config files can override or extend per route.
			"/v1/login": ratelimit.AuthRule(),
		},
	}

	loadFile("config/config.yml", cfg)
	loadFile("config/config.local.yml", cfg)

	cfg.applyEnvOverrides()

	cfg.Logging.ApplyDefaults()
	cfg.Server.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(filename string, cfg *Config) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return // File doesn't exist, skip
		}
		fmt.Fprintf(os.Stderr, "Warning: error reading %s: %v\n", filename, err)
		return
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error parsing %s: %v\n", filename, err)
	}
}

// applyEnvOverrides applies deployment-level overrides. A .env file
// is honored when present.
func (c *Config) applyEnvOverrides() {
	_ = godotenv.Load()

	if v := os.Getenv("RATEGATE_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.HTTPPort = port
		}
	}
	if v := os.Getenv("RATEGATE_STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("RATEGATE_REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("RATEGATE_REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("RATEGATE_NATS_URL"); v != "" {
		c.Events.NATS.URL = v
	}
	if v := os.Getenv("RATEGATE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the whole configuration. Rule validation here is
// the startup-time guard the limiter relies on.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	switch c.Store.Type {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store: redis selected but no address configured")
		}
	default:
		return fmt.Errorf("store: unknown type %q (must be memory or redis)", c.Store.Type)
	}

	switch c.Events.Type {
	case "none", "memory", "nats":
	default:
		return fmt.Errorf("events: unknown type %q (must be none, memory, or nats)", c.Events.Type)
	}

	if err := c.DefaultRule.Validate(); err != nil {
		return fmt.Errorf("default_rule: %w", err)
	}
	for route, rule := range c.Routes {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("routes[%s]: %w", route, err)
		}
	}

	return nil
}

// RuleFor returns the rule bound to a route, falling back to the
// default rule.
func (c *Config) RuleFor(route string) ratelimit.Rule {
	if rule, ok := c.Routes[route]; ok {
		return rule
	}
	return c.DefaultRule
}
