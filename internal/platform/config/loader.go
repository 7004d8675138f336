package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when WARNET_CONFIG is not set.
const DefaultPath = "config.yaml"

// Loader reads configuration from a YAML file layered over the defaults.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader resolving the config path from the environment.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the configuration file path (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load resolves the config file, overlays it on the defaults and validates
// the outcome. A missing file is not an error; defaults apply.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		_ = godotenv.Load()
	}

	path := l.path
	if path == "" {
		path = os.Getenv("WARNET_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		path = "builtin:defaults"
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", cfg.Server.Port)
	}
	if cfg.Server.IdentifyTimeout <= 0 {
		cfg.Server.IdentifyTimeout = DefaultConfig().Server.IdentifyTimeout
	}
	if cfg.Admin.Enabled && (cfg.Admin.Port <= 0 || cfg.Admin.Port > 65535) {
		return fmt.Errorf("admin port %d out of range", cfg.Admin.Port)
	}
	if len(cfg.Tiers) == 0 {
		return fmt.Errorf("at least one tier must be configured")
	}
	seen := make(map[string]struct{}, len(cfg.Tiers))
	for _, tier := range cfg.Tiers {
		if tier.Name == "" {
			return fmt.Errorf("tier with empty name")
		}
		if _, dup := seen[tier.Name]; dup {
			return fmt.Errorf("duplicate tier %q", tier.Name)
		}
		seen[tier.Name] = struct{}{}
		if tier.MinutesPerHour <= 0 {
			return fmt.Errorf("tier %q: minutes_per_hour must be positive", tier.Name)
		}
		if tier.PricePerHour < 0 {
			return fmt.Errorf("tier %q: price_per_hour must not be negative", tier.Name)
		}
	}
	switch cfg.Store.Driver {
	case "", "memory", "sqlite":
	case "redis":
		if cfg.Store.Redis.Addr == "" {
			return fmt.Errorf("redis store requires addr")
		}
	default:
		return fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
	return nil
}
