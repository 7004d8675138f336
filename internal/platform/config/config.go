package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "5s" style YAML values; bare integers are seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Std converts to the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Server ServerConfig `yaml:"server"`
	Admin  AdminConfig  `yaml:"admin"`
	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
	Tiers  []TierConfig `yaml:"tiers"`
}

// ServerConfig describes the terminal-facing TCP listener.
type ServerConfig struct {
	IP              string   `yaml:"ip"`
	Port            int      `yaml:"port"`
	IdentifyTimeout Duration `yaml:"identify_timeout"`
}

// AdminConfig describes the HTTP admin API consumed by the dashboard GUI.
type AdminConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Token     string `yaml:"token"`
	StaticDir string `yaml:"static_dir"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

// StoreConfig selects the ledger store driver and its settings.
type StoreConfig struct {
	Driver string            `yaml:"driver"`
	SQLite SQLiteStoreConfig `yaml:"sqlite,omitempty"`
	Redis  RedisStoreConfig  `yaml:"redis,omitempty"`
}

type SQLiteStoreConfig struct {
	Path string `yaml:"path"`
}

type RedisStoreConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// TierConfig is one named PC category with its hourly rates.
type TierConfig struct {
	Name           string  `yaml:"name"`
	MinutesPerHour int     `yaml:"minutes_per_hour"`
	PricePerHour   float64 `yaml:"price_per_hour"`
}
