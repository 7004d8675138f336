package config

import "time"

// DefaultConfig returns the built-in configuration used when no config file
// is present. The tier table matches the rates the cafe ran on historically.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:              "0.0.0.0",
			Port:            5000,
			IdentifyTimeout: Duration(5 * time.Second),
		},
		Admin: AdminConfig{
			Enabled: true,
			Port:    8080,
			Token:   "",
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			SQLite: SQLiteStoreConfig{
				Path: "data/warnet.db",
			},
		},
		Tiers: []TierConfig{
			{Name: "Normal", MinutesPerHour: 60, PricePerHour: 3000},
			{Name: "VIP", MinutesPerHour: 60, PricePerHour: 5000},
			{Name: "Gamer", MinutesPerHour: 60, PricePerHour: 6000},
		},
	}
}
