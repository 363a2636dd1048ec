package config

import "time"

// Config holds runtime settings for the vaultsync CLI.
type Config struct {
	ServerURL           string        `env:"VAULTSYNC_SERVER_URL"`
	DatabasePath        string        `env:"VAULTSYNC_DB"`
	OnlineCheckInterval time.Duration `env:"VAULTSYNC_ONLINE_CHECK_INTERVAL"`
	RequestTimeout      time.Duration `env:"VAULTSYNC_REQUEST_TIMEOUT"`
	LogLevel            string        `env:"VAULTSYNC_LOG_LEVEL"`
}

func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DatabasePath = "vaultsync/vault.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 30 * time.Second
	c.LogLevel = "warn"
}

// LoadConfig applies defaults, then the JSON file, then the environment.
// Flags are applied by the caller once cobra has parsed them.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	return cfg
}
