package config

import (
	"github.com/caarlos0/env/v6"
	"github.com/dmitrijs2005/vaultsync/internal/flagx"
	"github.com/joho/godotenv"
)

// parseEnv loads an optional dotenv file (-env flag, else ./.env) and then
// overlays every variable that is set. Unset variables keep earlier values.
// Malformed values panic, matching the JSON and flag loaders.
func parseEnv(config *Config) {
	if path := flagx.EnvFile(); path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
	} else {
		_ = godotenv.Load()
	}

	if err := env.Parse(config); err != nil {
		panic(err)
	}
}
