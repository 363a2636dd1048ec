package config

import (
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	if err := env.Parse(cfg); err != nil {
		panic(err)
	}
}
