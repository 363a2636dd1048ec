// Package config loads runtime configuration for the vaultsync CLI.
//
// Sources, later ones win:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c / -config.
//  3. Environment variables, after loading ./.env if present.
//  4. Command-line flags, bound by the cobra root command.
//
// JSON schema:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "database_path": "vaultsync/vault.db",
//	  "online_check_interval": "3s",
//	  "request_timeout": "30s",
//	  "log_level": "warn"
//	}
package config
