package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/flagx"
	"github.com/dmitrijs2005/vaultsync/internal/timex"
)

// JsonConfig is the on-disk shape of the server configuration file.
// Intervals use timex.Duration so both "90s" and integer nanoseconds parse.
type JsonConfig struct {
	EndpointAddrHTTP                  string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC                  string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                       string         `json:"database_dsn"`
	SecretKey                         string         `json:"secret_key"`
	SessionValidityDuration           timex.Duration `json:"session_validity_duration"`
	VerificationTokenValidityDuration timex.Duration `json:"verification_token_validity_duration"`
	SessionSweepInterval              timex.Duration `json:"session_sweep_interval"`
	ChunkGCInterval                   timex.Duration `json:"chunk_gc_interval"`
	ChunkGCGrace                      timex.Duration `json:"chunk_gc_grace"`
	PresignExpiry                     timex.Duration `json:"presign_expiry"`
	S3RootUser                        string         `json:"s3_root_user"`
	S3RootPassword                    string         `json:"s3_root_password"`
	S3Bucket                          string         `json:"s3_bucket"`
	S3Region                          string         `json:"s3_region"`
	S3BaseEndpoint                    string         `json:"s3_base_endpoint"`
	DefaultPageLimit                  int            `json:"default_page_limit"`
	MaxPageLimit                      int            `json:"max_page_limit"`
	RegistrationEnabled               *bool          `json:"registration_enabled"`
	HealthCheckInterval               timex.Duration `json:"health_check_interval"`
	LogLevel                          string         `json:"log_level"`
}

// parseJson overlays values from the file named by -c / -config. Fields
// absent from the file keep their current value. Unreadable or invalid
// files panic.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.SessionValidityDuration, c.SessionValidityDuration)
	setDuration(&config.VerificationTokenValidityDuration, c.VerificationTokenValidityDuration)
	setDuration(&config.SessionSweepInterval, c.SessionSweepInterval)
	setDuration(&config.ChunkGCInterval, c.ChunkGCInterval)
	setDuration(&config.ChunkGCGrace, c.ChunkGCGrace)
	setDuration(&config.PresignExpiry, c.PresignExpiry)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.DefaultPageLimit > 0 {
		config.DefaultPageLimit = c.DefaultPageLimit
	}
	if c.MaxPageLimit > 0 {
		config.MaxPageLimit = c.MaxPageLimit
	}
	if c.RegistrationEnabled != nil {
		config.RegistrationEnabled = *c.RegistrationEnabled
	}
	setDuration(&config.HealthCheckInterval, c.HealthCheckInterval)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
