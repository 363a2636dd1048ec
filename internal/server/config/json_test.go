package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	full := writeTempJSON(t, dir, "full.json", map[string]any{
		"endpoint_addr_http":                   "www.example:8000",
		"endpoint_addr_grpc":                   "www.example:9000",
		"database_dsn":                         "vault.db",
		"secret_key":                           "my_secret_key",
		"session_validity_duration":            "1h",
		"verification_token_validity_duration": "2h",
		"session_sweep_interval":               "30s",
		"chunk_gc_interval":                    "5m",
		"chunk_gc_grace":                       "6h",
		"presign_expiry":                       "1m",
		"s3_root_user":                         "user",
		"s3_root_password":                     "password",
		"s3_bucket":                            "bucket",
		"s3_region":                            "region",
		"s3_base_endpoint":                     "base_endpoint",
		"default_page_limit":                   10,
		"max_page_limit":                       20,
		"registration_enabled":                 true,
		"health_check_interval":                "10s",
		"log_level":                            "debug",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", full}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "www.example:8000", cfg.EndpointAddrHTTP)
		assert.Equal(t, "www.example:9000", cfg.EndpointAddrGRPC)
		assert.Equal(t, "vault.db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, time.Hour, cfg.SessionValidityDuration)
		assert.Equal(t, 2*time.Hour, cfg.VerificationTokenValidityDuration)
		assert.Equal(t, 30*time.Second, cfg.SessionSweepInterval)
		assert.Equal(t, 5*time.Minute, cfg.ChunkGCInterval)
		assert.Equal(t, 6*time.Hour, cfg.ChunkGCGrace)
		assert.Equal(t, time.Minute, cfg.PresignExpiry)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, 10, cfg.DefaultPageLimit)
		assert.Equal(t, 20, cfg.MaxPageLimit)
		assert.True(t, cfg.RegistrationEnabled)
		assert.Equal(t, 10*time.Second, cfg.HealthCheckInterval)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("partial file keeps other values", func(t *testing.T) {
		partial := writeTempJSON(t, dir, "partial.json", map[string]any{"s3_bucket": "other"})
		os.Args = []string{"testbin", "-c", partial}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "other", cfg.S3Bucket)
		assert.Equal(t, ":8080", cfg.EndpointAddrHTTP)
		assert.Equal(t, 24*time.Hour, cfg.ChunkGCGrace)
		assert.True(t, cfg.RegistrationEnabled)
	})

	t.Run("registration can be closed", func(t *testing.T) {
		closed := writeTempJSON(t, dir, "closed.json", map[string]any{"registration_enabled": false})
		os.Args = []string{"testbin", "-c", closed}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.False(t, cfg.RegistrationEnabled)
	})

	t.Run("no config flag leaves config unchanged", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{S3Bucket: "s3bucket"}
		parseJson(cfg)
		assert.Equal(t, "s3bucket", cfg.S3Bucket)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		os.Args = []string{"testbin", "-config", bad}

		require.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", filepath.Join(dir, "nope.json")}
		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
