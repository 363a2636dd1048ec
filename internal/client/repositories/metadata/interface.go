// Package metadata is a small key/value table in the local store. It keeps
// the session, the last seen vault timestamps and the per-vault dirty flags.
package metadata

import (
	"context"
)

type Repository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	// Scan returns every key starting with prefix;  matches all keys.
	Scan(ctx context.Context, prefix string) (map[string]string, error)
	Clear(ctx context.Context) error
}

const (
	KeySessionToken = "session_token"
	KeySessionID    = "session_id"
	KeyEmail        = "email"
)

// VaultPrefix is shared by every key that belongs to one vault.
func VaultPrefix(vaultID string) string {
	return "vault:" + vaultID + ":"
}

// VaultLastSeenKey holds the vault updatedAt observed at the end of the
// last successful sync, RFC 3339 with nanoseconds.
func VaultLastSeenKey(vaultID string) string {
	return VaultPrefix(vaultID) + "updated_at"
}

// VaultDirtyKey is present while the vault has local writes the server has
// not seen.
func VaultDirtyKey(vaultID string) string {
	return VaultPrefix(vaultID) + "dirty"
}

// VaultPatchKey is present while the vault's name or protected key changed
// locally and the server has not been told.
func VaultPatchKey(vaultID string) string {
	return VaultPrefix(vaultID) + "patch"
}
