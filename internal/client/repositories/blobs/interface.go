// Package blobs keeps sealed chunk bytes in the local store, keyed by vault
// and plaintext hash. A blob stays until the vault is purged so files can
// be read back without a download.
package blobs

import "context"

type Repository interface {
	Put(ctx context.Context, vaultID, hash string, data []byte) error
	Get(ctx context.Context, vaultID, hash string) ([]byte, error)
	Has(ctx context.Context, vaultID, hash string) (bool, error)
	Delete(ctx context.Context, vaultID, hash string) error
}
