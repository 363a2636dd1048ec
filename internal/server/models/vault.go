// Package models defines the server-side entities persisted in Postgres.
// Payload fields hold client ciphertext and are never interpreted here.
package models

import "time"

type Vault struct {
	ID                     string     `json:"id"`
	OwnerID                string     `json:"ownerId"`
	Name                   string     `json:"name"`
	ProtectedEncryptionKey string     `json:"protectedEncryptionKey"`
	ProtectedData          *string    `json:"protectedData"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
	DeletedAt              *time.Time `json:"deletedAt"`
}

// VaultPatch lists the fields a vault update may change; nil means keep.
type VaultPatch struct {
	Name                   *string `json:"name"`
	ProtectedEncryptionKey *string `json:"protectedEncryptionKey"`
	ProtectedData          *string `json:"protectedData"`
}

type VaultFilters struct {
	OwnerID string
	Offset  int
	Limit   int
}
