package models

import "time"

type Vault struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	ProtectedEncryptionKey string     `json:"protectedEncryptionKey"`
	ProtectedData          *string    `json:"protectedData"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
	DeletedAt              *time.Time `json:"deletedAt"`
}

type VersionType string

const (
	VersionTypeItem VersionType = "item"
	VersionTypeFile VersionType = "file"
)

// Version is one immutable node of an entity's history. ID is the group
// identity shared by every version of one item or file.
type Version struct {
	VersionID         string      `json:"versionId"`
	PreviousVersionID *string     `json:"previousVersionId"`
	ID                string      `json:"id"`
	VaultID           string      `json:"vaultId"`
	Type              VersionType `json:"type"`
	ProtectedData     string      `json:"protectedData"`
	CreatedAt         time.Time   `json:"createdAt"`
	CreatedBy         string      `json:"createdBy"`
	DeletedAt         *time.Time  `json:"deletedAt"`
	CommittedAt       *time.Time  `json:"committedAt,omitempty"`
	Chunks            []FileChunk `json:"chunks,omitempty"`
}

func (v *Version) Tombstone() bool {
	return v.DeletedAt != nil
}

type FileChunk struct {
	Hash     string `json:"hash"`
	Position int    `json:"position"`
	Size     int64  `json:"size"`
}

// Snapshot maps every known version id of a vault to its tombstone flag.
type Snapshot struct {
	Vault    SnapshotVault   `json:"vault"`
	Versions map[string]bool `json:"versions"`
}

type SnapshotVault struct {
	UpdatedAt time.Time `json:"updatedAt"`
}

type PageMeta struct {
	Results int `json:"results"`
	Total   int `json:"total"`
	Limit   int `json:"limit"`
	Offset  int `json:"offset"`
}

type Page[T any] struct {
	Meta    PageMeta `json:"meta"`
	Results []T      `json:"results"`
}

// VaultPatch lists the fields a vault update may change; nil means keep.
type VaultPatch struct {
	Name                   *string `json:"name,omitempty"`
	ProtectedEncryptionKey *string `json:"protectedEncryptionKey,omitempty"`
	ProtectedData          *string `json:"protectedData,omitempty"`
}
