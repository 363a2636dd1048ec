package models

import "time"

type VersionType string

const (
	VersionTypeItem VersionType = "item"
	VersionTypeFile VersionType = "file"
)

func (t VersionType) Valid() bool {
	return t == VersionTypeItem || t == VersionTypeFile
}

// Version is one immutable node of an entity's history. ID is the stable
// group identity shared by all versions of one item or file.
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

// VersionSummary is the payload-free projection used by snapshots.
type VersionSummary struct {
	VersionID         string
	PreviousVersionID *string
	ID                string
	Type              VersionType
	DeletedAt         *time.Time
}

type VersionFilters struct {
	VaultID string
	Type    VersionType
	Offset  int
	Limit   int
}
