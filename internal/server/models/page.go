package models

import "time"

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

// Snapshot summarises a vault for reconciliation: version id -> tombstone.
type Snapshot struct {
	Vault    SnapshotVault   `json:"vault"`
	Versions map[string]bool `json:"versions"`
}

type SnapshotVault struct {
	UpdatedAt time.Time `json:"updatedAt"`
}
