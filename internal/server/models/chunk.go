package models

import "time"

// Chunk is a content-addressed blob of one vault. IsStored becomes true only
// after the object store confirmed the bytes.
type Chunk struct {
	VaultID   string     `json:"vaultId"`
	Hash      string     `json:"hash"`
	Size      int64      `json:"size"`
	IsStored  bool       `json:"isStored"`
	CreatedAt time.Time  `json:"createdAt"`
	StoredAt  *time.Time `json:"storedAt,omitempty"`
}

// FileChunk places a chunk at a position of a file version.
type FileChunk struct {
	Hash     string `json:"hash"`
	Position int    `json:"position"`
	Size     int64  `json:"size"`
}
