package models

import "time"

// Settings are the server-wide switches an admin controls. Each update is
// stored as a new row and the newest row wins.
type Settings struct {
	RegistrationEnabled bool      `json:"registrationEnabled"`
	CreatedAt           time.Time `json:"createdAt"`
}

type SettingsPatch struct {
	RegistrationEnabled *bool `json:"registrationEnabled"`
}

// ServerInfo is what an unauthenticated client learns before signing up.
type ServerInfo struct {
	Version             string       `json:"version"`
	RegistrationEnabled bool         `json:"registrationEnabled"`
	Limits              ServerLimits `json:"limits"`
}

type ServerLimits struct {
	MaxPageLimit         int `json:"maxPageLimit"`
	PresignExpirySeconds int `json:"presignExpirySeconds"`
}
