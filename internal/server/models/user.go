package models

import (
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/access"
)

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         access.Role
	VerifiedAt   *time.Time
	CreatedAt    time.Time
}

// UserPatch lists the account fields an update may change; nil means keep.
type UserPatch struct {
	Email       *string `json:"email"`
	DisplayName *string `json:"displayName"`
}
