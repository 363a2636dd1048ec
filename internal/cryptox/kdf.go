// Package cryptox implements the vault key hierarchy: password-derived
// key-encryption keys, wrapped vault keys that survive password rotation,
// and authenticated encryption of payloads and file chunks.
package cryptox

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4

	// KeySize is the length of every symmetric key in bytes (AES-256).
	KeySize  = 32
	SaltSize = 16
)

var b64 = base64.RawURLEncoding

// DeriveKey stretches password with argon2id. The call is deliberately
// CPU and memory heavy.
func DeriveKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, kdfTime, kdfMemory, kdfThreads, KeySize)
}

// HashPassword returns an encoded argon2id hash suitable for storing login
// credentials: "argon2id$<salt>$<hash>".
func HashPassword(password string) string {
	salt := common.GenerateRandByteArray(SaltSize)
	hash := DeriveKey([]byte(password), salt)
	return fmt.Sprintf("argon2id$%s$%s", b64.EncodeToString(salt), b64.EncodeToString(hash))
}

// VerifyPassword reports whether password matches an encoded hash produced
// by HashPassword. Malformed hashes never match.
func VerifyPassword(encoded, password string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != "argon2id" {
		return false
	}
	salt, err := b64.DecodeString(parts[1])
	if err != nil {
		return false
	}
	want, err := b64.DecodeString(parts[2])
	if err != nil {
		return false
	}
	got := DeriveKey([]byte(password), salt)
	defer common.WipeByteArray(got)
	return subtle.ConstantTimeCompare(got, want) == 1
}
