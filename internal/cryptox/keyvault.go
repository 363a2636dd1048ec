package cryptox

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/vaultsync/internal/common"
)

// protectedKeyVersion tags the wrapping scheme: argon2id KEK + AES-256-GCM.
const protectedKeyVersion = "v1"

// ProtectedEncryptionKey is a vault key wrapped under a password-derived
// key. Its String form is what gets persisted on the server.
type ProtectedEncryptionKey struct {
	Version    string
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte
}

func (p ProtectedEncryptionKey) String() string {
	return strings.Join([]string{
		p.Version,
		b64.EncodeToString(p.Salt),
		b64.EncodeToString(p.Nonce),
		b64.EncodeToString(p.Ciphertext),
	}, ".")
}

// ParseProtectedEncryptionKey decodes the persisted form. A malformed blob
// is reported as ErrInvalidPasswordOrKey since it cannot be unwrapped either.
func ParseProtectedEncryptionKey(s string) (ProtectedEncryptionKey, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 || parts[0] != protectedKeyVersion {
		return ProtectedEncryptionKey{}, common.ErrInvalidPasswordOrKey.WithMessage("unsupported protected key format")
	}
	var (
		p   = ProtectedEncryptionKey{Version: parts[0]}
		err error
	)
	if p.Salt, err = b64.DecodeString(parts[1]); err != nil {
		return ProtectedEncryptionKey{}, common.ErrInvalidPasswordOrKey.Wrap(err)
	}
	if p.Nonce, err = b64.DecodeString(parts[2]); err != nil {
		return ProtectedEncryptionKey{}, common.ErrInvalidPasswordOrKey.Wrap(err)
	}
	if p.Ciphertext, err = b64.DecodeString(parts[3]); err != nil {
		return ProtectedEncryptionKey{}, common.ErrInvalidPasswordOrKey.Wrap(err)
	}
	return p, nil
}

// CreateProtectedEncryptionKey generates a fresh vault key and wraps it
// under password. The raw key is returned for immediate use.
func CreateProtectedEncryptionKey(password string) ([]byte, string, error) {
	key := common.GenerateRandByteArray(KeySize)
	pek, err := wrapKey(key, password)
	if err != nil {
		common.WipeByteArray(key)
		return nil, "", err
	}
	return key, pek, nil
}

// DecryptProtectedEncryptionKey unwraps a stored key. A wrong password and
// a tampered blob both fail with ErrInvalidPasswordOrKey.
func DecryptProtectedEncryptionKey(protected string, password string) ([]byte, error) {
	p, err := ParseProtectedEncryptionKey(protected)
	if err != nil {
		return nil, err
	}

	kek := DeriveKey([]byte(password), p.Salt)
	defer common.WipeByteArray(kek)

	key, err := open(kek, p.Nonce, p.Ciphertext)
	if err != nil {
		return nil, err
	}
	if len(key) != KeySize {
		return nil, common.ErrInvalidPasswordOrKey.WithMessage("unexpected key length %d", len(key))
	}
	return key, nil
}

// UpdateProtectedEncryptionKey re-wraps the same vault key under
// newPassword with a fresh salt. The returned key is byte-identical to the
// one recoverable with oldPassword, so vault content stays readable.
func UpdateProtectedEncryptionKey(protected, oldPassword, newPassword string) ([]byte, string, error) {
	key, err := DecryptProtectedEncryptionKey(protected, oldPassword)
	if err != nil {
		return nil, "", err
	}
	pek, err := wrapKey(key, newPassword)
	if err != nil {
		common.WipeByteArray(key)
		return nil, "", err
	}
	return key, pek, nil
}

func wrapKey(key []byte, password string) (string, error) {
	salt := common.GenerateRandByteArray(SaltSize)
	kek := DeriveKey([]byte(password), salt)
	defer common.WipeByteArray(kek)

	nonce, ciphertext, err := seal(kek, key)
	if err != nil {
		return "", fmt.Errorf("wrap key: %w", err)
	}
	return ProtectedEncryptionKey{
		Version:    protectedKeyVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}.String(), nil
}
