package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"strings"

	"github.com/dmitrijs2005/vaultsync/internal/common"
)

const (
	envelopeVersion = "v1"
	nonceSize       = 12
)

// Validator checks a decrypted value. Decrypt fails closed when it returns
// an error.
type Validator interface {
	Validate() error
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func seal(key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return nonce, aead.Seal(nil, nonce, plaintext, nil), nil
}

func open(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, common.ErrInvalidPasswordOrKey.Wrap(err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, common.ErrInvalidPasswordOrKey.WithMessage("bad nonce length")
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, common.ErrInvalidPasswordOrKey.Wrap(err)
	}
	return plaintext, nil
}

// Encrypt serializes value to JSON and seals it with AES-256-GCM under key
// using a fresh nonce. The result is "v1.<nonce>.<ciphertext>".
func Encrypt(key []byte, value any) (string, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(plaintext)

	nonce, ciphertext, err := seal(key, plaintext)
	if err != nil {
		return "", err
	}
	return envelopeVersion + "." + b64.EncodeToString(nonce) + "." + b64.EncodeToString(ciphertext), nil
}

// Decrypt opens an envelope produced by Encrypt and unmarshals it into v.
// Tampering, a wrong key, malformed JSON and a failed Validate all return
// ErrInvalidPasswordOrKey.
func Decrypt(key []byte, envelope string, v any) error {
	parts := strings.Split(envelope, ".")
	if len(parts) != 3 || parts[0] != envelopeVersion {
		return common.ErrInvalidPasswordOrKey.WithMessage("unsupported envelope format")
	}
	nonce, err := b64.DecodeString(parts[1])
	if err != nil {
		return common.ErrInvalidPasswordOrKey.Wrap(err)
	}
	ciphertext, err := b64.DecodeString(parts[2])
	if err != nil {
		return common.ErrInvalidPasswordOrKey.Wrap(err)
	}

	plaintext, err := open(key, nonce, ciphertext)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)

	if err := json.Unmarshal(plaintext, v); err != nil {
		return common.ErrInvalidPasswordOrKey.Wrap(err)
	}
	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			return common.ErrInvalidPasswordOrKey.Wrap(err)
		}
	}
	return nil
}

// SealChunk encrypts a file chunk for upload. The nonce is derived from an
// HMAC of the plaintext under key, so equal chunks in one vault produce
// equal ciphertext and therefore the same content hash. The nonce is
// prepended to the ciphertext.
func SealChunk(key, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(plaintext)
	nonce := make([]byte, aead.NonceSize())
	copy(nonce, mac.Sum(nil))

	out := append([]byte{}, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// OpenChunk reverses SealChunk.
func OpenChunk(key, sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, common.ErrInvalidPasswordOrKey.WithMessage("chunk too short")
	}
	return open(key, sealed[:nonceSize], sealed[nonceSize:])
}
