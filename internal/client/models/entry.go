// Package models defines the client's local mirror of vaults and versions,
// and the plaintext payloads sealed into them.
package models

import (
	"encoding/json"
	"errors"
	"strings"
)

// EntryType classifies the payload of an item.
type EntryType string

const (
	EntryTypeNote       EntryType = "note"
	EntryTypeLogin      EntryType = "login"
	EntryTypeCreditCard EntryType = "credit_card"
	EntryTypeFile       EntryType = "file"
)

var (
	ErrIncorrectMetadata = errors.New("metadata item must be name=value")
	ErrEmptyTitle        = errors.New("title must not be empty")
)

// Metadata is a simple key/value pair.
type Metadata struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func MetadataFromString(s []string) ([]Metadata, error) {
	data := make([]Metadata, len(s))
	for n, item := range s {
		name, value, ok := strings.Cut(item, "=")
		if !ok || strings.Contains(value, "=") {
			return nil, ErrIncorrectMetadata
		}
		data[n] = Metadata{Name: name, Value: value}
	}
	return data, nil
}

// Envelope is the plaintext of a version's protected data. Details holds
// the type-specific struct.
type Envelope struct {
	Type     EntryType       `json:"type"`
	Title    string          `json:"title"`
	Metadata []Metadata      `json:"metadata"`
	Details  json.RawMessage `json:"details"`
}

func Wrap[T any](t EntryType, title string, md []Metadata, v T) (Envelope, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Title: title, Metadata: md, Details: b}, nil
}

// Validate rejects envelopes that decrypted but do not look like ours.
func (e *Envelope) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyTitle
	}
	if len(e.Details) == 0 {
		return errors.New("details missing")
	}
	return nil
}

// Unwrap decodes Details into the struct matching Type. Unknown types come
// back as a generic map.
func (e Envelope) Unwrap() (any, error) {
	switch e.Type {
	case EntryTypeLogin:
		return decode[Login](e.Details)
	case EntryTypeNote:
		return decode[Note](e.Details)
	case EntryTypeCreditCard:
		return decode[CreditCard](e.Details)
	case EntryTypeFile:
		return decode[FileInfo](e.Details)
	default:
		return decode[map[string]any](e.Details)
	}
}

func decode[T any](raw json.RawMessage) (any, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Login stores credentials.
type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
	URL      string `json:"url"`
}

// Note stores free-form text.
type Note struct {
	Text string `json:"text"`
}

// CreditCard stores payment card details.
type CreditCard struct {
	Number     string `json:"number"`
	Expiration string `json:"expiration"`
	CVV        string `json:"cvv"`
	Holder     string `json:"holder"`
}

// FileInfo describes a file version; the bytes live in its chunks.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}
