package chunking

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vaultsync/internal/client/models"
)

func identity(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }

func split(t *testing.T, data []byte) ([]Chunk, int64) {
	t.Helper()
	var chunks []Chunk
	n, err := Split(bytes.NewReader(data), identity, func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	return chunks, n
}

func TestHash_KnownValue(t *testing.T) {
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", Hash([]byte("hello")))
}

// xorSeal stands in for a deterministic cipher so sealed and plain differ.
func xorSeal(b []byte) ([]byte, error) {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ 0x5a
	}
	return out, nil
}

func TestSplit_HashCoversSealedBytes(t *testing.T) {
	var got []Chunk
	_, err := Split(bytes.NewReader([]byte("hello")), xorSeal, func(c Chunk) error {
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Hash(got[0].Sealed), got[0].Hash)
	assert.NotEqual(t, Hash([]byte("hello")), got[0].Hash)
	assert.Equal(t, int64(5), got[0].Size)

	var out bytes.Buffer
	require.NoError(t, Reassemble(&out, []models.FileChunk{got[0].FileChunk},
		func(string) ([]byte, error) { return got[0].Sealed, nil }, xorSeal))
	assert.Equal(t, "hello", out.String())
}

func TestSplit_SizesAndPositions(t *testing.T) {
	data := make([]byte, 2*Size+100)
	_, err := rand.Read(data)
	require.NoError(t, err)

	chunks, n := split(t, data)
	assert.Equal(t, int64(len(data)), n)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Position)
		assert.Equal(t, Hash(c.Sealed), c.Hash)
	}
	assert.Equal(t, int64(Size), chunks[0].Size)
	assert.Equal(t, int64(100), chunks[2].Size)
}

func TestSplit_EmptyInput(t *testing.T) {
	chunks, n := split(t, nil)
	assert.Empty(t, chunks)
	assert.Zero(t, n)
}

func TestSplit_SameContentSameHash(t *testing.T) {
	a, _ := split(t, bytes.Repeat([]byte{7}, Size*2))
	require.Len(t, a, 2)
	assert.Equal(t, a[0].Hash, a[1].Hash)
}

func TestSplit_Errors(t *testing.T) {
	boom := errors.New("boom")

	_, err := Split(bytes.NewReader([]byte("x")), func([]byte) ([]byte, error) { return nil, boom },
		func(Chunk) error { return nil })
	require.ErrorIs(t, err, boom)

	_, err = Split(bytes.NewReader([]byte("x")), identity, func(Chunk) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestReassemble_RoundTripOutOfOrder(t *testing.T) {
	data := make([]byte, Size+10)
	_, err := rand.Read(data)
	require.NoError(t, err)

	chunks, _ := split(t, data)
	store := map[string][]byte{}
	list := make([]models.FileChunk, 0, len(chunks))
	for i := len(chunks) - 1; i >= 0; i-- {
		store[chunks[i].Hash] = chunks[i].Sealed
		list = append(list, chunks[i].FileChunk)
	}

	var out bytes.Buffer
	require.NoError(t, Reassemble(&out, list, func(h string) ([]byte, error) { return store[h], nil }, identity))
	assert.Equal(t, data, out.Bytes())
	assert.Equal(t, len(chunks)-1, list[0].Position, "input is not reordered in place")
}

func TestReassemble_DetectsTampering(t *testing.T) {
	chunks, _ := split(t, []byte("payload"))
	err := Reassemble(&bytes.Buffer{}, []models.FileChunk{chunks[0].FileChunk},
		func(string) ([]byte, error) { return []byte("other"), nil },
		func([]byte) ([]byte, error) {
			t.Fatal("tampered bytes must not be opened")
			return nil, nil
		})
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestReassemble_RejectsGaps(t *testing.T) {
	list := []models.FileChunk{{Hash: Hash([]byte("a")), Position: 0}, {Hash: Hash([]byte("b")), Position: 2}}
	err := Reassemble(&bytes.Buffer{}, list, func(string) ([]byte, error) { return []byte("a"), nil }, identity)
	require.ErrorContains(t, err, "gap at position 1")
}
