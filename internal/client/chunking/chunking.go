// Package chunking splits files into fixed-size content-addressed chunks
// and puts them back together.
package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"

	boxochunker "github.com/ipfs/boxo/chunker"

	"github.com/dmitrijs2005/vaultsync/internal/client/models"
)

// Size is the plaintext size of every chunk but the last.
const Size = 256 * 1024

var ErrHashMismatch = errors.New("chunk content does not match its hash")

// Chunk is one piece of a file. Hash addresses the sealed bytes, which are
// what gets stored and uploaded; Size counts plaintext bytes.
type Chunk struct {
	models.FileChunk
	Sealed []byte
}

// Hash is the content address of a sealed chunk: lowercase hex sha256.
// Sealing is deterministic per vault key, so equal plaintext still dedups
// within a vault while the server never learns a plaintext digest.
func Hash(sealed []byte) string {
	sum := sha256.Sum256(sealed)
	return hex.EncodeToString(sum[:])
}

// Split reads r to the end, sealing each chunk with seal and handing it to
// fn in position order. It returns the number of plaintext bytes read.
func Split(r io.Reader, seal func([]byte) ([]byte, error), fn func(Chunk) error) (int64, error) {
	splitter := boxochunker.NewSizeSplitter(r, Size)

	var total int64
	for pos := 0; ; pos++ {
		plain, err := splitter.NextBytes()
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("read chunk %d: %w", pos, err)
		}

		sealed, err := seal(plain)
		if err != nil {
			return total, fmt.Errorf("seal chunk %d: %w", pos, err)
		}

		c := Chunk{
			FileChunk: models.FileChunk{Hash: Hash(sealed), Position: pos, Size: int64(len(plain))},
			Sealed:    sealed,
		}
		if err := fn(c); err != nil {
			return total, err
		}
		total += int64(len(plain))
	}
}

// Verify fails with ErrHashMismatch unless sealed hashes to hash.
func Verify(hash string, sealed []byte) error {
	if Hash(sealed) != hash {
		return ErrHashMismatch
	}
	return nil
}

// Reassemble writes the plaintext of chunks to w in position order. fetch
// returns the sealed bytes for a hash, which are checked against the hash
// before open turns them back into plaintext. Positions must run from 0
// without gaps.
func Reassemble(w io.Writer, chunks []models.FileChunk, fetch func(hash string) ([]byte, error), open func(sealed []byte) ([]byte, error)) error {
	ordered := make([]models.FileChunk, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	for i, c := range ordered {
		if c.Position != i {
			return fmt.Errorf("chunk list has a gap at position %d", i)
		}

		sealed, err := fetch(c.Hash)
		if err != nil {
			return fmt.Errorf("fetch chunk %d: %w", c.Position, err)
		}
		if err := Verify(c.Hash, sealed); err != nil {
			return fmt.Errorf("chunk %d: %w", c.Position, err)
		}
		plain, err := open(sealed)
		if err != nil {
			return fmt.Errorf("open chunk %d: %w", c.Position, err)
		}
		if _, err := w.Write(plain); err != nil {
			return err
		}
	}
	return nil
}
