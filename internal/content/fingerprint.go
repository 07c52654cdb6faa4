// Package content computes content fingerprints: the SHA-256 digest of a
// file's bytes, used as the one identity a file has in the catalog, the
// membership set and the remote store.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// ChunkSize is the read size used while hashing. Content is never held in
// memory beyond one chunk, so video-sized files hash in constant memory.
const ChunkSize = 64 * 1024

// Fingerprint streams r through SHA-256 and returns the lowercase hex digest
// together with the number of bytes read.
func Fingerprint(r io.Reader) (string, int64, error) {
	h := sha256.New()
	buf := make([]byte, ChunkSize)
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return "", n, fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Hasher fingerprints a stream as it is read. It is used to verify that the
// bytes handed to a remote store are the bytes that were fingerprinted.
type Hasher struct {
	r    io.Reader
	h    hash.Hash
	size int64
}

// NewHasher wraps r so that everything read through the Hasher is hashed.
func NewHasher(r io.Reader) *Hasher {
	return &Hasher{r: r, h: sha256.New()}
}

func (h *Hasher) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.h.Write(p[:n])
		h.size += int64(n)
	}
	return n, err
}

// Sum returns the hex digest of everything read so far.
func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// Size returns the number of bytes read so far.
func (h *Hasher) Size() int64 {
	return h.size
}
