package leyline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Default size for the buffer used when hashing files
const defaultBufferSize = 32 * 1024 // 32KB

// bufferPool is a pool of byte slices used for file I/O during hashing
var bufferPool = sync.Pool{
	New: func() interface{} {
		buffer := make([]byte, defaultBufferSize)
		return &buffer
	},
}

// HashBytes returns the hex-encoded SHA-256 content hash of data.
// Content addressing is always SHA-256: identical content maps to the
// same hash and the same on-disk location.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// hashReader hashes the content from a reader with SHA-256 and returns
// the hex-encoded digest.
func hashReader(content io.Reader) (string, error) {
	bufPtr := bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer bufferPool.Put(bufPtr)

	h := sha256.New()
	if _, err := io.CopyBuffer(h, content, buffer); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// keyFingerprint returns a fast non-cryptographic fingerprint for a
// logical cache key. Keys are arbitrary strings (usually relative paths),
// not content, so xxHash is sufficient and much cheaper than SHA-256.
func keyFingerprint(key string) uint64 {
	return xxhash.Sum64String(key)
}
