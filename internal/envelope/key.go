package envelope

import (
	"crypto/rand"
	"fmt"
	"io"
)

// NewKey mints a fresh 256-bit envelope key from crypto/rand. Keys are
// ephemeral: generated per logical operation, held in memory for its
// duration, and never persisted or logged. The caller owns the key and
// should call Zero when done with it.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("envelope: generating key: %w", err)
	}
	return key, nil
}

// Zero overwrites the key material in place. Not a security boundary on
// its own, but keeps discarded keys out of heap dumps taken afterwards.
func Zero(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
