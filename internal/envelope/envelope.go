// Package envelope implements the authenticated encryption envelope used to
// carry opaque payloads between pipeline stages.
//
// The wire format is the base64 (standard encoding) of
//
//	nonce(12 bytes) || tag(16 bytes) || ciphertext(variable)
//
// produced by AES-256-GCM. An envelope is meaningless without the exact key
// that sealed it; any modification of the tag or the ciphertext makes Open
// fail. Open reports a single opaque error for every verification failure so
// callers cannot distinguish a wrong key from tampering.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Sizes of the envelope components, in bytes.
const (
	// KeySize is the size of an envelope key.
	KeySize = 32

	// NonceSize is the size of the GCM nonce.
	NonceSize = 12

	// TagSize is the size of the GCM authentication tag.
	TagSize = 16

	// MinEnvelopeSize is the minimum decoded envelope length: nonce + tag.
	// Consumers reject anything shorter before attempting decryption.
	MinEnvelopeSize = NonceSize + TagSize
)

// ErrDecryptFailed is returned by Open for every verification failure:
// wrong key, tampered tag or ciphertext, or corruption. The error is
// deliberately opaque; distinguishing the cause would create a
// decryption oracle.
var ErrDecryptFailed = errors.New("envelope: decryption failed")

// ErrInvalidKeySize is returned when the key is not exactly KeySize bytes.
var ErrInvalidKeySize = errors.New("envelope: key must be 32 bytes")

// ErrTooShort is returned by Open when the decoded envelope is shorter
// than MinEnvelopeSize. It matches ErrDecryptFailed so callers treating
// all failures uniformly keep working.
var ErrTooShort = fmt.Errorf("envelope too short: %w", ErrDecryptFailed)

// Seal encrypts plaintext under key with AES-256-GCM and returns the
// text-safe envelope. A fresh random nonce is drawn from crypto/rand for
// every call; callers never supply one. The only failure modes are a bad
// key length and entropy-source failure.
func Seal(plaintext, key []byte) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("envelope: generating nonce: %w", err)
	}

	// Seal appends ciphertext||tag; the wire format wants nonce||tag||ciphertext.
	sealed := aead.Seal(nil, nonce[:], plaintext, nil)
	ctLen := len(sealed) - TagSize
	ciphertext := sealed[:ctLen]
	tag := sealed[ctLen:]

	raw := make([]byte, 0, NonceSize+TagSize+ctLen)
	raw = append(raw, nonce[:]...)
	raw = append(raw, tag...)
	raw = append(raw, ciphertext...)

	recordSeal(len(plaintext))
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Open decodes and decrypts an envelope produced by Seal. It rejects
// envelopes shorter than MinEnvelopeSize before touching the cipher and
// returns ErrDecryptFailed for any verification failure without saying why.
func Open(envelope string, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		recordOpen(false)
		return nil, ErrDecryptFailed
	}
	if len(raw) < MinEnvelopeSize {
		recordOpen(false)
		return nil, ErrTooShort
	}

	nonce := raw[:NonceSize]
	tag := raw[NonceSize:MinEnvelopeSize]
	ciphertext := raw[MinEnvelopeSize:]

	// Reassemble ciphertext||tag, the layout Open expects.
	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		recordOpen(false)
		return nil, ErrDecryptFailed
	}

	recordOpen(true)
	return plaintext, nil
}

// newAEAD builds the AES-256-GCM AEAD for the given key.
func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
