package envelope

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustKey(t *testing.T) []byte {
	t.Helper()
	key, err := NewKey()
	require.NoError(t, err)
	return key
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := mustKey(t)

	payloads := [][]byte{
		nil,
		{},
		[]byte("x"),
		[]byte("sensitive user input data"),
		bytes.Repeat([]byte{0xAB}, 1024),
		bytes.Repeat([]byte("payload"), 4096),
	}

	for _, p := range payloads {
		sealed, err := Seal(p, key)
		require.NoError(t, err)

		plain, err := Open(sealed, key)
		require.NoError(t, err)

		if len(p) == 0 {
			assert.Empty(t, plain)
		} else {
			assert.Equal(t, p, plain)
		}
	}
}

func TestSealOpen_RoundTripRandomPayloads(t *testing.T) {
	key := mustKey(t)

	for _, size := range []int{0, 1, 15, 16, 17, 255, 4096} {
		payload := make([]byte, size)
		_, err := rand.Read(payload)
		require.NoError(t, err)

		sealed, err := Seal(payload, key)
		require.NoError(t, err)

		plain, err := Open(sealed, key)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(payload, plain), "size %d", size)
	}
}

func TestSeal_WireFormat(t *testing.T) {
	key := mustKey(t)
	plaintext := []byte("hello")

	sealed, err := Seal(plaintext, key)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)

	// nonce(12) + tag(16) + ciphertext(len(plaintext) for GCM)
	assert.Len(t, raw, NonceSize+TagSize+len(plaintext))
}

func TestSeal_FreshNoncePerCall(t *testing.T) {
	key := mustKey(t)
	plaintext := []byte("same plaintext")

	a, err := Seal(plaintext, key)
	require.NoError(t, err)
	b, err := Seal(plaintext, key)
	require.NoError(t, err)

	// Same plaintext and key must never produce the same envelope.
	assert.NotEqual(t, a, b)

	rawA, err := base64.StdEncoding.DecodeString(a)
	require.NoError(t, err)
	rawB, err := base64.StdEncoding.DecodeString(b)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(rawA[:NonceSize], rawB[:NonceSize]), "nonces must differ")
}

func TestOpen_WrongKey(t *testing.T) {
	k1 := mustKey(t)
	k2 := mustKey(t)

	sealed, err := Seal([]byte("secret"), k1)
	require.NoError(t, err)

	_, err = Open(sealed, k2)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestOpen_TamperAnyBit(t *testing.T) {
	key := mustKey(t)

	for _, payload := range [][]byte{{}, []byte("a"), []byte("a longer payload to cover more ciphertext bytes")} {
		sealed, err := Seal(payload, key)
		require.NoError(t, err)

		raw, err := base64.StdEncoding.DecodeString(sealed)
		require.NoError(t, err)

		// Flip every bit of the tag and ciphertext regions, one at a time.
		for i := NonceSize; i < len(raw); i++ {
			for bit := 0; bit < 8; bit++ {
				tampered := make([]byte, len(raw))
				copy(tampered, raw)
				tampered[i] ^= 1 << bit

				_, err := Open(base64.StdEncoding.EncodeToString(tampered), key)
				require.ErrorIs(t, err, ErrDecryptFailed,
					"payload len %d, byte %d, bit %d", len(payload), i, bit)
			}
		}
	}
}

func TestOpen_TamperedNonce(t *testing.T) {
	key := mustKey(t)

	sealed, err := Seal([]byte("payload"), key)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[0] ^= 0x01

	_, err = Open(base64.StdEncoding.EncodeToString(raw), key)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestOpen_TooShort(t *testing.T) {
	key := mustKey(t)

	for _, size := range []int{0, 1, NonceSize, MinEnvelopeSize - 1} {
		short := base64.StdEncoding.EncodeToString(make([]byte, size))
		_, err := Open(short, key)
		assert.ErrorIs(t, err, ErrTooShort, "size %d", size)
	}
}

func TestOpen_NotBase64(t *testing.T) {
	key := mustKey(t)

	_, err := Open("not!!!base64%%%", key)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestSealOpen_InvalidKeySize(t *testing.T) {
	for _, size := range []int{0, 16, 31, 33, 64} {
		key := make([]byte, size)

		_, err := Seal([]byte("x"), key)
		assert.ErrorIs(t, err, ErrInvalidKeySize, "seal with %d-byte key", size)

		_, err = Open("AAAA", key)
		assert.ErrorIs(t, err, ErrInvalidKeySize, "open with %d-byte key", size)
	}
}

func TestNewKey(t *testing.T) {
	k1 := mustKey(t)
	k2 := mustKey(t)

	assert.Len(t, k1, KeySize)
	assert.Len(t, k2, KeySize)
	assert.False(t, bytes.Equal(k1, k2), "keys must be unique")
}

func TestZero(t *testing.T) {
	key := mustKey(t)
	Zero(key)
	assert.Equal(t, make([]byte, KeySize), key)
}
