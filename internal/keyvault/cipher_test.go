package keyvault

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()

	key := make([]byte, KeyLen)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := testKey(t)

	plaintexts := [][]byte{
		[]byte("hello"),
		[]byte(""),
		bytes.Repeat([]byte("x"), 64*1024),
		{0x00, 0xff, 0x10},
	}

	for _, plaintext := range plaintexts {
		box, err := Encrypt(plaintext, key)
		require.NoError(t, err)
		require.Len(t, box.Nonce, NonceSize)

		decrypted, err := Decrypt(box, key)
		require.NoError(t, err)
		require.NotNil(t, decrypted)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncrypt_FreshNoncePerMessage(t *testing.T) {
	key := testKey(t)

	first, err := Encrypt([]byte("same plaintext"), key)
	require.NoError(t, err)
	second, err := Encrypt([]byte("same plaintext"), key)
	require.NoError(t, err)

	assert.NotEqual(t, first.Nonce, second.Nonce)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)
}

func TestDecrypt_WrongKey(t *testing.T) {
	box, err := Encrypt([]byte("secret"), testKey(t))
	require.NoError(t, err)

	_, err = Decrypt(box, testKey(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	key := testKey(t)

	box, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	box.Ciphertext[0] ^= 0x01

	_, err = Decrypt(box, key)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_Truncated(t *testing.T) {
	key := testKey(t)

	box, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	box.Ciphertext = box.Ciphertext[:4]
	_, err = Decrypt(box, key)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	// nil box и неверный nonce тоже сворачиваются в ту же ошибку
	_, err = Decrypt(nil, key)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = Decrypt(&SealedBox{Nonce: []byte("short")}, key)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEncrypt_BadKeySize(t *testing.T) {
	_, err := Encrypt([]byte("data"), []byte("short key"))
	assert.Error(t, err)
}

func TestHashVerify(t *testing.T) {
	data := []byte("integrity protected blob")

	digest := Hash(data)
	assert.Len(t, digest, 32)

	assert.True(t, VerifyHash(data, digest))
	assert.False(t, VerifyHash([]byte("other"), digest))

	digest[0] ^= 0x01
	assert.False(t, VerifyHash(data, digest))
}
