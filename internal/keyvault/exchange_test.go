package keyvault

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionKeyExchange_RoundTrip(t *testing.T) {
	recipient, err := GenerateKeyPair()
	require.NoError(t, err)

	sessionKey := make([]byte, KeyLen)
	_, err = rand.Read(sessionKey)
	require.NoError(t, err)

	// Отправитель знает только публичный ключ получателя
	encrypted, err := EncryptSessionKey(sessionKey, recipient.PublicKey())
	require.NoError(t, err)
	assert.NotContains(t, string(encrypted), string(sessionKey))

	decrypted, err := recipient.DecryptSessionKey(encrypted)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, decrypted)
}

func TestSessionKeyExchange_WrongRecipient(t *testing.T) {
	recipient, err := GenerateKeyPair()
	require.NoError(t, err)
	eavesdropper, err := GenerateKeyPair()
	require.NoError(t, err)

	sessionKey := make([]byte, KeyLen)
	_, err = rand.Read(sessionKey)
	require.NoError(t, err)

	encrypted, err := EncryptSessionKey(sessionKey, recipient.PublicKey())
	require.NoError(t, err)

	_, err = eavesdropper.DecryptSessionKey(encrypted)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestSessionKeyExchange_Tampered(t *testing.T) {
	recipient, err := GenerateKeyPair()
	require.NoError(t, err)

	encrypted, err := EncryptSessionKey(make([]byte, KeyLen), recipient.PublicKey())
	require.NoError(t, err)

	encrypted[len(encrypted)-1] ^= 0x01
	_, err = recipient.DecryptSessionKey(encrypted)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	// Усеченный вход
	_, err = recipient.DecryptSessionKey(encrypted[:10])
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestImportPublicKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	pub, err := ImportPublicKey(kp.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), pub.Bytes())

	_, err = ImportPublicKey([]byte("too short"))
	assert.Error(t, err)
}
