package keyvault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey(t *testing.T) {
	derived, err := DeriveKey("room-1", "correct horse battery staple", nil)
	require.NoError(t, err)

	assert.Len(t, derived.Key, KeyLen)
	assert.Len(t, derived.Salt, SaltSize)
}

func TestDeriveKey_Reproducible(t *testing.T) {
	first, err := DeriveKey("room-1", "password-one", nil)
	require.NoError(t, err)

	// Явно переданная соль воспроизводит тот же ключ
	second, err := DeriveKey("room-1", "password-one", first.Salt)
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)

	// Другой пароль с той же солью - другой ключ
	third, err := DeriveKey("room-1", "password-two", first.Salt)
	require.NoError(t, err)
	assert.NotEqual(t, first.Key, third.Key)
}

func TestDeriveKey_FreshSaltsDiffer(t *testing.T) {
	// Две независимые деривации для одной комнаты различимы
	first, err := DeriveKey("room-1", "password", nil)
	require.NoError(t, err)

	second, err := DeriveKey("room-1", "password", nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.Salt, second.Salt)
	assert.NotEqual(t, first.Key, second.Key)
}

func TestDeriveKey_Validation(t *testing.T) {
	_, err := DeriveKey("room-1", "", nil)
	assert.Error(t, err, "empty password rejected")

	_, err = DeriveKey("room-1", "password", []byte("short"))
	assert.Error(t, err, "wrong salt size rejected")
}
