package keyvault

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Параметры Argon2id для деривации ключа комнаты
const (
	// Argon2Time - количество итераций (time cost)
	Argon2Time = 3
	// Argon2Memory - объем памяти в KB (64MB = 64*1024 KB)
	Argon2Memory = 64 * 1024
	// Argon2Threads - количество параллельных потоков
	Argon2Threads = 4
	// KeyLen - длина симметричного ключа в байтах (AES-256)
	KeyLen = 32
	// SaltSize - размер соли в байтах
	SaltSize = 16
)

// DerivedKey результат деривации: ключ и соль, из которой он получен.
// Соль не секретна и раздается присоединяющимся узлам; секретен только ключ.
type DerivedKey struct {
	Key  []byte
	Salt []byte
}

// DeriveKey получает симметричный ключ комнаты из пароля через Argon2id.
// Если salt равен nil, генерируется свежая случайная соль, смешанная с
// детерминированным хешем идентификатора комнаты: две независимо
// сгенерированные соли для одной комнаты различимы, но явно переданная
// соль воспроизводит тот же ключ на любом узле.
func DeriveKey(roomID, password string, salt []byte) (*DerivedKey, error) {
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}

	if salt == nil {
		var err error
		salt, err = generateRoomSalt(roomID)
		if err != nil {
			return nil, err
		}
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}

	key := argon2.IDKey([]byte(password), salt, Argon2Time, Argon2Memory, Argon2Threads, KeyLen)

	return &DerivedKey{Key: key, Salt: salt}, nil
}

// generateRoomSalt генерирует случайную соль, свернутую XOR с
// SHA-256 идентификатора комнаты.
func generateRoomSalt(roomID string) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	roomHash := sha256.Sum256([]byte(roomID))
	for i := range salt {
		salt[i] ^= roomHash[i%len(roomHash)]
	}

	return salt, nil
}
