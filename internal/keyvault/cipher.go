package keyvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

const (
	// NonceSize - размер nonce для AES-GCM (12 bytes стандартный размер)
	NonceSize = 12
)

// SealedBox результат аутентифицированного шифрования:
// одноразовый nonce и ciphertext с authentication tag.
type SealedBox struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Encrypt шифрует данные с использованием AES-256-GCM
// со свежим случайным nonce на каждое сообщение.
func Encrypt(plaintext, key []byte) (*SealedBox, error) {
	if len(key) != KeyLen {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeyLen, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	// Генерируем случайный nonce
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// GCM автоматически добавляет authentication tag в конец
	ciphertext := aesGCM.Seal(nil, nonce, plaintext, nil)

	return &SealedBox{Nonce: nonce, Ciphertext: ciphertext}, nil
}

// Decrypt дешифрует данные, зашифрованные с помощью Encrypt.
// Любая неудача (подмена, неверный ключ, усеченный вход) сворачивается
// в ErrDecryptionFailed без деталей.
func Decrypt(box *SealedBox, key []byte) ([]byte, error) {
	if box == nil || len(box.Nonce) != NonceSize || len(key) != KeyLen {
		return nil, ErrDecryptionFailed
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := aesGCM.Open(nil, box.Nonce, box.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	// Пустой plaintext нормализуется в пустой (не nil) срез: успешная
	// расшифровка никогда не возвращает nil
	if plaintext == nil {
		plaintext = []byte{}
	}

	return plaintext, nil
}
