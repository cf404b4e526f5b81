package keyvault

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// hkdfInfo context string для деривации ключа обертки из общего секрета
var hkdfInfo = []byte("kalynt session key wrap v1")

const publicKeySize = 32 // X25519

// KeyPair асимметричная пара X25519 для доставки сессионного ключа
// узлу без передачи пароля. Приватный ключ не покидает структуру.
type KeyPair struct {
	private *ecdh.PrivateKey
}

// GenerateKeyPair создает новую пару ключей X25519.
func GenerateKeyPair() (*KeyPair, error) {
	private, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return &KeyPair{private: private}, nil
}

// PublicKey возвращает сырые байты публичного ключа для передачи узлу.
func (kp *KeyPair) PublicKey() []byte {
	return kp.private.PublicKey().Bytes()
}

// ImportPublicKey проверяет и импортирует сырые байты публичного ключа.
func ImportPublicKey(raw []byte) (*ecdh.PublicKey, error) {
	if len(raw) != publicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", publicKeySize, len(raw))
	}

	pub, err := ecdh.X25519().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to import public key: %w", err)
	}
	return pub, nil
}

// EncryptSessionKey шифрует сессионный ключ для узла с заданным публичным
// ключом: эфемерный ECDH, HKDF-SHA256 для ключа обертки, AES-GCM.
// Формат результата: ephemeral_pub (32) + nonce (12) + ciphertext.
func EncryptSessionKey(sessionKey, peerPublicKey []byte) ([]byte, error) {
	peerPub, err := ImportPublicKey(peerPublicKey)
	if err != nil {
		return nil, err
	}

	// Эфемерная пара на каждое сообщение
	ephemeral, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	shared, err := ephemeral.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}

	wrapKey, err := expandSharedSecret(shared)
	if err != nil {
		return nil, err
	}

	box, err := Encrypt(sessionKey, wrapKey)
	if err != nil {
		return nil, err
	}

	result := make([]byte, 0, publicKeySize+NonceSize+len(box.Ciphertext))
	result = append(result, ephemeral.PublicKey().Bytes()...)
	result = append(result, box.Nonce...)
	result = append(result, box.Ciphertext...)

	return result, nil
}

// DecryptSessionKey расшифровывает сессионный ключ своей парой ключей.
// Любая неудача сворачивается в ErrDecryptionFailed.
func (kp *KeyPair) DecryptSessionKey(encrypted []byte) ([]byte, error) {
	if len(encrypted) < publicKeySize+NonceSize {
		return nil, ErrDecryptionFailed
	}

	ephemeralPub, err := ImportPublicKey(encrypted[:publicKeySize])
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	shared, err := kp.private.ECDH(ephemeralPub)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	wrapKey, err := expandSharedSecret(shared)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	box := &SealedBox{
		Nonce:      encrypted[publicKeySize : publicKeySize+NonceSize],
		Ciphertext: encrypted[publicKeySize+NonceSize:],
	}

	return Decrypt(box, wrapKey)
}

// expandSharedSecret разворачивает общий секрет ECDH в ключ обертки
func expandSharedSecret(shared []byte) ([]byte, error) {
	key := make([]byte, KeyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("failed to expand shared secret: %w", err)
	}
	return key, nil
}
