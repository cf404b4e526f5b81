package keyvault

import "errors"

// Common key vault errors
var (
	// ErrDecryptionFailed возвращается при любой неудаче расшифровки.
	// Намеренно не различает "неверный ключ" и "поврежденные данные",
	// чтобы не давать атакующему oracle.
	ErrDecryptionFailed = errors.New("unable to decrypt")

	// ErrVaultClosed indicates that the vault is closed
	ErrVaultClosed = errors.New("vault is closed")

	// ErrKeyNotFound indicates that no key is cached for the room
	ErrKeyNotFound = errors.New("room key not found")
)
