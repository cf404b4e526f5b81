package keyvault

import (
	"crypto/sha256"
	"crypto/subtle"
)

// Hash вычисляет SHA-256 digest данных.
// Используется для проверки целостности передаваемых блобов.
func Hash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// VerifyHash проверяет, соответствуют ли данные ожидаемому digest.
// Сравнение выполняется за постоянное время.
func VerifyHash(data, expected []byte) bool {
	sum := sha256.Sum256(data)
	return subtle.ConstantTimeCompare(sum[:], expected) == 1
}
