package validation

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidIdentifier возвращается для некорректного идентификатора
// документа или комнаты. Проверка выполняется до любых аллокаций.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// IdentifierPattern определяет допустимый формат идентификатора
// документа или комнаты: латинские буквы, цифры и символы _-./
var IdentifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_./-]+$`)

const (
	// MaxIdentifierLen максимальная длина идентификатора
	MaxIdentifierLen = 64
)

// ValidateDocumentID проверяет, что идентификатор документа соответствует требованиям.
// Формат: латинские буквы (a-z, A-Z), цифры (0-9) и символы _ - . /
// Длина: 1-64 символа
func ValidateDocumentID(id string) error {
	return validateIdentifier("document id", id)
}

// ValidateRoomID проверяет идентификатор комнаты.
// Формат совпадает с форматом идентификатора документа.
func ValidateRoomID(id string) error {
	return validateIdentifier("room id", id)
}

func validateIdentifier(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidIdentifier, kind)
	}

	if len(id) > MaxIdentifierLen {
		return fmt.Errorf("%w: %s must not exceed %d characters", ErrInvalidIdentifier, kind, MaxIdentifierLen)
	}

	if !IdentifierPattern.MatchString(id) {
		return fmt.Errorf("%w: %s can only contain letters, numbers and _-./", ErrInvalidIdentifier, kind)
	}

	return nil
}
