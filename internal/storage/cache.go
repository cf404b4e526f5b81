// Package storage определяет интерфейс долговременного кеша состояния
// документов. Ядро вызывает Persist/Load с полным сериализованным
// CRDT-состоянием и не интерпретирует носитель хранения.
package storage

import "context"

//go:generate moq -out cache_mock.go . DocumentCache

// DocumentCache key-value персистентность, ключом служит идентификатор
// документа. Используется для offline-продолжения работы: при открытии
// документа закешированное состояние подмердживается к пустой реплике.
type DocumentCache interface {
	// Persist сохраняет полное состояние документа
	Persist(ctx context.Context, documentID string, state []byte) error

	// Load возвращает сохраненное состояние документа.
	// Возвращает ErrStateNotFound, если состояния нет.
	Load(ctx context.Context, documentID string) ([]byte, error)

	// Delete удаляет сохраненное состояние документа
	Delete(ctx context.Context, documentID string) error

	// Close закрывает хранилище
	Close() error
}
