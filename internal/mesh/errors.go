package mesh

import "errors"

var (
	// ErrNotConnected операция требует активного подключения к комнате
	ErrNotConnected = errors.New("not connected to room")
	// ErrAlreadyConnected комната уже подключена
	ErrAlreadyConnected = errors.New("already connected to room")
	// ErrInvalidLink ссылка приглашения не распознана
	ErrInvalidLink = errors.New("invalid room link")
	// ErrMeshClosed сервис остановлен
	ErrMeshClosed = errors.New("mesh service is closed")
)
