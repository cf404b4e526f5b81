package docstore

import "github.com/Hermes-Lekkas/Kalynt-sub002/internal/models"

// EventKind тип события, доставляемого UI-слою
type EventKind int

// Виды событий документа
const (
	// EventUpdate инкрементальный CRDT-delta документа
	EventUpdate EventKind = iota
	// EventCursors изменение положения курсоров участников
	EventCursors
	// EventStats пересчитанная статистика документа
	EventStats
)

// Event событие документа. UI подписывается на канал Events()
// вместо регистрации callbacks: fire-and-forget, возвращаемое
// значение не потребляется.
type Event struct {
	Stats      *models.DocumentStats `json:"stats,omitempty"`
	DocumentID string                `json:"document_id"`
	Update     []byte                `json:"update,omitempty"`
	Cursors    []models.CursorState  `json:"cursors,omitempty"`
	Kind       EventKind             `json:"kind"`
}

// emit кладет событие в ограниченный канал.
// При переполнении вытесняется самое старое событие: UI, который
// не успевает, теряет историю, но не блокирует ядро.
func (s *Service) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		select {
		case <-s.events:
		default:
		}
		select {
		case s.events <- ev:
		default:
		}
	}
}

// Events возвращает канал событий документов. Канал общий для всех
// документов сервиса и не закрывается: после Shutdown события просто
// перестают публиковаться, подписчик завершает чтение по своему
// контексту.
func (s *Service) Events() <-chan Event {
	return s.events
}
