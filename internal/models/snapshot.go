package models

import "time"

// Snapshot представляет снимок состояния документа в определенный момент времени.
// State содержит полное сериализованное CRDT-состояние документа,
// поэтому снимок можно применить к любой реплике через merge.
type Snapshot struct {
	CreatedAt time.Time `json:"created_at"` // CreatedAt время создания снимка

	ID         string `json:"id"`          // ID уникальный идентификатор снимка (UUID)
	DocumentID string `json:"document_id"` // DocumentID идентификатор документа
	AuthorID   string `json:"author_id"`   // AuthorID идентификатор автора снимка
	Label      string `json:"label"`       // Label необязательная человекочитаемая метка
	State      []byte `json:"state"`       // State полное сериализованное состояние документа
}

// Clone создает глубокую копию снимка
func (s *Snapshot) Clone() *Snapshot {
	state := make([]byte, len(s.State))
	copy(state, s.State)

	return &Snapshot{
		ID:         s.ID,
		DocumentID: s.DocumentID,
		AuthorID:   s.AuthorID,
		Label:      s.Label,
		State:      state,
		CreatedAt:  s.CreatedAt,
	}
}
