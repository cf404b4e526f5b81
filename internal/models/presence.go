package models

import "time"

// PeerRecord представляет участника комнаты, производное от живого roster.
// Записи не персистятся: они пересчитываются при каждом изменении
// множества подключенных узлов.
type PeerRecord struct {
	LastSeenAt time.Time `json:"last_seen_at"` // LastSeenAt время последней активности узла

	ID          string `json:"id"`           // ID идентификатор узла
	DisplayName string `json:"display_name"` // DisplayName отображаемое имя участника
	Color       string `json:"color"`        // Color цвет курсора участника
	IsOnline    bool   `json:"is_online"`    // IsOnline подключен ли узел сейчас
}

// UserInfo описывает отображаемые атрибуты локального пользователя
type UserInfo struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CursorState представляет положение курсора участника.
// Эфемерные данные присутствия: не персистятся, рассылаются
// при каждом локальном перемещении курсора. Поля применяются
// по принципу last-write-wins на каждого участника.
type CursorState struct {
	SelectionFrom *int     `json:"selection_from,omitempty"` // SelectionFrom начало выделения (nil если нет выделения)
	SelectionTo   *int     `json:"selection_to,omitempty"`   // SelectionTo конец выделения
	PeerID        string   `json:"peer_id"`                  // PeerID идентификатор узла-владельца курсора
	User          UserInfo `json:"user"`                     // User атрибуты пользователя
	AnchorOffset  int      `json:"anchor_offset"`            // AnchorOffset якорь курсора (offset в тексте)
	HeadOffset    int      `json:"head_offset"`              // HeadOffset голова курсора
}

// DocumentStats агрегированная статистика документа.
// Пересчитывается по запросу и при каждом update/presence событии
// для push-обновления UI.
type DocumentStats struct {
	ListCounts    map[string]int `json:"list_counts"`    // ListCounts количество элементов в каждом списке
	MapCounts     map[string]int `json:"map_counts"`     // MapCounts количество ключей в каждой map
	TextLength    int            `json:"text_length"`    // TextLength длина текстового буфера
	SnapshotCount int            `json:"snapshot_count"` // SnapshotCount количество снимков
	PeerCount     int            `json:"peer_count"`     // PeerCount количество подключенных участников
}
