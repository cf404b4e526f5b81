package mesh

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/validation"
)

// LinkScheme схема ссылок приглашения в комнату
const LinkScheme = "kalynt"

// RoomLink разобранная ссылка приглашения.
// Пароль и имя передаются во фрагменте и не попадают в HTTP-запросы
// и серверные логи. LegacyQuerySecrets отмечает ссылки старого
// формата, где секреты лежали в query-строке.
type RoomLink struct {
	RoomID             string
	Password           string
	DisplayName        string
	LegacyQuerySecrets bool
}

// GenerateRoomLink собирает ссылку приглашения вида
// kalynt://join/<roomID>#p=<password>&n=<name>
func GenerateRoomLink(roomID, password, displayName string) (string, error) {
	if err := validation.ValidateRoomID(roomID); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(LinkScheme)
	b.WriteString("://join/")
	b.WriteString(url.PathEscape(roomID))

	fragment := url.Values{}
	if password != "" {
		fragment.Set("p", password)
	}
	if displayName != "" {
		fragment.Set("n", displayName)
	}
	if encoded := fragment.Encode(); encoded != "" {
		b.WriteString("#")
		b.WriteString(encoded)
	}
	return b.String(), nil
}

// ParseRoomLink разбирает ссылку приглашения. Секреты читаются из
// фрагмента; для совместимости принимается и старый формат с query,
// такие ссылки помечаются LegacyQuerySecrets.
func ParseRoomLink(raw string) (*RoomLink, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if u.Scheme != LinkScheme {
		return nil, fmt.Errorf("%w: unexpected scheme %q", ErrInvalidLink, u.Scheme)
	}

	// kalynt://join/<roomID> разбирается как host=join, path=/<roomID>
	if u.Host != "join" {
		return nil, fmt.Errorf("%w: unexpected action %q", ErrInvalidLink, u.Host)
	}
	roomID := strings.TrimPrefix(u.Path, "/")
	if err := validation.ValidateRoomID(roomID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}

	link := &RoomLink{RoomID: roomID}

	if u.Fragment != "" {
		fragment, err := url.ParseQuery(u.EscapedFragment())
		if err != nil {
			return nil, fmt.Errorf("%w: malformed fragment", ErrInvalidLink)
		}
		link.Password = fragment.Get("p")
		link.DisplayName = fragment.Get("n")
	}

	// Старый формат: секреты в query-строке
	if link.Password == "" && link.DisplayName == "" {
		query := u.Query()
		if query.Has("p") || query.Has("n") {
			link.Password = query.Get("p")
			link.DisplayName = query.Get("n")
			link.LegacyQuerySecrets = true
		}
	}

	return link, nil
}
