package cli

import (
	"fmt"

	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/validation"
)

// RunShare создает ссылку приглашения в комнату. Ключ комнаты
// деривируется и кешируется, чтобы автор сразу мог отвечать
// присоединяющимся на запросы ключа.
func (c *Cli) RunShare(roomID string) error {
	if err := validation.ValidateRoomID(roomID); err != nil {
		return err
	}

	password, err := c.roomPassword()
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("room password cannot be empty")
	}

	if _, err := c.vault.SetRoomKey(roomID, password, nil); err != nil {
		return fmt.Errorf("failed to derive room key: %w", err)
	}

	link, err := c.mesh.ShareLink(roomID, password)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out, "Share this link with collaborators:")
	fmt.Fprintln(c.out, link)
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "The password travels in the link fragment and never reaches the server.")
	return nil
}
