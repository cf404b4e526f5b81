package cli

import (
	"context"
	"fmt"

	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/mesh"
)

// RunJoin подключается к комнате по ссылке приглашения и открывает
// разделяемый документ в интерактивном редакторе. Документ комнаты
// хранится под идентификатором самой комнаты.
func (c *Cli) RunJoin(ctx context.Context, rawLink string) error {
	link, err := mesh.ParseRoomLink(rawLink)
	if err != nil {
		return err
	}

	handle, err := c.docs.Open(ctx, link.RoomID)
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer c.docs.Close(ctx, link.RoomID)

	conn, err := c.mesh.JoinByLink(ctx, rawLink, handle)
	if err != nil {
		// Комната недоступна - документ все равно редактируется локально
		fmt.Fprintf(c.out, "Room unavailable (%v), editing offline\n", err)
		return c.runEditor(ctx, handle, nil)
	}
	defer c.mesh.Disconnect(link.RoomID)

	fmt.Fprintf(c.out, "Joined room %s as %s\n", link.RoomID, c.mesh.PeerID())
	return c.runEditor(ctx, handle, conn)
}
