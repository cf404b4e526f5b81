package cli

import (
	"context"
	"fmt"
)

// RunEdit открывает локальный документ без подключения к комнате
func (c *Cli) RunEdit(ctx context.Context, docID string) error {
	handle, err := c.docs.Open(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer c.docs.Close(ctx, docID)

	fmt.Fprintf(c.out, "Editing %s offline\n", docID)
	return c.runEditor(ctx, handle, nil)
}
