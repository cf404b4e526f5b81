package cli

import (
	"context"
	"fmt"
	"os"
)

// RunExport сохраняет полное состояние документа в файл.
// Файл пригоден для переноса документа между машинами без сети.
func (c *Cli) RunExport(ctx context.Context, docID, path string) error {
	if _, err := c.docs.Open(ctx, docID); err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer c.docs.Close(ctx, docID)

	state, err := c.docs.ExportState(docID)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, state, 0o600); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}

	fmt.Fprintf(c.out, "Exported %s to %s (%d bytes)\n", docID, path, len(state))
	return nil
}

// RunImport вливает состояние из файла в документ. Импорт аддитивен:
// существующее содержимое документа сохраняется, состояния сливаются.
func (c *Cli) RunImport(ctx context.Context, docID, path string) error {
	state, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	if _, err := c.docs.Open(ctx, docID); err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer c.docs.Close(ctx, docID)

	if err := c.docs.ImportState(docID, state); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Imported %s into %s\n", path, docID)
	return nil
}
