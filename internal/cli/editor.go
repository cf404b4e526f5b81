package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/docstore"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/mesh"
)

// runEditor интерактивный цикл редактирования. Обычные строки
// дописываются в конец документа; строки с ведущим двоеточием -
// команды редактора. conn может быть nil при офлайн-редактировании.
func (c *Cli) runEditor(ctx context.Context, handle *docstore.Handle, conn *mesh.Connection) error {
	fmt.Fprintln(c.out, "Type text to append, :help for commands, :quit to exit")

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, ":") {
			quit, err := c.runEditorCommand(ctx, handle, conn, line)
			if err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		text := line + "\n"
		if err := handle.InsertText(len([]rune(handle.Text())), text); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
	return scanner.Err()
}

func (c *Cli) runEditorCommand(_ context.Context, handle *docstore.Handle, conn *mesh.Connection, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	command := fields[0]
	args := fields[1:]
	docID := handle.ID()

	switch command {
	case ":quit", ":q":
		return true, nil

	case ":help":
		c.printEditorHelp()

	case ":text":
		fmt.Fprintln(c.out, handle.Text())

	case ":undo":
		done, err := c.docs.Undo(docID)
		if err != nil {
			return false, err
		}
		if !done {
			fmt.Fprintln(c.out, "Nothing to undo")
		}

	case ":redo":
		done, err := c.docs.Redo(docID)
		if err != nil {
			return false, err
		}
		if !done {
			fmt.Fprintln(c.out, "Nothing to redo")
		}

	case ":snapshot":
		label := strings.Join(args, " ")
		snap, err := c.docs.CreateSnapshot(docID, c.authorID(), label)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "Snapshot %s created\n", snap.ID)

	case ":snapshots":
		snaps, err := c.docs.Snapshots(docID)
		if err != nil {
			return false, err
		}
		if len(snaps) == 0 {
			fmt.Fprintln(c.out, "No snapshots yet")
		}
		for _, snap := range snaps {
			label := snap.Label
			if label == "" {
				label = "(unlabeled)"
			}
			fmt.Fprintf(c.out, "%s  %s  %s\n", snap.ID, snap.CreatedAt.Format("2006-01-02 15:04:05"), label)
		}

	case ":restore":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: :restore <snapshot-id>")
		}
		done, err := c.docs.RestoreSnapshot(docID, args[0])
		if err != nil {
			return false, err
		}
		if done {
			fmt.Fprintln(c.out, "Snapshot restored (a backup snapshot was taken first)")
		} else {
			fmt.Fprintln(c.out, "Restore failed, backup snapshot kept")
		}

	case ":peers":
		if conn == nil {
			fmt.Fprintln(c.out, "Offline")
			break
		}
		peers := conn.Peers()
		if len(peers) == 0 {
			fmt.Fprintln(c.out, "No other peers in the room")
		}
		for _, peer := range peers {
			name := peer.DisplayName
			if name == "" {
				name = peer.ID
			}
			fmt.Fprintf(c.out, "%s  last seen %s\n", name, peer.LastSeenAt.Format("15:04:05"))
		}

	case ":stats":
		stats, err := c.docs.Stats(docID)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "Text length: %d\n", stats.TextLength)
		fmt.Fprintf(c.out, "Snapshots:   %d\n", stats.SnapshotCount)
		fmt.Fprintf(c.out, "Peers:       %d\n", stats.PeerCount)

	default:
		return false, fmt.Errorf("unknown command %s, try :help", command)
	}

	return false, nil
}

func (c *Cli) authorID() string {
	if c.mesh != nil {
		return c.mesh.PeerID()
	}
	return "local"
}

func (c *Cli) printEditorHelp() {
	fmt.Fprintln(c.out, "Editor commands:")
	fmt.Fprintln(c.out, "  :text              Print the current document text")
	fmt.Fprintln(c.out, "  :undo              Undo the last local edit")
	fmt.Fprintln(c.out, "  :redo              Redo the last undone edit")
	fmt.Fprintln(c.out, "  :snapshot [label]  Create a snapshot")
	fmt.Fprintln(c.out, "  :snapshots         List snapshots")
	fmt.Fprintln(c.out, "  :restore <id>      Restore a snapshot (merges, keeps a backup)")
	fmt.Fprintln(c.out, "  :peers             List peers in the room")
	fmt.Fprintln(c.out, "  :stats             Show document statistics")
	fmt.Fprintln(c.out, "  :quit              Exit the editor")
}
