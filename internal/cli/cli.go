// Package cli реализует команды клиента kalynt.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/docstore"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/keyvault"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/mesh"
)

// EnvRoomPassword переменная окружения с паролем комнаты
const EnvRoomPassword = "KALYNT_ROOM_PASSWORD"

type Cli struct {
	docs  *docstore.Service
	mesh  *mesh.Service
	vault *keyvault.Vault
	out   io.Writer
	in    io.Reader
}

func New(docs *docstore.Service, meshSvc *mesh.Service, vault *keyvault.Vault) *Cli {
	return &Cli{
		docs:  docs,
		mesh:  meshSvc,
		vault: vault,
		out:   os.Stdout,
		in:    os.Stdin,
	}
}

// roomPassword получает пароль комнаты:
// 1. Переменная окружения KALYNT_ROOM_PASSWORD
// 2. Интерактивный запрос (скрытый ввод)
func (c *Cli) roomPassword() (string, error) {
	if envPassword := os.Getenv(EnvRoomPassword); envPassword != "" {
		return envPassword, nil
	}

	password, err := readPassword("Room password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return password, nil
}

// readPassword читает пароль без эха терминала
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// readInput читает строку из stdin
func (c *Cli) readInput(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	reader := bufio.NewReader(c.in)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func PrintUsage() {
	fmt.Println("Kalynt Client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  kalynt [OPTIONS] COMMAND")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version             Show version information")
	fmt.Println("  --rendezvous URL      Rendezvous server URL (default: http://localhost:8081)")
	fmt.Println("  --db PATH             Path to local document cache (default: kalynt.db)")
	fmt.Println("  --name NAME           Display name in rooms")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  share <room-id>       Create an invite link for a room")
	fmt.Println("  join <link>           Join a room by invite link and edit the shared document")
	fmt.Println("  edit <doc-id>         Edit a local document offline")
	fmt.Println("  export <doc-id> <file>  Export document state to a file")
	fmt.Println("  import <doc-id> <file>  Import document state from a file")
	fmt.Println("  doctor                Check STUN/TURN connectivity")
	fmt.Println()
	fmt.Println("Room Password Priority (highest to lowest):")
	fmt.Println("  1. KALYNT_ROOM_PASSWORD environment variable")
	fmt.Println("  2. Interactive prompt (fallback)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  kalynt share docs/team-42")
	fmt.Println("  kalynt join 'kalynt://join/docs/team-42#p=secret&n=Alice'")
	fmt.Println("  kalynt edit scratchpad")
	fmt.Println("  kalynt export scratchpad backup.json")
	fmt.Println("  kalynt doctor")
}
