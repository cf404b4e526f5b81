package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/cli"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/docstore"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/keyvault"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/mesh"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/mesh/signal"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/models"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/storage/boltdb"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	rendezvousURL := flag.String("rendezvous", "http://localhost:8081", "Rendezvous server URL")
	dbPath := flag.String("db", "kalynt.db", "Path to local document cache")
	displayName := flag.String("name", "", "Display name in rooms")

	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// Получаем команду
	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}

	command := args[0]
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	// Открываем BoltDB кеш документов
	cache, err := boltdb.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	vault, err := keyvault.NewVault(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create key vault: %v\n", err)
		os.Exit(1)
	}
	defer vault.Close()

	docs := docstore.NewService(cache, logger)
	defer docs.Shutdown(ctx)

	transport := signal.NewClient([]string{*rendezvousURL}, logger)
	meshSvc := mesh.NewService(transport, vault, logger, mesh.Config{
		User: models.UserInfo{Name: *displayName},
		// Документ комнаты хранится под id самой комнаты
		OnCursors: docs.PublishCursors,
	})
	defer meshSvc.Close()

	app := cli.New(docs, meshSvc, vault)

	// Выполняем команду
	switch command {
	case "share":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "Usage: kalynt share <room-id>")
			os.Exit(1)
		}
		if err := app.RunShare(args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "join":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "Usage: kalynt join <link>")
			os.Exit(1)
		}
		if err := app.RunJoin(ctx, args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "edit":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "Usage: kalynt edit <doc-id>")
			os.Exit(1)
		}
		if err := app.RunEdit(ctx, args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "export":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "Usage: kalynt export <doc-id> <file>")
			os.Exit(1)
		}
		if err := app.RunExport(ctx, args[1], args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "import":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "Usage: kalynt import <doc-id> <file>")
			os.Exit(1)
		}
		if err := app.RunImport(ctx, args[1], args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "doctor":
		if err := app.RunDoctor(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		cli.PrintUsage()
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("Kalynt Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
