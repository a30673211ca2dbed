// Command migrate applies the embedded SQL migrations with goose.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"postboard/internal/config"
	"postboard/internal/database"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: go run ./cmd/migrate <up|down|status|version>")
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.OpenSQL(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = db.Close() }()

	cmd := strings.ToLower(strings.TrimSpace(flag.Arg(0)))
	switch cmd {
	case "up", "down", "status", "version":
	default:
		return usage()
	}

	if err := database.Migrate(context.Background(), db, cmd); err != nil {
		return err
	}
	log.Printf("migrate %s done", cmd)
	return nil
}
