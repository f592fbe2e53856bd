// Command migrate applies the receipt store schema with goose.
//
//	migrate up | down | status | version | redo | up-to N | down-to N
//
// DATABASE_URL is read from the environment or a .env file. MIGRATIONS_DIR
// overrides the default "migrations" directory.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/samuelarogbonlo/dot-escrow/internal/logging"
)

func main() {
	_ = godotenv.Load()
	logger := logging.NewWriter(os.Stderr, os.Getenv("LOG_LEVEL"), "text")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate <up|down|status|version|redo|up-to N|down-to N>")
		os.Exit(2)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = "migrations"
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		logger.Error("connect to database", "error", err)
		os.Exit(1)
	}

	goose.SetLogger(slogAdapter{logger})
	if err := goose.SetDialect("postgres"); err != nil {
		logger.Error("set dialect", "error", err)
		os.Exit(1)
	}

	command := os.Args[1]
	if err := goose.RunContext(ctx, command, db, dir, os.Args[2:]...); err != nil {
		logger.Error("migration failed", "command", command, "error", err)
		os.Exit(1)
	}
}
