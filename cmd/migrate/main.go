// Package main applies the embedded schema migrations.
//
// Usage:
//
//	migrate up
//	migrate down -steps=1
//	migrate version
//
// Only DATABASE_URL is read, from the environment or .env.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"valor/internal/bootstrap"
	"valor/internal/config"
	"valor/internal/db"
)

// migrator is the subset of *db.Migrator the commands use.
type migrator interface {
	Up() error
	Down(steps int) error
	Version() (version uint, dirty bool, ok bool, err error)
}

func main() {
	logger := bootstrap.NewLogger(os.Getenv("LOG_LEVEL"))

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back with down")
	_ = fs.Parse(os.Args[1:])
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: migrate [-steps=N] up|down|version")
		os.Exit(2)
	}

	_ = godotenv.Load()
	var dbCfg config.DatabaseConfig
	if err := envconfig.Process("", &dbCfg); err != nil {
		logger.Error("invalid database configuration", "error", err)
		os.Exit(1)
	}
	if !dbCfg.URL.IsSet() {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	m, err := db.NewMigrator(dbCfg.URL.Unmask(), logger)
	if err != nil {
		logger.Error("failed to open migrator", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := runCommand(m, fs.Arg(0), *steps, os.Stdout); err != nil {
		logger.Error("migration failed", "command", fs.Arg(0), "error", err)
		m.Close()
		os.Exit(1)
	}
}

func runCommand(m migrator, cmd string, steps int, out io.Writer) error {
	switch cmd {
	case "up":
		return m.Up()
	case "down":
		if steps < 1 {
			return fmt.Errorf("steps must be positive, got %d", steps)
		}
		return m.Down(steps)
	case "version":
		version, dirty, ok, err := m.Version()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "no migrations applied")
			return nil
		}
		fmt.Fprintf(out, "version %d (dirty=%t)\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
