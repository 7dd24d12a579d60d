package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"

	"skinbet/internal/config"
	"skinbet/internal/database"
	"skinbet/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	command := os.Args[1]
	if command == "create" {
		if len(os.Args) < 3 {
			log.Fatal("Usage: migrate create <migration_name>")
		}
		createMigration(cfg.MigrationsPath, os.Args[2])
		return
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL())
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	switch command {
	case "up":
		log.Info("Running migrations...")
		if err := database.RunMigrations(db, cfg.MigrationsPath); err != nil {
			log.WithError(err).Fatal("Migration failed")
		}
		log.Info("Migrations completed successfully")

	case "down":
		log.Info("Rolling back last migration...")
		if err := database.RollbackMigration(db, cfg.MigrationsPath); err != nil {
			log.WithError(err).Fatal("Rollback failed")
		}
		log.Info("Rollback completed successfully")

	case "version":
		version, dirty, err := database.GetMigrationVersion(db, cfg.MigrationsPath)
		if err != nil {
			log.WithError(err).Fatal("Failed to get version")
		}
		entry := log.WithField("version", version)
		if dirty {
			entry.Warn("Current version is DIRTY, needs manual intervention")
		} else {
			entry.Info("Current version")
		}

	default:
		log.WithField("command", command).Error("Unknown command")
		printUsage()
		os.Exit(1)
	}
}

func createMigration(dir, name string) {
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		log.WithError(err).Fatal("Failed to read migrations directory")
	}
	nextVersion := len(files) + 1

	upFile := filepath.Join(dir, fmt.Sprintf("%06d_%s.up.sql", nextVersion, name))
	downFile := filepath.Join(dir, fmt.Sprintf("%06d_%s.down.sql", nextVersion, name))

	upContent := fmt.Sprintf("-- Migration: %s\n-- Created: %s\n\n", name, time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(upFile, []byte(upContent), 0644); err != nil {
		log.WithError(err).Fatal("Failed to create up migration")
	}
	downContent := fmt.Sprintf("-- Rollback: %s\n\n", name)
	if err := os.WriteFile(downFile, []byte(downContent), 0644); err != nil {
		log.WithError(err).Fatal("Failed to create down migration")
	}

	log.WithFields(log.Fields{"up": upFile, "down": downFile}).Info("Created migration files")
}

func printUsage() {
	fmt.Println("History database migration tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  migrate up              Run all pending migrations")
	fmt.Println("  migrate down            Rollback the last migration")
	fmt.Println("  migrate version         Show current migration version")
	fmt.Println("  migrate create <name>   Create a new migration file")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DB_HOST, DB_PORT, DB_DATABASE, DB_USERNAME, DB_PASSWORD, DB_SCHEMA")
	fmt.Println("  MIGRATIONS_PATH         Path to migrations (default: ./migrations)")
}
