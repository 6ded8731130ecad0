package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fadedpez/wingo/pkg/db/migrations"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	// Define command-line flags
	createCmd := flag.NewFlagSet("create", flag.ExitOnError)
	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)

	// Create command options
	migrationsDir := createCmd.String("dir", "pkg/db/migrations/sqlite", "Directory to store migrations")
	createDriver := createCmd.String("driver", "sqlite3", "Dialect of the new migration (sqlite3 or postgres)")

	// Migrate command options
	driver := migrateCmd.String("driver", "sqlite3", "Database driver (sqlite3 or postgres)")
	dsn := migrateCmd.String("db", "data/wingo.db", "SQLite path or Postgres connection URL")
	migrateDir := migrateCmd.String("dir", "", "Directory containing migrations (default: bundled)")

	// Show usage if no arguments provided
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Parse command
	switch os.Args[1] {
	case "create":
		createCmd.Parse(os.Args[2:])
		if createCmd.NArg() < 1 {
			fmt.Println("Error: Missing migration description")
			createCmd.Usage()
			os.Exit(1)
		}
		createNewMigration(*migrationsDir, createCmd.Arg(0), migrations.Dialect(*createDriver))

	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		applyMigrations(migrations.Dialect(*driver), *dsn, *migrateDir)

	case "help":
		printUsage()

	default:
		fmt.Printf("Error: Unknown command '%s'\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  go run cmd/migration/main.go create DESCRIPTION  - Create a new migration")
	fmt.Println("  go run cmd/migration/main.go migrate            - Apply pending migrations")
	fmt.Println("  go run cmd/migration/main.go help              - Show this help")
	fmt.Println("\nExamples:")
	fmt.Println("  go run cmd/migration/main.go create \"add round locks\"")
	fmt.Println("  go run cmd/migration/main.go create -driver postgres -dir pkg/db/migrations/postgres \"add round locks\"")
	fmt.Println("  go run cmd/migration/main.go migrate -db data/wingo.db")
	fmt.Println("  go run cmd/migration/main.go migrate -driver postgres -db postgres://wingo@localhost/wingo?sslmode=disable")
}

func createNewMigration(migrationsDir, description string, dialect migrations.Dialect) {
	filePath, err := migrations.CreateMigration(migrationsDir, description)
	if err != nil {
		log.Fatalf("Error creating migration: %v", err)
	}

	addExamples(filePath, dialect)

	fmt.Printf("Created migration file: %s\n", filePath)
	fmt.Println("Edit this file to add your database schema changes.")
}

func addExamples(filePath string, dialect migrations.Dialect) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatalf("Error reading migration file: %v", err)
	}

	examples := `
-- SQLite Examples:

-- Create a new table
-- CREATE TABLE IF NOT EXISTS table_name (
--   id TEXT PRIMARY KEY,
--   amount INTEGER NOT NULL DEFAULT 0,
--   created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
-- );

-- Add a column to existing table
-- ALTER TABLE table_name ADD COLUMN new_column TEXT;

-- Create an index
-- CREATE INDEX IF NOT EXISTS idx_table_column ON table_name(column_name);

-- Your migration SQL goes below this line:

`
	if dialect == migrations.DialectPostgres {
		examples = `
-- Postgres Examples:

-- Create a new table
-- CREATE TABLE IF NOT EXISTS table_name (
--   id TEXT PRIMARY KEY,
--   amount BIGINT NOT NULL DEFAULT 0,
--   created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
-- );

-- Add a column to existing table
-- ALTER TABLE table_name ADD COLUMN IF NOT EXISTS new_column TEXT;

-- Create an index
-- CREATE INDEX IF NOT EXISTS idx_table_column ON table_name(column_name);

-- Your migration SQL goes below this line:

`
	}

	if err := os.WriteFile(filePath, append(content, examples...), 0644); err != nil {
		log.Fatalf("Error writing to migration file: %v", err)
	}
}

func applyMigrations(dialect migrations.Dialect, dsn, migrationsDir string) {
	if dialect == migrations.DialectSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			log.Fatalf("Error creating database directory: %v", err)
		}
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Error connecting to database: %v", err)
	}

	migrator := migrations.NewMigrator(db, dialect)
	if migrationsDir != "" {
		migrator = migrations.NewDirMigrator(db, migrationsDir, dialect)
	}

	if err := migrator.MigrateUp(); err != nil {
		log.Fatalf("Error applying migrations: %v", err)
	}

	fmt.Println("Migrations applied successfully!")
}
