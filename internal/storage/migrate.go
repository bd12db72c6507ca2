package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrateUp applies every up migration in filename order. Each file runs
// in its own transaction, so a half-applied schema never survives a
// crash.
func MigrateUp(db *sql.DB) error {
	return runMigrations(db, ".up.sql", false)
}

// MigrateDown unwinds the schema by running the down migrations in
// reverse filename order.
func MigrateDown(db *sql.DB) error {
	return runMigrations(db, ".down.sql", true)
}

func runMigrations(db *sql.DB, suffix string, reverse bool) error {
	names, err := fs.Glob(migrationFS, "migrations/*"+suffix)
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(names)
	if reverse {
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
	}

	for _, name := range names {
		script, err := migrationFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := execMigration(db, string(script)); err != nil {
			return fmt.Errorf("apply migration %s: %w", strings.TrimPrefix(name, "migrations/"), err)
		}
	}
	return nil
}

func execMigration(db *sql.DB, script string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(script); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
