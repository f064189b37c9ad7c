// Package sqlitemigrate applies embedded SQL migrations to a sqlite database.
package sqlitemigrate

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

const migrationTable = "schema_migrations"

// ApplyMigrations applies every .sql file in migrationFS in sorted order.
// Each file runs in its own transaction and is recorded once; files already
// recorded are skipped.
func ApplyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	if sqlDB == nil {
		return fmt.Errorf("sql db is nil")
	}
	if migrationFS == nil {
		return fmt.Errorf("migration filesystem is nil")
	}

	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`, migrationTable)
	if _, err := sqlDB.Exec(createTable); err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migration dir: %w", err)
	}

	var sqlFiles []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		sqlFiles = append(sqlFiles, entry.Name())
	}
	sort.Strings(sqlFiles)

	for _, name := range sqlFiles {
		applied, err := isApplied(sqlDB, name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		content, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		upSQL := ExtractUpMigration(string(content))

		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(upSQL); err != nil && !IsAlreadyExistsError(err) {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		record := fmt.Sprintf("INSERT OR IGNORE INTO %s (name, applied_at) VALUES (?, ?)", migrationTable)
		if _, err := tx.Exec(record, name, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}

	return nil
}

// ExtractUpMigration returns the up section of a migration file. Files
// without section markers are applied whole.
func ExtractUpMigration(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	section := content[upIdx:]
	if downIdx := strings.Index(section, "-- +migrate Down"); downIdx != -1 {
		section = section[:downIdx]
	}
	return section
}

// IsAlreadyExistsError reports whether err is sqlite complaining about DDL
// that was already applied, which keeps re-runs idempotent.
func IsAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column name")
}

func isApplied(sqlDB *sql.DB, name string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE name = ?", migrationTable)
	var one int
	err := sqlDB.QueryRow(query, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
