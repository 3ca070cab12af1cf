package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// schemaSteps[i] upgrades a database from version i to version i+1.
// Version 0 is an empty database.
var schemaSteps = []string{
	// 1: report bodies, history order and the current slot.
	`
CREATE TABLE reports (
    id TEXT PRIMARY KEY,
    file_name TEXT NOT NULL,
    timestamp TEXT NOT NULL,   -- RFC 3339, UTC
    summary TEXT NOT NULL DEFAULT '',
    agents TEXT NOT NULL       -- JSON array of agent results
);

-- higher seq is newer
CREATE TABLE history (
    report_id TEXT PRIMARY KEY REFERENCES reports(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL
);
CREATE INDEX idx_history_seq ON history(seq);

CREATE TABLE current_report (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    report_id TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE
);
`,
}

// SchemaVersion is the version InitSchema brings a database to.
var SchemaVersion = len(schemaSteps)

// InitSchema creates or upgrades the schema. Existing databases are
// integrity-checked first, and a database from a newer fcouncil is refused.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, SchemaVersion)
	}
	if current > 0 {
		if err := ValidateIntegrity(ctx, db); err != nil {
			return fmt.Errorf("database integrity check failed: %w", err)
		}
	}

	for v := current; v < SchemaVersion; v++ {
		if err := applyStep(ctx, db, v); err != nil {
			return err
		}
	}
	return nil
}

// schemaVersion returns the highest applied version, 0 for a new database.
func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(v.Int64), nil
}

func applyStep(ctx context.Context, db *sql.DB, from int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaSteps[from]); err != nil {
		return fmt.Errorf("schema %d -> %d: %w", from, from+1, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, from+1); err != nil {
		return fmt.Errorf("failed to record schema version %d: %w", from+1, err)
	}
	return tx.Commit()
}

// ValidateIntegrity runs PRAGMA integrity_check and PRAGMA
// foreign_key_check and reports every problem found.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	var problems []string

	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("failed to run integrity_check: %w", err)
	}
	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan integrity_check: %w", err)
		}
		if result != "ok" {
			problems = append(problems, result)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("integrity_check: %w", err)
	}

	fk, err := db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("failed to run foreign_key_check: %w", err)
	}
	defer fk.Close()
	for fk.Next() {
		var table, parent string
		var rowid, fkid sql.NullInt64
		if err := fk.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("failed to scan foreign_key_check: %w", err)
		}
		problems = append(problems, fmt.Sprintf("%s row %d references missing %s", table, rowid.Int64, parent))
	}
	if err := fk.Err(); err != nil {
		return fmt.Errorf("foreign_key_check: %w", err)
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
