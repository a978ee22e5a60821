// Package journal records a durable, append-only log of Index operations.
// It is purely observational: nothing in internal/core reads it back to
// make a decision. It exists so `artefacta status` has recent activity to
// report about a long-lived local cache; `artefacta debug` does not read it.
//
// New(path) opens a SQLite database, runs an embedded schema migration on
// first use, and exposes narrow typed Record/Recent methods rather than a
// generic query surface.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/technocreatives/artefacta/internal/core"
)

// Entry is one recorded Index operation.
type Entry struct {
	ID          int64
	Kind        string
	FromVersion string
	ToVersion   string
	Outcome     core.JournalOutcome
	Message     string
	CreatedAt   time.Time
}

// Journal is a SQLite-backed append-only log. It implements core.Journal.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ core.Journal = (*Journal)(nil)

// New opens (creating if absent) the SQLite database at path and ensures
// its schema is current.
func New(path string, logger *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db `%s`: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal db `%s`: %w", path, err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(nil, nil))
	}

	j := &Journal{db: db, logger: logger}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal db `%s`: %w", path, err)
	}
	return j, nil
}

// Close closes the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	const createMigrations = `
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := j.db.Exec(createMigrations); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := j.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&current); err != nil {
		return fmt.Errorf("read current schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{
			version: 1,
			sql: `
				CREATE TABLE entries (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					kind TEXT NOT NULL,
					from_version TEXT NOT NULL DEFAULT '',
					to_version TEXT NOT NULL DEFAULT '',
					outcome TEXT NOT NULL,
					message TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := j.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
		j.logger.Debug("applied journal migration", "version", m.version)
	}
	return nil
}

// Record appends one Entry.
func (j *Journal) Record(ctx context.Context, kind, fromVersion, toVersion string, outcome core.JournalOutcome, message string) error {
	const query = `
		INSERT INTO entries (kind, from_version, to_version, outcome, message)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := j.db.ExecContext(ctx, query, kind, fromVersion, toVersion, string(outcome), message)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Recent returns the n most recently recorded entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	const query = `
		SELECT id, kind, from_version, to_version, outcome, message, created_at
		FROM entries
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := j.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("query recent journal entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var outcome string
		if err := rows.Scan(&e.ID, &e.Kind, &e.FromVersion, &e.ToVersion, &outcome, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Outcome = core.JournalOutcome(outcome)
		out = append(out, e)
	}
	return out, rows.Err()
}
