package datastore

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{`
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		name          TEXT    NOT NULL UNIQUE CHECK(length(name) > 0 AND length(name) <= 32),
		password_hash TEXT    NOT NULL,
		admin         INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS messages (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id    INTEGER NOT NULL REFERENCES users(id),
		sender_name  TEXT    NOT NULL,
		contents     TEXT    NOT NULL,
		time_sent    TEXT    NOT NULL,
		recipient_id INTEGER NOT NULL DEFAULT 0,
		tag          TEXT    NOT NULL DEFAULT 'normal',
		edited       INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS reports (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		reported_user_id INTEGER NOT NULL REFERENCES users(id),
		message_id       INTEGER NOT NULL REFERENCES messages(id),
		reporter_id      INTEGER NOT NULL REFERENCES users(id),
		reason           TEXT    NOT NULL DEFAULT '',
		created_at       TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`,
			// the system identity; an empty hash never verifies
			`INSERT OR IGNORE INTO users (id, name, password_hash, admin) VALUES (1, 'SERVER', '', 0)`,
		},
	},
	{
		version: 2,
		statements: []string{
			"CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id)",
			"CREATE INDEX IF NOT EXISTS idx_reports_reported ON reports(reported_user_id)",
		},
	},
}

// migrate brings the schema at db up to the newest version.
func migrate(ctx context.Context, db *sql.DB) error {
	if err := ensureSchemaMigrations(ctx, db); err != nil {
		return err
	}
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("datastore: begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("datastore: migration %d: %w", m.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("datastore: update schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("datastore: commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

func ensureSchemaMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}
