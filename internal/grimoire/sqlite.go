package grimoire

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added slots.updated_at
const currentSchemaVersion = 1

// DefaultSlot is the key the aggregate is stored under.
const DefaultSlot = "grimoire"

// SQLiteBackend stores the aggregate as one row of a SQLite table.
type SQLiteBackend struct {
	db   *sql.DB
	slot string
}

// OpenSQLite creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode so readers do not block the writer
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteBackend{db: db, slot: DefaultSlot}, nil
}

// WithSlot returns a backend sharing the connection but reading and writing
// a different key. Lets several profiles live in one file.
func (b *SQLiteBackend) WithSlot(slot string) *SQLiteBackend {
	return &SQLiteBackend{db: b.db, slot: slot}
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Load returns the stored document, or nil if the slot is empty.
func (b *SQLiteBackend) Load(ctx context.Context) ([]byte, error) {
	var value string
	err := b.db.QueryRowContext(ctx, `SELECT value FROM slots WHERE key = ?`, b.slot).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load slot %s: %w", b.slot, err)
	}
	return []byte(value), nil
}

// Save replaces the stored document.
func (b *SQLiteBackend) Save(ctx context.Context, data []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO slots (key, value, updated_at)
		VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, b.slot, string(data))
	if err != nil {
		return fmt.Errorf("save slot %s: %w", b.slot, err)
	}
	return nil
}

// Clear deletes the slot row.
func (b *SQLiteBackend) Clear(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM slots WHERE key = ?`, b.slot); err != nil {
		return fmt.Errorf("clear slot %s: %w", b.slot, err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds updated_at to slot tables created before it existed.
// New databases already have the column from schema.sql.
func migrateToV1(db *sql.DB) error {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('slots') WHERE name = 'updated_at'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := db.Exec(`ALTER TABLE slots ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0`); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
