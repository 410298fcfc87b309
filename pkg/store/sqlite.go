package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// OpenSQLite opens (creating if needed) a SQLite database file and applies
// all pending migrations. WAL mode and a busy timeout are enabled.
func OpenSQLite(path string) (*sqlx.DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to sqlite %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting dialect for migrations: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	return db, nil
}

// SQLiteBackend stores records in the "records" table, one row per
// (database, store, key).
type SQLiteBackend struct {
	db       *sqlx.DB
	database string
}

// NewSQLiteBackend creates a backend over a database opened with OpenSQLite.
func NewSQLiteBackend(db *sqlx.DB, database string) *SQLiteBackend {
	if db == nil {
		panic("sqlite db cannot be nil")
	}
	if database == "" {
		database = DefaultDatabase
	}
	return &SQLiteBackend{
		db:       db,
		database: database,
	}
}

const upsertRecord = `
INSERT INTO records (db_name, store_name, record_key, value, updated_at)
VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (db_name, store_name, record_key)
DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

func (s *SQLiteBackend) Get(ctx context.Context, store, key string) ([]byte, error) {
	var value []byte
	query := `SELECT value FROM records WHERE db_name = ? AND store_name = ? AND record_key = ?`

	if err := s.db.GetContext(ctx, &value, query, s.database, store, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("selecting record %s/%s: %w", store, key, err)
	}
	return value, nil
}

func (s *SQLiteBackend) Put(ctx context.Context, store, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, upsertRecord, s.database, store, key, value); err != nil {
		return fmt.Errorf("upserting record %s/%s: %w", store, key, err)
	}
	return nil
}

func (s *SQLiteBackend) PutMany(ctx context.Context, store string, values map[string][]byte) (err error) {
	if len(values) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PreparexContext(ctx, upsertRecord)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for k, v := range values {
		if _, err = stmt.ExecContext(ctx, s.database, store, k, v); err != nil {
			return fmt.Errorf("upserting record %s/%s: %w", store, k, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type recordRow struct {
	Key   string `db:"record_key"`
	Value []byte `db:"value"`
}

func (s *SQLiteBackend) All(ctx context.Context, store string) (map[string][]byte, error) {
	var rows []recordRow
	query := `SELECT record_key, value FROM records WHERE db_name = ? AND store_name = ?`

	if err := s.db.SelectContext(ctx, &rows, query, s.database, store); err != nil {
		return nil, fmt.Errorf("selecting records of %s: %w", store, err)
	}

	out := make(map[string][]byte, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

func (s *SQLiteBackend) Clear(ctx context.Context, store string) error {
	query := `DELETE FROM records WHERE db_name = ? AND store_name = ?`
	if _, err := s.db.ExecContext(ctx, query, s.database, store); err != nil {
		return fmt.Errorf("clearing %s: %w", store, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteBackend) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing sqlite: %w", err)
	}
	return nil
}
