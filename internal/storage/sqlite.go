package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kusari/internal/models"
)

// SQLiteStore keeps records in a SQLite table.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY,
		source_label TEXT NOT NULL,
		text_excerpt TEXT NOT NULL,
		content_hash TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS store_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Load returns all rows ordered by id. A database that was never saved yields ErrMetadataNotFound.
func (s *SQLiteStore) Load(ctx context.Context) ([]models.Item, error) {
	var saved string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_state WHERE key = 'saved'`).Scan(&saved)
	if err == sql.ErrNoRows {
		return nil, ErrMetadataNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_label, text_excerpt, content_hash FROM items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		var it models.Item
		if err := rows.Scan(&it.ID, &it.SourceLabel, &it.TextExcerpt, &it.ContentHash); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Save replaces every row in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, items []models.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO items (id, source_label, text_excerpt, content_hash) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.ID, it.SourceLabel, it.TextExcerpt, it.ContentHash); err != nil {
			return fmt.Errorf("failed to insert item %d: %w", it.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO store_state (key, value) VALUES ('saved', '1')
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`); err != nil {
		return err
	}
	return tx.Commit()
}

// Location returns the database path.
func (s *SQLiteStore) Location() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
