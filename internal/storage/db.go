package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/AneeshNi47/walletfit-ui/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// DB is a SQLite-backed CredentialStore.
type DB struct {
	conn *sql.DB
	key  string
}

// NewDB opens a database connection and runs migrations. The session record
// is kept under key, or DefaultKey when key is empty.
func NewDB(path, key string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// One connection: keeps ":memory:" databases shared and serializes writers.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	if key == "" {
		key = DefaultKey
	}
	db := &DB{conn: conn, key: key}
	if err := db.migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS credentials (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Load retrieves the stored session.
func (db *DB) Load(ctx context.Context) (*models.Session, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, "SELECT value FROM credentials WHERE key = ?", db.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSession([]byte(value))
}

// Save inserts or replaces the stored session.
func (db *DB) Save(ctx context.Context, s *models.Session) error {
	data, err := encodeSession(s)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		db.key, string(data), time.Now(),
	)
	return err
}

// Clear removes the stored session.
func (db *DB) Clear(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM credentials WHERE key = ?", db.key)
	return err
}

// UpdatedAt returns when the stored session was last written.
func (db *DB) UpdatedAt(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := db.conn.QueryRowContext(ctx, "SELECT updated_at FROM credentials WHERE key = ?", db.key).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	return t, err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
