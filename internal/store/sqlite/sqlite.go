package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirerelay/internal/store"
)

// Schema creates the tables used by SQLiteStore. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	uid        TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id        TEXT PRIMARY KEY,
	uid       TEXT NOT NULL REFERENCES users(uid),
	timestamp DATETIME NOT NULL,
	message   BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_uid ON messages(uid);
`

const connOptions = "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a new SQLite store and applies Schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; ":memory:" requires it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// DSN appends the connection options every store needs to dbPath, keeping
// any query the caller already supplied.
func DSN(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + connOptions
}

// Migrate applies Schema to db.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// Authenticate registers identifier if it is not known yet.
func (s *SQLiteStore) Authenticate(ctx context.Context, identifier string) error {
	query := `INSERT INTO users (uid) VALUES (?) ON CONFLICT(uid) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, identifier); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// CountUsers returns the number of registered identifiers.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// ==== MessageStore implementation ====

// SaveMessage persists a record.
func (s *SQLiteStore) SaveMessage(ctx context.Context, rec *store.Record) error {
	query := `
		INSERT INTO messages (id, uid, timestamp, message)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, rec.ID, rec.Identifier, rec.CreatedAt, rec.Payload); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns the most recent records in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, identifier string, limit int) ([]*store.Record, error) {
	var query string
	var args []interface{}

	if identifier != "" {
		query = `
			SELECT id, uid, timestamp, message
			FROM messages
			WHERE uid = ?
			ORDER BY timestamp DESC, rowid DESC
			LIMIT ?
		`
		args = []interface{}{identifier, limit}
	} else {
		query = `
			SELECT id, uid, timestamp, message
			FROM messages
			ORDER BY timestamp DESC, rowid DESC
			LIMIT ?
		`
		args = []interface{}{limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var records []*store.Record
	for rows.Next() {
		var rec store.Record
		if err := rows.Scan(&rec.ID, &rec.Identifier, &rec.CreatedAt, &rec.Payload); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		records = append(records, &rec)
	}

	// Reverse to get chronological order
	for i := range len(records) / 2 {
		records[i], records[len(records)-1-i] = records[len(records)-1-i], records[i]
	}

	return records, rows.Err()
}
