package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/vovakirdan/wirerelay/internal/store"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		uid        VARCHAR(64) NOT NULL PRIMARY KEY,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
	) CHARACTER SET utf8mb4`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq       BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		id        CHAR(36) NOT NULL UNIQUE,
		uid       VARCHAR(64) NOT NULL,
		timestamp DATETIME(6) NOT NULL,
		message   LONGBLOB NOT NULL,
		INDEX idx_messages_uid (uid),
		FOREIGN KEY (uid) REFERENCES users(uid)
	) CHARACTER SET utf8mb4`,
}

// MySQLStore implements store.Store using a MySQL backend.
type MySQLStore struct {
	db *sql.DB
}

var _ store.Store = (*MySQLStore)(nil)

// New opens dsn, verifies the connection and creates missing tables.
func New(ctx context.Context, dsn string) (*MySQLStore, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", normalized)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NormalizeDSN forces the options the store relies on: DATETIME columns scan
// into time.Time in UTC.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func (s *MySQLStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func (s *MySQLStore) Authenticate(ctx context.Context, identifier string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT IGNORE INTO users (uid) VALUES (?)`, identifier); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *MySQLStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *MySQLStore) SaveMessage(ctx context.Context, rec *store.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, uid, timestamp, message) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Identifier, rec.CreatedAt, rec.Payload,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *MySQLStore) ListMessages(ctx context.Context, identifier string, limit int) ([]*store.Record, error) {
	query := `SELECT id, uid, timestamp, message FROM messages`
	var args []interface{}
	if identifier != "" {
		query += ` WHERE uid = ?`
		args = append(args, identifier)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

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
	for i := range len(records) / 2 {
		records[i], records[len(records)-1-i] = records[len(records)-1-i], records[i]
	}
	return records, rows.Err()
}
