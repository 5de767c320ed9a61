package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/BTreeMap/JarvisPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore keeps the transcript in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the SQLite database at the configured DSN,
// creating its directory if needed.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dsn := cfg.DSN
	if dsn == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping failed: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: database ready", "path", path)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, session string, msg models.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		session, string(msg.Role), msg.Content, msg.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore.AppendMessage: insert failed", "error", err, "session", session)
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentMessages(ctx context.Context, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages ORDER BY id DESC LIMIT ?`, sqliteLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return scanMessages(rows)
}

func (s *SQLiteStore) RecordAction(ctx context.Context, rec models.ActionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO action_events (action_id, kind, event, fire_at, at, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		int64(rec.ActionID), string(rec.Kind), string(rec.Event), rec.FireAt, rec.At, nilIfEmpty(rec.Detail))
	if err != nil {
		slog.Error("SQLiteStore.RecordAction: insert failed", "error", err, "action_id", rec.ActionID)
		return fmt.Errorf("failed to insert action record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ActionRecords(ctx context.Context, limit int) ([]models.ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action_id, kind, event, fire_at, at, detail FROM action_events ORDER BY id DESC LIMIT ?`, sqliteLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query action records: %w", err)
	}
	return scanActionRecords(rows)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		slog.Error("SQLiteStore.Close: failed to close database", "error", err)
		return err
	}
	return nil
}
