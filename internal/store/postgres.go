package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/JarvisPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore keeps the transcript in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and applies migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore.NewPostgresStore: database ready")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, session string, msg models.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES ($1, $2, $3, $4)`,
		session, string(msg.Role), msg.Content, msg.Timestamp)
	if err != nil {
		slog.Error("PostgresStore.AppendMessage: insert failed", "error", err, "session", session)
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages ORDER BY id DESC LIMIT $1`, postgresLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return scanMessages(rows)
}

func (s *PostgresStore) RecordAction(ctx context.Context, rec models.ActionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO action_events (action_id, kind, event, fire_at, at, detail) VALUES ($1, $2, $3, $4, $5, $6)`,
		int64(rec.ActionID), string(rec.Kind), string(rec.Event), rec.FireAt, rec.At, nilIfEmpty(rec.Detail))
	if err != nil {
		slog.Error("PostgresStore.RecordAction: insert failed", "error", err, "action_id", rec.ActionID)
		return fmt.Errorf("failed to insert action record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActionRecords(ctx context.Context, limit int) ([]models.ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action_id, kind, event, fire_at, at, detail FROM action_events ORDER BY id DESC LIMIT $1`, postgresLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query action records: %w", err)
	}
	return scanActionRecords(rows)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
