// Package store persists the conversation transcript and the action lifecycle log.
//
// Scheduled actions themselves are never persisted; only what happened to them is.
package store

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/BTreeMap/JarvisPipe/internal/models"
)

// DSN kinds returned by DetectDSNType.
const (
	DSNPostgres = "postgres"
	DSNSQLite   = "sqlite3"
	DSNRedis    = "redis"
)

// DefaultRetention caps the number of entries kept by list-based backends.
const DefaultRetention = 1000

// Store is implemented by every transcript backend.
type Store interface {
	AppendMessage(ctx context.Context, session string, msg models.Message) error
	// RecentMessages returns up to limit of the newest messages across sessions, oldest first.
	RecentMessages(ctx context.Context, limit int) ([]models.Message, error)
	RecordAction(ctx context.Context, rec models.ActionRecord) error
	// ActionRecords returns up to limit of the newest action records, oldest first.
	ActionRecords(ctx context.Context, limit int) ([]models.ActionRecord, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN       string
	Retention int
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithRedisURL sets the Redis connection URL.
func WithRedisURL(url string) Option {
	return func(o *Opts) { o.DSN = url }
}

// WithRetention caps how many messages and records the Redis backend keeps.
func WithRetention(n int) Option {
	return func(o *Opts) { o.Retention = n }
}

// DetectDSNType classifies a connection string. Anything that is not recognizably
// PostgreSQL or Redis is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(d, "postgres://"), strings.HasPrefix(d, "postgresql://"):
		return DSNPostgres
	case strings.HasPrefix(d, "redis://"), strings.HasPrefix(d, "rediss://"):
		return DSNRedis
	case strings.Contains(d, "host="):
		return DSNPostgres
	case strings.Contains(d, "=") && strings.Contains(d, " ") && !strings.Contains(d, "?"):
		return DSNPostgres
	default:
		return DSNSQLite
	}
}

// Open returns the backend matching dsn. An empty dsn yields an in-memory store.
func Open(dsn string, opts ...Option) (Store, error) {
	if dsn == "" {
		slog.Debug("Store.Open: no DSN, using in-memory store")
		return NewInMemoryStore(), nil
	}
	switch DetectDSNType(dsn) {
	case DSNPostgres:
		return NewPostgresStore(append(opts, WithPostgresDSN(dsn))...)
	case DSNRedis:
		return NewRedisStore(append(opts, WithRedisURL(dsn))...)
	default:
		return NewSQLiteStore(append(opts, WithSQLiteDSN(dsn))...)
	}
}

// InMemoryStore keeps everything in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	messages []models.Message
	records  []models.ActionRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) AppendMessage(_ context.Context, _ string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *InMemoryStore) RecentMessages(_ context.Context, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.messages, limit), nil
}

func (s *InMemoryStore) RecordAction(_ context.Context, rec models.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *InMemoryStore) ActionRecords(_ context.Context, limit int) ([]models.ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.records, limit), nil
}

func (s *InMemoryStore) Close() error { return nil }

func tail[T any](items []T, limit int) []T {
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	out := make([]T, limit)
	copy(out, items[len(items)-limit:])
	return out
}
