package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/JarvisPipe/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	redisMessagesKey = "jarvis:messages"
	redisActionsKey  = "jarvis:actions"
)

// RedisStore keeps a bounded transcript in Redis lists.
type RedisStore struct {
	client    *redis.Client
	retention int
}

type redisMessage struct {
	Session string         `json:"session"`
	Message models.Message `json:"message"`
}

// NewRedisStore connects to the Redis URL in the options.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("redis URL not set")
	}
	ro, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(ro)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStoreFromClient(client, cfg.Retention), nil
}

// NewRedisStoreFromClient wraps an existing client. A non-positive retention uses DefaultRetention.
func NewRedisStoreFromClient(client *redis.Client, retention int) *RedisStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisStore{client: client, retention: retention}
}

func (s *RedisStore) push(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling entry: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, string(data))
	pipe.LTrim(ctx, key, int64(-s.retention), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pipeline exec for %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) lastN(ctx context.Context, key string, limit int) ([]string, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	vals, err := s.client.LRange(ctx, key, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	return vals, nil
}

func (s *RedisStore) AppendMessage(ctx context.Context, session string, msg models.Message) error {
	return s.push(ctx, redisMessagesKey, redisMessage{Session: session, Message: msg})
}

func (s *RedisStore) RecentMessages(ctx context.Context, limit int) ([]models.Message, error) {
	vals, err := s.lastN(ctx, redisMessagesKey, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(vals))
	for _, v := range vals {
		var entry redisMessage
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			continue // skip malformed entries
		}
		out = append(out, entry.Message)
	}
	return out, nil
}

func (s *RedisStore) RecordAction(ctx context.Context, rec models.ActionRecord) error {
	return s.push(ctx, redisActionsKey, rec)
}

func (s *RedisStore) ActionRecords(ctx context.Context, limit int) ([]models.ActionRecord, error) {
	vals, err := s.lastN(ctx, redisActionsKey, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.ActionRecord, 0, len(vals))
	for _, v := range vals {
		var rec models.ActionRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
