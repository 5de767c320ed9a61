package store

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/JarvisPipe/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T, retention int) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStoreFromClient(client, retention), mr
}

func TestRedisStore(t *testing.T) {
	s, _ := setupRedisStore(t, 0)
	exerciseStore(t, s)
}

func TestRedisStoreTrimsToRetention(t *testing.T) {
	s, mr := setupRedisStore(t, 3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendMessage(ctx, "s", models.Message{Role: models.RoleUser, Content: string(rune('a' + i)), Timestamp: time.Now()}))
	}
	got, err := s.RecentMessages(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].Content)
	assert.Equal(t, "e", got[2].Content)

	// Malformed entries are skipped.
	mr.RPush(redisMessagesKey, "not json")
	got, err = s.RecentMessages(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestNewRedisStoreFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(WithRedisURL("redis://" + mr.Addr() + "/0"))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, DefaultRetention, s.retention)

	_, err = NewRedisStore(WithRedisURL("redis://127.0.0.1:1/0"))
	assert.Error(t, err)
}
