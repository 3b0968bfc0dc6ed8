package storage

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements the two commands the cache uses
type fakeRedis struct {
	redis.Cmdable
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = expiration
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func TestCallbackCache_SaveAndGet(t *testing.T) {
	rdb := newFakeRedis()
	cache := NewCallbackCache(rdb, "test", time.Hour)
	body := []byte(`{"code":200,"msg":"ok","data":{"callbackType":"complete","task_id":"t-1","data":[{"id":"a","audio_url":"https://cdn/a.mp3"}]}}`)

	require.NoError(t, cache.Save(context.Background(), "t-1", body))
	assert.Equal(t, time.Hour, rdb.ttls["test:callback:t-1"])

	cb, err := cache.Get(context.Background(), "t-1")
	require.NoError(t, err)
	assert.True(t, cb.IsComplete())
	assert.Equal(t, "https://cdn/a.mp3", cb.FirstAudioURL())
}

func TestCallbackCache_Missing(t *testing.T) {
	cache := NewCallbackCache(newFakeRedis(), "", 0)

	_, err := cache.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCallbackNotFound)
	assert.Equal(t, DefaultCallbackTTL, cache.ttl)
	assert.Equal(t, "musicgen:callback:nope", cache.key("nope"))
}
