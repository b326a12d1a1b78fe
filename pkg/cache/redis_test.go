package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	rc := &RedisCache{
		client: client,
		ctx:    client.Context(),
	}

	return rc, mr
}

func TestRedisCache_SetAndGet(t *testing.T) {
	rc, mr := setupTestRedis(t)
	defer mr.Close()
	defer rc.Close()

	type languages struct {
		Repo  string
		Bytes map[string]int
	}

	data := languages{Repo: "acme/proj", Bytes: map[string]int{"Go": 1200}}

	err := rc.Set("languages:acme/proj", data, time.Minute)
	require.NoError(t, err)

	var retrieved languages
	err = rc.Get("languages:acme/proj", &retrieved)
	require.NoError(t, err)
	assert.Equal(t, data.Repo, retrieved.Repo)
	assert.Equal(t, 1200, retrieved.Bytes["Go"])
}

func TestRedisCache_MissingKey(t *testing.T) {
	rc, mr := setupTestRedis(t)
	defer mr.Close()
	defer rc.Close()

	var out int
	err := rc.Get("absent", &out)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Exists(t *testing.T) {
	rc, mr := setupTestRedis(t)
	defer mr.Close()
	defer rc.Close()

	exists, err := rc.Exists("contributors:acme/proj")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, rc.Set("contributors:acme/proj", 7, time.Minute))

	exists, err = rc.Exists("contributors:acme/proj")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	rc, mr := setupTestRedis(t)
	defer mr.Close()
	defer rc.Close()

	require.NoError(t, rc.Set("short", 1, time.Second))

	mr.FastForward(2 * time.Second)

	var out int
	err := rc.Get("short", &out)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Delete(t *testing.T) {
	rc, mr := setupTestRedis(t)
	defer mr.Close()
	defer rc.Close()

	require.NoError(t, rc.Set("key", "value", time.Minute))
	require.NoError(t, rc.Delete("key"))

	var out string
	assert.ErrorIs(t, rc.Get("key", &out), ErrCacheMiss)
}
