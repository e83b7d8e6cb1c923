package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	matchDomain "github.com/smarcilla/football-oracle-monorepo/internal/match/domain"
)

func TestRedisCache_SetGetDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	c := NewRedisCache(client, time.Minute)
	ctx := context.Background()

	key := matchDomain.MatchCacheKeyByID(42)
	in := &matchDomain.Match{ID: 42, Status: matchDomain.StatusScraped, HomeTeamID: 1, AwayTeamID: 2}
	require.NoError(t, c.Set(ctx, key, in, 0))

	// El TTL por defecto del adapter se aplica cuando no se pasa uno
	assert.Equal(t, time.Minute, mr.TTL(key))

	var out matchDomain.Match
	hit, err := c.Get(ctx, key, &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, in.Status, out.Status)

	require.NoError(t, c.Delete(ctx, key))
	hit, err = c.Get(ctx, key, &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisCache_Expires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	c := NewRedisCache(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 5*time.Second))
	mr.FastForward(6 * time.Second)

	var out string
	hit, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisCache_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	c := NewRedisCache(client, time.Minute)
	mr.Close()

	var out string
	_, err := c.Get(context.Background(), "k", &out)
	assert.Error(t, err)
}

func TestInMemoryCache_TTL(t *testing.T) {
	c := NewInMemoryCache(time.Minute, time.Hour)
	t.Cleanup(c.Stop)
	now := time.Date(2024, 8, 18, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", 1, time.Second))
	require.NoError(t, c.Set(ctx, "default", 2, 0))

	var v int
	hit, _ := c.Get(ctx, "short", &v)
	assert.True(t, hit)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Second)
	hit, _ = c.Get(ctx, "short", &v)
	assert.False(t, hit, "expirada tras su TTL")
	hit, _ = c.Get(ctx, "default", &v)
	assert.True(t, hit, "el TTL por defecto sigue vigente")

	c.purgeExpired()
	c.mu.RLock()
	_, stillThere := c.store["short"]
	c.mu.RUnlock()
	assert.False(t, stillThere)

	require.NoError(t, c.Delete(ctx, "default"))
	hit, _ = c.Get(ctx, "default", &v)
	assert.False(t, hit)
	c.Stop() // idempotente
}
