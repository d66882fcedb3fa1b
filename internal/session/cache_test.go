package session

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/authava/authgate/internal/rules"
)

func testSession() rules.Session {
	return rules.Session{
		User:     rules.User{ID: "u1", Email: "u1@example.com", Roles: []string{"admin"}},
		TenantID: "tenant-1",
	}
}

func TestMemoryGetPut(t *testing.T) {
	cache := NewMemory()
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "token", testSession(), 50*time.Millisecond))

	got, ok, err := cache.Get(ctx, "token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "u1", got.User.ID)

	// Idempotent within the TTL window (property 3).
	got2, ok, err := cache.Get(ctx, "token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, got, got2)
}

func TestMemoryExpiry(t *testing.T) {
	cache := NewMemory()
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "token", testSession(), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, ok, err := cache.Get(ctx, "token")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryEvictIsIdempotent(t *testing.T) {
	cache := NewMemory()
	ctx := context.Background()

	require.NoError(t, cache.Evict(ctx, "missing"))
	require.NoError(t, cache.Put(ctx, "token", testSession(), time.Minute))
	require.NoError(t, cache.Evict(ctx, "token"))
	require.NoError(t, cache.Evict(ctx, "token"))

	_, ok, _ := cache.Get(ctx, "token")
	require.False(t, ok)
}

func TestRedisGetPutEvict(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	cache, err := NewRedis(RedisConfig{Address: server.Addr()})
	require.NoError(t, err)
	defer cache.Close(context.Background())
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "token", testSession(), time.Minute))

	got, ok, err := cache.Get(ctx, "token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "u1", got.User.ID)

	require.NoError(t, cache.Evict(ctx, "token"))
	_, ok, err = cache.Get(ctx, "token")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisGetMissReturnsNoError(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	cache, err := NewRedis(RedisConfig{Address: server.Addr()})
	require.NoError(t, err)
	defer cache.Close(context.Background())

	_, ok, err := cache.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

// Cache transparency (property 4): swapping Memory for the disabled backend
// must not change the pipeline's behavior, only its latency.
func TestDisabledCacheAlwaysMisses(t *testing.T) {
	var c Cache = NewDisabled()
	require.NoError(t, c.Put(context.Background(), "token", testSession(), time.Minute))
	_, ok, err := c.Get(context.Background(), "token")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Evict(context.Background(), "token"))
	require.NoError(t, c.Close(context.Background()))
}
