package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sotruth/dualtrack/internal/domain"
	"github.com/sotruth/dualtrack/internal/ports"
)

// cacheContract exercises the behavior every CacheStore must share.
func cacheContract(t *testing.T, c ports.CacheStore) {
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "eval:1:101:m")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "eval:1:101:m", []byte(`{"totalScore":20}`), 0))
	require.NoError(t, c.Set(ctx, "eval:1:102:m", []byte(`{"totalScore":15}`), time.Minute))

	got, ok, err := c.Get(ctx, "eval:1:101:m")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"totalScore":20}`, string(got))

	require.NoError(t, c.Delete(ctx, "eval:1:101:m"))
	require.NoError(t, c.Delete(ctx, "never-set"))
	_, ok, err = c.Get(ctx, "eval:1:101:m")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Clear(ctx))
	_, ok, err = c.Get(ctx, "eval:1:102:m")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	m := NewMemory(0)
	t.Cleanup(func() { m.Close() })
	cacheContract(t, m)
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory(0)
	t.Cleanup(func() { m.Close() })
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "short", []byte("x"), 20*time.Millisecond))
	require.NoError(t, m.Set(ctx, "forever", []byte("y"), 0))

	assert.Eventually(t, func() bool {
		_, ok, _ := m.Get(ctx, "short")
		return !ok
	}, time.Second, 10*time.Millisecond)

	_, ok, err := m.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_DefaultTTL(t *testing.T) {
	m := NewMemory(20 * time.Millisecond)
	t.Cleanup(func() { m.Close() })
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("DUALTRACK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DUALTRACK_TEST_REDIS_ADDR not set")
	}
	c, err := NewRedis(context.Background(), WithAddress(addr), WithPrefix("dualtrack-test:"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	cacheContract(t, c)
}

func TestNewRedis_Unreachable(t *testing.T) {
	_, err := NewRedis(context.Background(), WithAddress("127.0.0.1:1"), WithDialTimeout(100*time.Millisecond))
	var cacheErr *ports.CacheError
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "ping", cacheErr.Operation)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	c, err := Open(ctx, Config{Driver: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = Open(ctx, Config{Driver: "memory", TTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)
	c.(*Memory).Close()

	_, err = Open(ctx, Config{Driver: "memcached"})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}
