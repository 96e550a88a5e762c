package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/autoflow/config"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	manager, err := NewManager(Config{
		Addr:       mr.Addr(),
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestNewManager_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewManager(Config{Addr: addr}, zap.NewNop())
	assert.Error(t, err)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.RedisConfig{Addr: "redis:6379", DB: 2, PoolSize: 4, TTL: time.Hour})
	assert.Equal(t, "redis:6379", cfg.Addr)
	assert.Equal(t, 2, cfg.DB)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, time.Hour, cfg.DefaultTTL)
	assert.Equal(t, DefaultConfig().MinIdleConns, cfg.MinIdleConns)
	assert.False(t, cfg.TLS)

	assert.True(t, ConfigFrom(config.RedisConfig{Addr: "redis:6380", TLS: true}).TLS)
}

func TestManager_SetAndGet(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "test-key", "test-value", time.Minute))

	value, err := manager.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, "test-value", value)
}

func TestManager_GetNonExistent(t *testing.T) {
	_, manager := setupTestRedis(t)

	_, err := manager.Get(context.Background(), "missing")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Delete(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k1", "v1", 0))
	require.NoError(t, manager.Set(ctx, "k2", "v2", 0))
	require.NoError(t, manager.Delete(ctx, "k1", "k2"))
	require.NoError(t, manager.Delete(ctx))

	_, err := manager.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_JSON(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, manager.SetJSON(ctx, "json", payload{Name: "x", Count: 3}, 0))

	var got payload
	require.NoError(t, manager.GetJSON(ctx, "json", &got))
	assert.Equal(t, payload{Name: "x", Count: 3}, got)

	assert.ErrorIs(t, manager.GetJSON(ctx, "missing", &got), ErrCacheMiss)

	// 不可序列化
	assert.Error(t, manager.SetJSON(ctx, "bad", make(chan int), 0))

	require.NoError(t, manager.Set(ctx, "broken", "{not json", 0))
	assert.Error(t, manager.GetJSON(ctx, "broken", &got))
}

func TestManager_TTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "short", "v", 2*time.Second))
	require.NoError(t, manager.Set(ctx, "default", "v", 0))
	assert.Equal(t, time.Minute, mr.TTL("default"))

	mr.FastForward(3 * time.Second)
	_, err := manager.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = manager.Get(ctx, "default")
	assert.NoError(t, err)
}

func TestManager_Update(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	appendX := func(old string) (string, error) { return old + "x", nil }

	assert.ErrorIs(t, manager.Update(ctx, "absent", 0, appendX), ErrCacheMiss)
	_, err := manager.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrCacheMiss, "update must not create keys")

	require.NoError(t, manager.Set(ctx, "k", "", 0))
	require.NoError(t, manager.Update(ctx, "k", 0, appendX))
	v, err := manager.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	boom := errors.New("boom")
	err = manager.Update(ctx, "k", 0, func(string) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}

func TestManager_ConcurrentUpdates(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, manager.Set(ctx, "counter", "0", 0))

	var wg sync.WaitGroup
	var failed sync.Map
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := manager.Update(ctx, "counter", 0, func(old string) (string, error) {
				n, err := strconv.Atoi(old)
				if err != nil {
					return "", err
				}
				return strconv.Itoa(n + 1), nil
			})
			if err != nil {
				failed.Store(i, err)
			}
		}(i)
	}
	wg.Wait()

	applied := 4
	failed.Range(func(_, _ any) bool { applied--; return true })
	v, err := manager.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(applied), v, "every successful update is reflected exactly once")
}

func TestManager_Ping(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	assert.NoError(t, manager.Ping(ctx))

	mr.Close()
	assert.Error(t, manager.Ping(ctx))
}

func TestManager_Close(t *testing.T) {
	mr := miniredis.RunT(t)
	manager, err := NewManager(Config{Addr: mr.Addr(), HealthCheckInterval: 10 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	ctx := context.Background()
	assert.ErrorIs(t, manager.Set(ctx, "k", "v", 0), ErrClosed)
	_, err = manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, manager.Update(ctx, "k", 0, nil), ErrClosed)
	assert.ErrorIs(t, manager.Delete(ctx, "k"), ErrClosed)
	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
}
