package coordination

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goclaw/mnemo/config"
	"github.com/goclaw/mnemo/pkg/memory"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ memory.WriterGate = (*RedisGate)(nil)

func requireRedisClient(tb testing.TB) *redis.Client {
	tb.Helper()

	addr := os.Getenv("MNEMO_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	client, err := NewClient(context.Background(), config.RedisConfig{Address: addr, DialTimeout: 500 * time.Millisecond})
	if err != nil {
		tb.Skipf("redis is not available at %s: %v", addr, err)
	}
	tb.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func testPrefix() string {
	return fmt.Sprintf("mnemo:test:%d:", time.Now().UnixNano())
}

func TestRedisGate_MutualExclusion(t *testing.T) {
	client := requireRedisClient(t)
	gate := NewRedisGate(client, testPrefix(), 5*time.Second, WithRetryInterval(5*time.Millisecond))
	defer client.Del(context.Background(), gate.Key())

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := gate.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				cur := maxInside.Load()
				if n <= cur || maxInside.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestRedisGate_AcquireHonoursContext(t *testing.T) {
	client := requireRedisClient(t)
	gate := NewRedisGate(client, testPrefix(), 5*time.Second, WithRetryInterval(5*time.Millisecond))

	release, err := gate.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = gate.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisGate_ReleaseKeepsForeignLock(t *testing.T) {
	client := requireRedisClient(t)
	ctx := context.Background()
	gate := NewRedisGate(client, testPrefix(), 50*time.Millisecond, WithRetryInterval(5*time.Millisecond))
	defer client.Del(ctx, gate.Key())

	stale, err := gate.Acquire(ctx)
	require.NoError(t, err)

	// The first holder's TTL lapses and another holder takes over.
	time.Sleep(80 * time.Millisecond)
	_, err = gate.Acquire(ctx)
	require.NoError(t, err)

	stale()
	exists, err := client.Exists(ctx, gate.Key()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}

func TestRedisGate_Close(t *testing.T) {
	client := requireRedisClient(t)
	gate := NewRedisGate(client, testPrefix(), 5*time.Second, WithRetryInterval(5*time.Millisecond))

	release, err := gate.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	go func() {
		time.Sleep(20 * time.Millisecond)
		gate.Close()
	}()
	_, err = gate.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrGateClosed)
	gate.Close()
}

func TestNewClient_Unreachable(t *testing.T) {
	_, err := NewClient(context.Background(), config.RedisConfig{Address: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	assert.Error(t, err)
}
