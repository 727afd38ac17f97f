// Package coordination serialises evolution commits across processes that
// share one store.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goclaw/mnemo/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrGateClosed is returned by Acquire after Close.
var ErrGateClosed = errors.New("coordination: gate closed")

// RedisGate is a single-holder lock on one Redis key. The TTL bounds how
// long a crashed holder can block others.
type RedisGate struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	retry  time.Duration
	closed chan struct{}
}

// GateOption configures a RedisGate.
type GateOption func(*RedisGate)

// WithRetryInterval sets how often a waiting Acquire polls.
func WithRetryInterval(d time.Duration) GateOption {
	return func(g *RedisGate) {
		if d > 0 {
			g.retry = d
		}
	}
}

// NewRedisGate creates a gate on prefix+"evolution:lock".
func NewRedisGate(client redis.UniversalClient, prefix string, ttl time.Duration, opts ...GateOption) *RedisGate {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	g := &RedisGate{
		client: client,
		key:    prefix + "evolution:lock",
		ttl:    ttl,
		retry:  100 * time.Millisecond,
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Key returns the lock key.
func (g *RedisGate) Key() string {
	return g.key
}

// Acquire blocks until the lock is held or ctx ends.
func (g *RedisGate) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ticker := time.NewTicker(g.retry)
	defer ticker.Stop()

	for {
		ok, err := g.client.SetNX(ctx, g.key, token, g.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", g.key, err)
		}
		if ok {
			return func() { g.release(token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-g.closed:
			return nil, ErrGateClosed
		case <-ticker.C:
		}
	}
}

func (g *RedisGate) release(token string) {
	// Release must not be skipped because the caller's context ended.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, g.client, []string{g.key}, token).Err()
}

// Close stops pending Acquire calls. It does not close the client.
func (g *RedisGate) Close() {
	select {
	case <-g.closed:
	default:
		close(g.closed)
	}
}

// NewClient creates a Redis client from cfg and verifies it with PING.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dial,
	})
	pingCtx, cancel := context.WithTimeout(ctx, dial)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Address, err)
	}
	return client, nil
}
