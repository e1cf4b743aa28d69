package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// El PTTL repara claves que quedaron sin expiracion si el PEXPIRE inicial fallo.
const redisStartAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 or redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`

const redisStartTimeout = 500 * time.Millisecond

type redisStartLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// NewRedisStartLimiter comparte el conteo entre replicas; ante errores de Redis deja pasar.
func NewRedisStartLimiter(client *redis.Client, window time.Duration, max int) StartLimiter {
	if client == nil {
		return nil
	}
	return newRedisStartLimiter(client, window, max)
}

func newRedisStartLimiter(client redisEvaler, window time.Duration, max int) *redisStartLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisStartLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "coach:start:",
	}
}

func (l *redisStartLimiter) Allow(ctx context.Context, variant, client string) bool {
	if l == nil || l.client == nil {
		return true
	}
	key := startKey(variant, client)
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, redisStartTimeout)
	defer cancel()

	window := l.window
	if window <= 0 {
		window = time.Minute
	}
	count, err := l.client.Eval(ctx, redisStartAllowScript, []string{l.prefix + key}, window.Milliseconds()).Int()
	if err != nil {
		return true
	}
	return count <= l.max
}
