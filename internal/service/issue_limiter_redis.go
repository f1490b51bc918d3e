package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// INCR + EXPIRE atomico: la ventana arranca con el primer desafio emitido.
const redisIssueAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// redisIssueLimiter cuenta en verify:rl:<kind>:<id>:<email>, compartido entre instancias.
type redisIssueLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

// NewRedisIssueLimiter comparte el conteo entre instancias; ante errores de Redis deja pasar.
func NewRedisIssueLimiter(client *redis.Client, window time.Duration, max int) IssueLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisIssueLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "verify:rl:",
	}
}

func (l *redisIssueLimiter) Allow(ctx context.Context, target Target) bool {
	if l == nil || l.client == nil {
		return true
	}
	key := target.limiterKey()
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	count, err := l.client.Eval(ctx, redisIssueAllowScript, []string{l.prefix + key}, seconds).Int()
	if err != nil {
		return true
	}
	return count <= l.max
}
