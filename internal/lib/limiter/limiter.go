// Package limiter implements a fixed window request limiter on Redis.
package limiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// INCR and EXPIRE run atomically; the window starts with the first hit.
var fixedWindow = redis.NewScript(`
	local current = redis.call("INCR", KEYS[1])
	if current == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	if current > tonumber(ARGV[1]) then
		return 0
	end
	return 1
`)

type FixedWindow struct {
	rdb    redis.Scripter
	prefix string
	limit  int
	window time.Duration
}

func NewFixedWindow(rdb redis.Scripter, prefix string, limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		rdb:    rdb,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Allow counts a hit for key and reports whether it is within the limit.
// A non-positive limit disables limiting.
func (f *FixedWindow) Allow(ctx context.Context, key string) (bool, error) {
	if f.limit <= 0 {
		return true, nil
	}
	result, err := fixedWindow.Run(ctx, f.rdb, []string{f.prefix + key}, f.limit, f.window.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}
