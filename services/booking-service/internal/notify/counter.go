package notify

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type NopCounter struct{}

func (NopCounter) Get(context.Context, string) (int, bool, error)    { return 0, false, nil }
func (NopCounter) Generation(context.Context, string) (int64, error) { return 0, nil }
func (NopCounter) Set(context.Context, string, int, int64) error     { return nil }
func (NopCounter) Invalidate(context.Context, ...string) error       { return nil }

// RedisCounter caches unread counts under "unread:<recipient>" with a TTL so
// a missed invalidation heals itself. Every invalidation bumps
// "unread:gen:<recipient>"; a fill only lands if the generation it read
// before counting is still current.
type RedisCounter struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

const genTTL = 24 * time.Hour

// KEYS[1] value key, KEYS[2] generation key
// ARGV[1] count, ARGV[2] expected generation, ARGV[3] ttl ms
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if (gen or '0') ~= ARGV[2] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

func NewRedisCounter(rdb redis.Cmdable, ttl time.Duration) *RedisCounter {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCounter{rdb: rdb, ttl: ttl, prefix: "unread"}
}

func (c *RedisCounter) key(recipientID string) string {
	return c.prefix + ":" + recipientID
}

func (c *RedisCounter) genKey(recipientID string) string {
	return c.prefix + ":gen:" + recipientID
}

func (c *RedisCounter) Get(ctx context.Context, recipientID string) (int, bool, error) {
	n, err := c.rdb.Get(ctx, c.key(recipientID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (c *RedisCounter) Generation(ctx context.Context, recipientID string) (int64, error) {
	g, err := c.rdb.Get(ctx, c.genKey(recipientID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return g, err
}

func (c *RedisCounter) Set(ctx context.Context, recipientID string, n int, gen int64) error {
	return fillScript.Run(ctx, c.rdb,
		[]string{c.key(recipientID), c.genKey(recipientID)},
		n, strconv.FormatInt(gen, 10), c.ttl.Milliseconds(),
	).Err()
}

func (c *RedisCounter) Invalidate(ctx context.Context, recipientIDs ...string) error {
	pipe := c.rdb.TxPipeline()
	queued := 0
	for _, id := range recipientIDs {
		if id == "" {
			continue
		}
		pipe.Incr(ctx, c.genKey(id))
		pipe.Expire(ctx, c.genKey(id), genTTL)
		pipe.Del(ctx, c.key(id))
		queued++
	}
	if queued == 0 {
		return nil
	}
	_, err := pipe.Exec(ctx)
	return err
}
