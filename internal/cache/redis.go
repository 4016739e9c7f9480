package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bookingcore/internal/domain/models"
)

// Connect opens a redis client and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// BookingViews caches read projections of bookings, keyed by booking id.
// Writers store the fresh view after every mutation and Set never replaces a
// newer version, so a reader that loaded before a write cannot put a stale
// view back.
type BookingViews struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewBookingViews(client *redis.Client, ttl time.Duration) *BookingViews {
	return &BookingViews{Client: client, TTL: ttl}
}

func key(id int64) string { return fmt.Sprintf("booking:view:%d", id) }

// setIfNewer stores ARGV[2] at version ARGV[1] unless the cached version is
// the same or higher. ARGV[3] is the TTL in milliseconds.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

func (c *BookingViews) Get(ctx context.Context, id int64) (models.BookingView, bool, error) {
	raw, err := c.Client.HGet(ctx, key(id), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return models.BookingView{}, false, nil
	}
	if err != nil {
		return models.BookingView{}, false, err
	}
	var v models.BookingView
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.BookingView{}, false, err
	}
	return v, true, nil
}

// Set caches v unless a view with the same or a later version is cached.
// It reports whether v was stored.
func (c *BookingViews) Set(ctx context.Context, v models.BookingView) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	stored, err := setIfNewer.Run(ctx, c.Client, []string{key(v.ID)}, v.Version, raw, c.TTL.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

func (c *BookingViews) Invalidate(ctx context.Context, id int64) error {
	return c.Client.Del(ctx, key(id)).Err()
}
