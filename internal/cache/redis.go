package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oggyb/buildermatch/internal/config"
	"github.com/redis/go-redis/v9"
)

// ErrQuotaExceeded is returned by ReserveSuperConnect when the day's quota is used up.
var ErrQuotaExceeded = errors.New("super-connect quota exceeded")

// unreadTTL bounds how long a cached unread badge can outlive a missed invalidation.
const unreadTTL = 10 * time.Minute

// unreadGenTTL outlives any in-flight fill by a wide margin.
const unreadGenTTL = 24 * time.Hour

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// KeyForSuperConnects generates the Redis key for an actor's super-connect
// counter on the UTC calendar day containing day.
func (c *RedisCache) KeyForSuperConnects(actorID string, day time.Time) string {
	return fmt.Sprintf("superconnect:%s:%s", actorID, day.UTC().Format("20060102"))
}

// KeyForUnread generates the Redis key for viewer's unread badge on a match.
func (c *RedisCache) KeyForUnread(matchID, viewerID string) string {
	return fmt.Sprintf("unread:%s:%s", matchID, viewerID)
}

// ReserveSuperConnect atomically takes one unit of the actor's daily quota.
//
// Behavior:
//  1. If the day's counter is missing, it is seeded from seed() (the ledger count)
//     with a TTL running past the end of the UTC day.
//  2. INCR takes a unit; above limit the unit is returned and ErrQuotaExceeded reported.
//  3. The returned release func gives the unit back when the swipe write fails.
func (c *RedisCache) ReserveSuperConnect(
	ctx context.Context,
	actorID string,
	now time.Time,
	limit int,
	seed func(ctx context.Context) (int64, error),
) (used int64, release func(context.Context), err error) {
	key := c.KeyForSuperConnects(actorID, now)

	exists, err := c.Client.Exists(ctx, key).Result()
	if err != nil {
		return 0, nil, err
	}
	if exists == 0 {
		n, err := seed(ctx)
		if err != nil {
			return 0, nil, err
		}
		if err := c.Client.SetNX(ctx, key, n, untilEndOfDay(now)).Err(); err != nil {
			return 0, nil, err
		}
	}

	used, err = c.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, nil, err
	}
	release = func(ctx context.Context) {
		_ = c.Client.Decr(ctx, key).Err()
	}
	if used > int64(limit) {
		release(ctx)
		return used - 1, nil, ErrQuotaExceeded
	}
	return used, release, nil
}

// SuperConnectsUsed reads the day's counter. found is false on a cache miss.
func (c *RedisCache) SuperConnectsUsed(ctx context.Context, actorID string, now time.Time) (used int64, found bool, err error) {
	val, err := c.Client.Get(ctx, c.KeyForSuperConnects(actorID, now)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil // cache miss
	} else if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// GetUnread returns the cached unread badge. found is false on a miss.
func (c *RedisCache) GetUnread(ctx context.Context, matchID, viewerID string) (int64, bool, error) {
	val, err := c.Client.Get(ctx, c.KeyForUnread(matchID, viewerID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// UnreadGeneration reads the badge's invalidation counter. Read it before
// counting in the DB and hand it to FillUnread.
func (c *RedisCache) UnreadGeneration(ctx context.Context, matchID, viewerID string) (string, error) {
	gen, err := c.Client.Get(ctx, c.keyForUnreadGen(matchID, viewerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

// fillUnread sets the badge only while the generation still matches ARGV[1].
var fillUnread = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[3])
return 1
`)

// FillUnread caches a DB count taken after UnreadGeneration returned gen.
// It is a no-op when an invalidation ran in between; stored is false then.
func (c *RedisCache) FillUnread(ctx context.Context, matchID, viewerID, gen string, count int64) (stored bool, err error) {
	keys := []string{c.KeyForUnread(matchID, viewerID), c.keyForUnreadGen(matchID, viewerID)}
	n, err := fillUnread.Run(ctx, c.Client, keys, gen, count, int(unreadTTL/time.Second)).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// InvalidateUnread drops viewer's cached badge and bumps its generation so a
// fill racing with this call cannot store a count taken before it.
func (c *RedisCache) InvalidateUnread(ctx context.Context, matchID, viewerID string) error {
	genKey := c.keyForUnreadGen(matchID, viewerID)
	_, err := c.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.KeyForUnread(matchID, viewerID))
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, unreadGenTTL)
		return nil
	})
	return err
}

func (c *RedisCache) keyForUnreadGen(matchID, viewerID string) string {
	return c.KeyForUnread(matchID, viewerID) + ":gen"
}

// untilEndOfDay is the TTL from now until one hour past the next UTC midnight.
func untilEndOfDay(now time.Time) time.Duration {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(now) + time.Hour
}

// StartOfDay returns the UTC midnight that opens the quota window containing now.
func StartOfDay(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
