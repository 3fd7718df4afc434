package directory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/normalize"
)

const (
	keyPrefix = "parcabul:vendor:"
	// absent marks a phone the backing directory has no record for.
	absent = "-"
)

// Cache is the subset of the go-redis client used for directory caching.
type Cache interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedDirectory serves lookups from Redis and falls through to the next
// directory for phones it has not seen within the TTL.
type CachedDirectory struct {
	next Directory
	rdb  Cache
	ttl  time.Duration
}

// NewCachedDirectory wraps next with a Redis read-through cache.
func NewCachedDirectory(next Directory, rdb Cache, ttl time.Duration) *CachedDirectory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedDirectory{next: next, rdb: rdb, ttl: ttl}
}

// NewRedisClient builds a go-redis client from connection settings.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func cacheKey(phone string) string { return keyPrefix + phone }

// FindByPhones returns cached entries and resolves misses through the
// wrapped directory. Cache errors are logged and treated as misses.
func (c *CachedDirectory) FindByPhones(ctx context.Context, phones []string) (map[string]model.SupplierRecord, error) {
	keys := normalize.Phones(phones)
	out := make(map[string]model.SupplierRecord, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	misses := c.readCached(ctx, keys, out)
	if len(misses) == 0 {
		return out, nil
	}

	found, err := c.next.FindByPhones(ctx, misses)
	if err != nil {
		return nil, eris.Wrap(err, "directory: cache fill")
	}
	for _, p := range misses {
		rec, ok := found[p]
		if ok {
			out[p] = rec
		}
		c.write(ctx, p, rec, ok)
	}
	return out, nil
}

func (c *CachedDirectory) readCached(ctx context.Context, phones []string, out map[string]model.SupplierRecord) []string {
	redisKeys := make([]string, len(phones))
	for i, p := range phones {
		redisKeys[i] = cacheKey(p)
	}

	vals, err := c.rdb.MGet(ctx, redisKeys...).Result()
	if err != nil || len(vals) != len(phones) {
		zap.L().Warn("directory: cache read failed", zap.Error(err), zap.Int("phones", len(phones)))
		return phones
	}

	var misses []string
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			misses = append(misses, phones[i])
			continue
		}
		if s == absent {
			continue
		}
		var rec model.SupplierRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			zap.L().Debug("directory: bad cache entry", zap.String("phone", phones[i]), zap.Error(err))
			misses = append(misses, phones[i])
			continue
		}
		out[phones[i]] = rec
	}
	zap.L().Debug("directory: cache lookup",
		zap.Int("phones", len(phones)),
		zap.Int("misses", len(misses)),
	)
	return misses
}

func (c *CachedDirectory) write(ctx context.Context, phone string, rec model.SupplierRecord, found bool) {
	val := absent
	if found {
		b, err := json.Marshal(rec)
		if err != nil {
			return
		}
		val = string(b)
	}
	if err := c.rdb.Set(ctx, cacheKey(phone), val, c.ttl).Err(); err != nil {
		zap.L().Warn("directory: cache write failed", zap.String("phone", phone), zap.Error(err))
	}
}

// Invalidate drops cached entries for the given phones after a vendor
// create, update or delete.
func (c *CachedDirectory) Invalidate(ctx context.Context, phones ...string) error {
	keys := normalize.Phones(phones)
	if len(keys) == 0 {
		return nil
	}
	redisKeys := make([]string, len(keys))
	for i, p := range keys {
		redisKeys[i] = cacheKey(p)
	}
	return eris.Wrap(c.rdb.Del(ctx, redisKeys...).Err(), "directory: invalidate")
}
