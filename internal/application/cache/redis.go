package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

// redisCache shares entries across service replicas. Keys:
//
//	{prefix}:entry:{session}:{key}  JSON segments, expires after ttl
//	{prefix}:session:{session}      set of cache keys held by the session
//	{prefix}:holders:{key}          set of sessions holding the key
//	{prefix}:touched                zset of sessions by last access
//	{prefix}:gen:{key}              bumped by Invalidate
//	{prefix}:sgen:{session}         bumped by EndSession
//
// A fetch stores its result only if neither generation moved while it ran,
// so an invalidation racing a fetch is never overwritten by stale data.
// Fetch serialization is per process; two replicas may both fetch a cold
// key once, which only costs a duplicate read.
type redisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRedisCache creates a session cache on Redis
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) interfaces.SessionCache {
	return &redisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (c *redisCache) entryKey(sessionID, key string) string {
	return fmt.Sprintf("%s:entry:%s:%s", c.prefix, sessionID, key)
}

func (c *redisCache) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", c.prefix, sessionID)
}

func (c *redisCache) holdersKey(key string) string {
	return fmt.Sprintf("%s:holders:%s", c.prefix, key)
}

func (c *redisCache) genKey(key string) string {
	return fmt.Sprintf("%s:gen:%s", c.prefix, key)
}

func (c *redisCache) sessionGenKey(sessionID string) string {
	return fmt.Sprintf("%s:sgen:%s", c.prefix, sessionID)
}

// generation reads the key and session generations as one comparable value
func (c *redisCache) generation(ctx context.Context, r redis.Cmdable, sessionID, key string) (string, error) {
	vals, err := r.MGet(ctx, c.genKey(key), c.sessionGenKey(sessionID)).Result()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v/%v", vals[0], vals[1]), nil
}

func (c *redisCache) touchedKey() string {
	return c.prefix + ":touched"
}

func (c *redisCache) lock(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	return l
}

func (c *redisCache) GetOrFetch(ctx context.Context,
	sessionID string, key types.CacheKey, fetch interfaces.FetchFunc,
) ([]*types.CandidateSegment, error) {
	if !key.Cacheable() || sessionID == "" {
		return fetch(ctx)
	}
	k := key.String()
	entryKey := c.entryKey(sessionID, k)
	l := c.lock(entryKey)
	l.Lock()
	defer l.Unlock()

	c.touch(ctx, sessionID)

	raw, err := c.client.Get(ctx, entryKey).Bytes()
	switch {
	case err == nil:
		var segs []*types.CandidateSegment
		if jsonErr := json.Unmarshal(raw, &segs); jsonErr == nil {
			return segs, nil
		}
		logger.Warnf(ctx, "[RedisCache] Dropping undecodable entry %s", entryKey)
	case !errors.Is(err, redis.Nil):
		// an unreachable cache degrades to a direct fetch
		logger.Warnf(ctx, "[RedisCache] Get %s failed: %v", entryKey, err)
		return fetch(ctx)
	}

	gen, err := c.generation(ctx, c.client, sessionID, k)
	if err != nil {
		logger.Warnf(ctx, "[RedisCache] Generation read for %s failed: %v", entryKey, err)
		return fetch(ctx)
	}

	segs, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(segs)
	if err != nil {
		return segs, nil
	}
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.generation(ctx, tx, sessionID, k)
		if err != nil {
			return err
		}
		if current != gen {
			logger.Infof(ctx, "[RedisCache] %s changed during fetch, not storing", entryKey)
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, entryKey, payload, c.ttl)
			p.SAdd(ctx, c.sessionKey(sessionID), k)
			p.SAdd(ctx, c.holdersKey(k), sessionID)
			return nil
		})
		return err
	}, c.genKey(k), c.sessionGenKey(sessionID))
	if err != nil {
		// redis.TxFailedErr means a generation moved between check and write
		logger.Warnf(ctx, "[RedisCache] Store %s skipped: %v", entryKey, err)
	}
	return segs, nil
}

func (c *redisCache) touch(ctx context.Context, sessionID string) {
	if err := c.client.ZAdd(ctx, c.touchedKey(), redis.Z{
		Score:  float64(c.now().Unix()),
		Member: sessionID,
	}).Err(); err != nil {
		logger.Warnf(ctx, "[RedisCache] Touch %s failed: %v", sessionID, err)
	}
}

func (c *redisCache) Invalidate(ctx context.Context, key types.CacheKey) error {
	k := key.String()
	sessions, err := c.client.SMembers(ctx, c.holdersKey(k)).Result()
	if err != nil {
		return fmt.Errorf("failed to read holders of %s: %w", k, err)
	}
	_, err = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, c.genKey(k))
		for _, s := range sessions {
			p.Del(ctx, c.entryKey(s, k))
			p.SRem(ctx, c.sessionKey(s), k)
		}
		p.Del(ctx, c.holdersKey(k))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", k, err)
	}
	logger.Infof(ctx, "[RedisCache] Invalidated %s in %d sessions", k, len(sessions))
	return nil
}

func (c *redisCache) EndSession(ctx context.Context, sessionID string) error {
	keys, err := c.client.SMembers(ctx, c.sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}
	_, err = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, c.sessionGenKey(sessionID))
		if c.ttl > 0 {
			p.Expire(ctx, c.sessionGenKey(sessionID), c.ttl)
		}
		for _, k := range keys {
			p.Del(ctx, c.entryKey(sessionID, k))
			p.SRem(ctx, c.holdersKey(k), sessionID)
		}
		p.Del(ctx, c.sessionKey(sessionID))
		p.ZRem(ctx, c.touchedKey(), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", sessionID, err)
	}

	c.mu.Lock()
	for _, k := range keys {
		delete(c.locks, c.entryKey(sessionID, k))
	}
	c.mu.Unlock()
	return nil
}

func (c *redisCache) Sweep(ctx context.Context, idle time.Duration) (int, error) {
	cutoff := c.now().Add(-idle).Unix()
	stale, err := c.client.ZRangeByScore(ctx, c.touchedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list idle sessions: %w", err)
	}
	for _, s := range stale {
		if err := c.EndSession(ctx, s); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
