// Package cache holds the per-session cache of session-invariant sources.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

type memoryEntry struct {
	mu       sync.Mutex
	loaded   bool
	segments []*types.CandidateSegment
}

type memorySession struct {
	entries   map[string]*memoryEntry
	touchedAt time.Time
}

// memoryCache keeps entries in process. The outer lock guards the maps only;
// fetches run under the entry lock so one session never fetches a key twice.
type memoryCache struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	now      func() time.Time
}

// NewMemoryCache creates an in-process session cache
func NewMemoryCache() interfaces.SessionCache {
	return newMemoryCache(time.Now)
}

func newMemoryCache(now func() time.Time) *memoryCache {
	return &memoryCache{sessions: make(map[string]*memorySession), now: now}
}

func (c *memoryCache) entry(sessionID string, key types.CacheKey) *memoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[sessionID]
	if !ok {
		sess = &memorySession{entries: make(map[string]*memoryEntry)}
		c.sessions[sessionID] = sess
	}
	sess.touchedAt = c.now()
	e, ok := sess.entries[key.String()]
	if !ok {
		e = &memoryEntry{}
		sess.entries[key.String()] = e
	}
	return e
}

func (c *memoryCache) GetOrFetch(ctx context.Context,
	sessionID string, key types.CacheKey, fetch interfaces.FetchFunc,
) ([]*types.CandidateSegment, error) {
	if !key.Cacheable() || sessionID == "" {
		return fetch(ctx)
	}
	e := c.entry(sessionID, key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		logger.Debugf(ctx, "[SessionCache] Hit %s for session %s", key, sessionID)
		return cloneSegments(e.segments), nil
	}
	segs, err := fetch(ctx)
	if err != nil {
		// failures are not cached, the next turn retries
		return nil, err
	}
	e.segments = cloneSegments(segs)
	e.loaded = true
	return segs, nil
}

func (c *memoryCache) Invalidate(ctx context.Context, key types.CacheKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for _, sess := range c.sessions {
		if _, ok := sess.entries[key.String()]; ok {
			delete(sess.entries, key.String())
			dropped++
		}
	}
	logger.Infof(ctx, "[SessionCache] Invalidated %s in %d sessions", key, dropped)
	return nil
}

func (c *memoryCache) EndSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	return nil
}

func (c *memoryCache) Sweep(ctx context.Context, idle time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-idle)
	n := 0
	for id, sess := range c.sessions {
		if sess.touchedAt.Before(cutoff) {
			delete(c.sessions, id)
			n++
		}
	}
	return n, nil
}

// cloneSegments copies segments so callers can hydrate text without
// touching cached values
func cloneSegments(in []*types.CandidateSegment) []*types.CandidateSegment {
	if in == nil {
		return nil
	}
	out := make([]*types.CandidateSegment, len(in))
	for i, s := range in {
		cp := *s
		out[i] = &cp
	}
	return out
}
