package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

func newTestRedisCache(t *testing.T) (*redisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, "test", time.Hour).(*redisCache), mr
}

func TestRedisCacheGetOrFetch(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedisCache(t)
	var calls atomic.Int32

	for range 3 {
		segs, err := c.GetOrFetch(ctx, "s1", profileKey, countingFetch(&calls, "likes hiking"))
		require.NoError(t, err)
		require.Len(t, segs, 1)
		assert.Equal(t, "likes hiking", segs[0].TruncatedText)
	}
	assert.EqualValues(t, 1, calls.Load())
}

func TestRedisCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedisCache(t)
	var calls atomic.Int32

	for _, s := range []string{"s1", "s2"} {
		_, err := c.GetOrFetch(ctx, s, profileKey, countingFetch(&calls, "v1"))
		require.NoError(t, err)
	}
	require.NoError(t, c.Invalidate(ctx, profileKey))
	assert.False(t, mr.Exists(c.entryKey("s1", profileKey.String())))
	assert.False(t, mr.Exists(c.holdersKey(profileKey.String())))

	segs, err := c.GetOrFetch(ctx, "s2", profileKey, countingFetch(&calls, "v2"))
	require.NoError(t, err)
	assert.Equal(t, "v2", segs[0].TruncatedText)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRedisCacheEndSessionAndSweep(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedisCache(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	var calls atomic.Int32

	_, err := c.GetOrFetch(ctx, "old", profileKey, countingFetch(&calls, "x"))
	require.NoError(t, err)
	now = now.Add(3 * time.Hour)
	_, err = c.GetOrFetch(ctx, "fresh", profileKey, countingFetch(&calls, "x"))
	require.NoError(t, err)

	n, err := c.Sweep(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists(c.entryKey("old", profileKey.String())))
	assert.True(t, mr.Exists(c.entryKey("fresh", profileKey.String())))

	require.NoError(t, c.EndSession(ctx, "fresh"))
	assert.False(t, mr.Exists(c.sessionKey("fresh")))
}

func TestRedisCacheDegradesWhenUnreachable(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedisCache(t)
	mr.Close()
	var calls atomic.Int32

	segs, err := c.GetOrFetch(ctx, "s1", profileKey, countingFetch(&calls, "x"))
	require.NoError(t, err)
	assert.Len(t, segs, 1)
}

// blockingFetch returns text only after release is closed
func blockingFetch(started chan<- struct{}, release <-chan struct{}, text string) interfaces.FetchFunc {
	return func(ctx context.Context) ([]*types.CandidateSegment, error) {
		close(started)
		<-release
		return []*types.CandidateSegment{{ID: "p1", SourceKind: types.SourceKindProfile, OriginID: "d1", TruncatedText: text}}, nil
	}
}

func TestRedisCacheDropsFetchRacingInvalidation(t *testing.T) {
	tests := []struct {
		name       string
		invalidate func(ctx context.Context, c *redisCache) error
	}{
		{
			name:       "invalidate",
			invalidate: func(ctx context.Context, c *redisCache) error { return c.Invalidate(ctx, profileKey) },
		},
		{
			name:       "end session",
			invalidate: func(ctx context.Context, c *redisCache) error { return c.EndSession(ctx, "s1") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			c, mr := newTestRedisCache(t)
			started, release := make(chan struct{}), make(chan struct{})

			done := make(chan error, 1)
			go func() {
				segs, err := c.GetOrFetch(ctx, "s1", profileKey, blockingFetch(started, release, "old profile"))
				if err == nil && segs[0].TruncatedText != "old profile" {
					err = fmt.Errorf("in-flight caller got %q", segs[0].TruncatedText)
				}
				done <- err
			}()
			<-started
			require.NoError(t, tt.invalidate(ctx, c))
			close(release)
			require.NoError(t, <-done)

			assert.False(t, mr.Exists(c.entryKey("s1", profileKey.String())), "stale result must not be stored")

			var calls atomic.Int32
			segs, err := c.GetOrFetch(ctx, "s1", profileKey, countingFetch(&calls, "new profile"))
			require.NoError(t, err)
			assert.Equal(t, "new profile", segs[0].TruncatedText)
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestRedisCacheStoresWhenUndisturbed(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedisCache(t)
	require.NoError(t, c.Invalidate(ctx, profileKey))

	var calls atomic.Int32
	_, err := c.GetOrFetch(ctx, "s1", profileKey, countingFetch(&calls, "v1"))
	require.NoError(t, err)
	assert.True(t, mr.Exists(c.entryKey("s1", profileKey.String())))
	assert.True(t, mr.Exists(c.genKey(profileKey.String())))
}
