package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

var profileKey = types.CacheKey{RelationshipID: "r1", Kind: types.SourceKindProfile}

func countingFetch(calls *atomic.Int32, text string) interfaces.FetchFunc {
	return func(ctx context.Context) ([]*types.CandidateSegment, error) {
		calls.Add(1)
		time.Sleep(5 * time.Millisecond)
		return []*types.CandidateSegment{{ID: "p1", SourceKind: types.SourceKindProfile, OriginID: "d1", TruncatedText: text}}, nil
	}
}

func TestMemoryCacheFetchesOncePerSession(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	c := NewMemoryCache()
	var calls atomic.Int32

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			segs, err := c.GetOrFetch(ctx, "s1", profileKey, countingFetch(&calls, "likes hiking"))
			assert.NoError(t, err)
			assert.Len(t, segs, 1)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load())

	_, err := c.GetOrFetch(ctx, "s2", profileKey, countingFetch(&calls, "likes hiking"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load(), "other sessions fetch their own copy")
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	var calls atomic.Int32

	first, err := c.GetOrFetch(ctx, "s1", profileKey, countingFetch(&calls, "original"))
	require.NoError(t, err)
	first[0].RawText = "mutated by caller"

	second, err := c.GetOrFetch(ctx, "s1", profileKey, countingFetch(&calls, "original"))
	require.NoError(t, err)
	assert.Empty(t, second[0].RawText)
}

func TestMemoryCacheNonCacheableKinds(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	var calls atomic.Int32
	key := types.CacheKey{RelationshipID: "r1", Kind: types.SourceKindTranscript}

	for range 3 {
		_, err := c.GetOrFetch(ctx, "s1", key, countingFetch(&calls, "x"))
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, calls.Load())
}

func TestMemoryCacheDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	var calls atomic.Int32
	failing := func(ctx context.Context) ([]*types.CandidateSegment, error) {
		calls.Add(1)
		return nil, errors.New("store down")
	}

	_, err := c.GetOrFetch(ctx, "s1", profileKey, failing)
	assert.Error(t, err)
	_, err = c.GetOrFetch(ctx, "s1", profileKey, countingFetch(&calls, "x"))
	assert.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestMemoryCacheInvalidateAndEndSession(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	var calls atomic.Int32

	for _, s := range []string{"s1", "s2"} {
		_, err := c.GetOrFetch(ctx, s, profileKey, countingFetch(&calls, "v1"))
		require.NoError(t, err)
	}
	require.NoError(t, c.Invalidate(ctx, profileKey))

	segs, err := c.GetOrFetch(ctx, "s1", profileKey, countingFetch(&calls, "v2"))
	require.NoError(t, err)
	assert.Equal(t, "v2", segs[0].TruncatedText)
	assert.EqualValues(t, 3, calls.Load())

	require.NoError(t, c.EndSession(ctx, "s1"))
	_, err = c.GetOrFetch(ctx, "s1", profileKey, countingFetch(&calls, "v3"))
	require.NoError(t, err)
	assert.EqualValues(t, 4, calls.Load())
}

func TestMemoryCacheSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := newMemoryCache(func() time.Time { return now })
	var calls atomic.Int32

	_, err := c.GetOrFetch(ctx, "old", profileKey, countingFetch(&calls, "x"))
	require.NoError(t, err)
	now = now.Add(3 * time.Hour)
	_, err = c.GetOrFetch(ctx, "fresh", profileKey, countingFetch(&calls, "x"))
	require.NoError(t, err)

	n, err := c.Sweep(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = c.GetOrFetch(ctx, "fresh", profileKey, countingFetch(&calls, "x"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load(), "fresh session kept its entry")
}
