package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anishgillella/serene-sub003/internal/types"
)

func seed(t *testing.T, n int) *memoryRepository {
	t.Helper()
	repo := NewMemoryRetrieveEngineRepository(8, 4).(*memoryRepository)
	var records []*types.SegmentRecord
	// insert in reverse so ordering has to come from ChunkIndex
	for i := n - 1; i >= 0; i-- {
		records = append(records, &types.SegmentRecord{
			ID:             fmt.Sprintf("c1-%d", i),
			SourceKind:     types.SourceKindTranscript,
			OriginID:       "c1",
			RelationshipID: "r1",
			ChunkIndex:     i,
			Content:        fmt.Sprintf("chunk number %d with a long tail", i),
			Embedding:      []float32{float32(i), 1},
		})
	}
	require.NoError(t, repo.UpsertSegments(context.Background(), records))
	return repo
}

func TestListSegmentsPagesInChunkOrder(t *testing.T) {
	repo := seed(t, 10)
	ctx := context.Background()
	filter := types.SegmentFilter{SourceKind: types.SourceKindTranscript, OriginID: "c1"}

	var all []*types.CandidateSegment
	for offset := 0; ; offset += 4 {
		page, err := repo.ListSegments(ctx, filter, 4, offset)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
	}
	require.Len(t, all, 10)
	for i, s := range all {
		assert.Equal(t, i, s.ChunkIndex)
	}
}

func TestUpsertTruncatesMetadataCopy(t *testing.T) {
	repo := seed(t, 1)
	segs, err := repo.ListSegments(context.Background(), types.SegmentFilter{OriginID: "c1"}, 0, 0)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "chunk nu", segs[0].TruncatedText)
	assert.Empty(t, segs[0].RawText)
}

func TestUpsertIsIdempotent(t *testing.T) {
	repo := seed(t, 3)
	rec := &types.SegmentRecord{ID: "c1-0", SourceKind: types.SourceKindTranscript, OriginID: "c1", ChunkIndex: 0, Content: "x"}
	require.NoError(t, repo.UpsertSegments(context.Background(), []*types.SegmentRecord{rec, rec}))

	segs, err := repo.ListSegments(context.Background(), types.SegmentFilter{OriginID: "c1"}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, segs, 3)
}

func TestSearchSegmentsRanksBySimilarity(t *testing.T) {
	repo := seed(t, 5)
	segs, err := repo.SearchSegments(context.Background(), []float32{4, 1}, types.SegmentFilter{}, 2)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, 4, segs[0].ChunkIndex)
	assert.GreaterOrEqual(t, segs[0].Score, segs[1].Score)

	_, err = repo.SearchSegments(context.Background(), nil, types.SegmentFilter{}, 2)
	assert.Error(t, err)
}
