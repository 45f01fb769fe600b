package contextbuild

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/anishgillella/serene-sub003/internal/errors"
	"github.com/anishgillella/serene-sub003/internal/types"
)

func transcriptLines(n int) string {
	lines := make([]string, n)
	for i := range lines {
		speaker := "A"
		if i%2 == 1 {
			speaker = "B"
		}
		lines[i] = fmt.Sprintf("%s: line %d about the dishes and whose turn it was to clean the kitchen", speaker, i)
	}
	return strings.Join(lines, "\n")
}

func TestFindOrBackfillReturnsEveryIndexedChunkInOrder(t *testing.T) {
	f := newFixture(t, nil)
	texts := make([]string, 12)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %02d of the current conflict, long enough to be truncated", i)
	}
	f.indexChunks(t, types.SourceKindTranscript, "c1", "r1", texts...)
	f.indexChunks(t, types.SourceKindTranscript, "c2", "r1", "another conflict")

	segs, err := f.primary.FindOrBackfill(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, segs, 12)
	for i, s := range segs {
		assert.Equal(t, i, s.ChunkIndex)
		assert.Equal(t, texts[i], s.Text(), "full text replaces the capped index copy")
		assert.Equal(t, "c1", s.OriginID)
	}
	assert.GreaterOrEqual(t, f.index.lists.Load(), int32(3), "12 segments over pages of 5")
	assert.Zero(t, f.conflicts.gets.Load(), "no backfill when indexed")
}

func TestFindOrBackfillChunksAndReindexes(t *testing.T) {
	f := newFixture(t, nil)
	transcript := transcriptLines(30)
	f.conflicts.conflicts["old"] = &types.Conflict{ID: "old", RelationshipID: "r1", TranscriptText: transcript}
	ctx := context.Background()

	first, err := f.primary.FindOrBackfill(ctx, "old")
	require.NoError(t, err)
	require.Greater(t, len(first), 1)
	assert.EqualValues(t, 1, f.conflicts.gets.Load())
	for i, s := range first {
		assert.Equal(t, i, s.ChunkIndex)
		assert.NotEmpty(t, s.RawText)
	}
	assert.Contains(t, first[0].RawText, "line 0")
	assert.Contains(t, first[len(first)-1].RawText, "line 29")

	second, err := f.primary.FindOrBackfill(ctx, "old")
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.conflicts.gets.Load(), "second call served from the index")
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].RawText, second[i].Text())
	}
}

func TestBackfillIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.conflicts.conflicts["c1"] = &types.Conflict{ID: "c1", RelationshipID: "r1", TranscriptText: transcriptLines(10)}
	ctx := context.Background()

	a, err := f.primary.Backfill(ctx, "c1")
	require.NoError(t, err)
	b, err := f.primary.Backfill(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, ids(a), ids(b))

	listed, err := f.index.ListSegments(ctx, types.SegmentFilter{OriginID: "c1"}, 100, 0)
	require.NoError(t, err)
	assert.Len(t, listed, len(a), "repeated upsert does not duplicate")
}

func TestFindOrBackfillReadsTranscriptFromObjectStore(t *testing.T) {
	f := newFixture(t, nil)
	f.files.files["s3://serene/c3.txt"] = "A: we need to talk about the budget"
	f.conflicts.conflicts["c3"] = &types.Conflict{ID: "c3", RelationshipID: "r1", TranscriptPath: "s3://serene/c3.txt"}

	segs, err := f.primary.FindOrBackfill(context.Background(), "c3")
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "A: we need to talk about the budget", segs[0].RawText)
}

func TestFindOrBackfillEmptyOutcomes(t *testing.T) {
	f := newFixture(t, nil)
	f.conflicts.conflicts["blank"] = &types.Conflict{ID: "blank", RelationshipID: "r1", TranscriptText: "  \n "}

	segs, err := f.primary.FindOrBackfill(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Empty(t, segs)

	segs, err = f.primary.FindOrBackfill(context.Background(), "blank")
	assert.NoError(t, err)
	assert.Empty(t, segs)

	_, err = f.primary.Backfill(context.Background(), "blank")
	assert.ErrorIs(t, err, apperrors.ErrPrimaryFetchEmpty)
}

func TestFindOrBackfillStoreDown(t *testing.T) {
	f := newFixture(t, nil)
	f.conflicts.err = errors.New("connection refused")

	_, err := f.primary.FindOrBackfill(context.Background(), "c1")
	assert.ErrorIs(t, err, apperrors.ErrContextUnavailable)

	f.conflicts.err = nil
	f.conflicts.conflicts["c4"] = &types.Conflict{ID: "c4", TranscriptPath: "s3://serene/c4.txt"}
	f.files.err = errors.New("bucket unreachable")
	_, err = f.primary.FindOrBackfill(context.Background(), "c4")
	assert.ErrorIs(t, err, apperrors.ErrContextUnavailable)
}

func TestFindOrBackfillKeepsChunksWhenWriteBackFails(t *testing.T) {
	f := newFixture(t, nil)
	f.embedder.err = errors.New("embedding quota")
	f.texts.err = errors.New("disk full")
	f.conflicts.conflicts["c5"] = &types.Conflict{ID: "c5", RelationshipID: "r1", TranscriptText: transcriptLines(4)}

	segs, err := f.primary.FindOrBackfill(context.Background(), "c5")
	require.NoError(t, err)
	assert.NotEmpty(t, segs)
}

func TestFindOrBackfillListingErrorFallsBack(t *testing.T) {
	f := newFixture(t, nil)
	f.index.listErr = errors.New("milvus down")
	f.conflicts.conflicts["c6"] = &types.Conflict{ID: "c6", RelationshipID: "r1", TranscriptText: "A: hi"}

	segs, err := f.primary.FindOrBackfill(context.Background(), "c6")
	require.NoError(t, err)
	assert.Len(t, segs, 1)
}
