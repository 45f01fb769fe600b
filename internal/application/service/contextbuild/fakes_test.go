package contextbuild

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"mime/multipart"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anishgillella/serene-sub003/internal/application/cache"
	"github.com/anishgillella/serene-sub003/internal/application/repository/retriever/memory"
	apperrors "github.com/anishgillella/serene-sub003/internal/errors"
	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
	"github.com/anishgillella/serene-sub003/internal/utils/chunker"
)

const testDim = 32

// bagEmbedder hashes words into a fixed-size vector so texts sharing words
// are close
type bagEmbedder struct {
	calls atomic.Int32
	err   error
}

func (e *bagEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, testDim)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.Trim(w, ".,!?:")))
			v[h.Sum32()%testDim]++
		}
		out[i] = v
	}
	return out, nil
}

func (e *bagEmbedder) ModelName() string { return "bag" }

type fakeTexts struct {
	mu    sync.Mutex
	texts map[string]string
	err   error
}

func newFakeTexts() *fakeTexts { return &fakeTexts{texts: make(map[string]string)} }

func (f *fakeTexts) SaveTexts(_ context.Context, rows []*types.SegmentText) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, r := range rows {
		f.texts[r.ID] = r.Content
	}
	return nil
}

func (f *fakeTexts) GetTexts(_ context.Context, ids []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]string)
	for _, id := range ids {
		if t, ok := f.texts[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

type fakeConflicts struct {
	mu        sync.Mutex
	conflicts map[string]*types.Conflict
	gets      atomic.Int32
	err       error
}

func newFakeConflicts(cs ...*types.Conflict) *fakeConflicts {
	f := &fakeConflicts{conflicts: make(map[string]*types.Conflict)}
	for _, c := range cs {
		f.conflicts[c.ID] = c
	}
	return f
}

func (f *fakeConflicts) GetConflict(_ context.Context, id string) (*types.Conflict, error) {
	f.gets.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.conflicts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConflicts) SaveConflict(_ context.Context, c *types.Conflict) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conflicts[c.ID] = c
	return nil
}

func (f *fakeConflicts) ListRecentConflicts(_ context.Context,
	relationshipID, excludeID string, limit int,
) ([]*types.Conflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Conflict
	for _, c := range f.conflicts {
		if c.RelationshipID == relationshipID && c.ID != excludeID {
			out = append(out, c)
		}
	}
	// newest first
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].StartedAt.After(out[j-1].StartedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeCalendar struct {
	insights []*types.CalendarInsight
	delay    time.Duration
	err      error
}

func (f *fakeCalendar) ListInsights(ctx context.Context, _ string, _ time.Time, _ int) ([]*types.CalendarInsight, error) {
	if f.delay > 0 {
		// ignores ctx on purpose, like a client without deadline support
		time.Sleep(f.delay)
	}
	return f.insights, f.err
}

type fakeFiles struct {
	files map[string]string
	err   error
}

func (f *fakeFiles) SaveFile(context.Context, *multipart.FileHeader, string, string) (string, error) {
	return "", errors.New("not supported")
}

func (f *fakeFiles) GetFile(_ context.Context, path string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.files[path]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (f *fakeFiles) DeleteFile(context.Context, string) error { return nil }

// countingIndex records listing calls on top of a real in-memory index
type countingIndex struct {
	interfaces.SegmentIndex
	lists   atomic.Int32
	listErr error
	// unordered serves listings newest chunk first, like engines without
	// an order-by on chunk_index
	unordered bool
}

func (c *countingIndex) ListSegments(ctx context.Context,
	f types.SegmentFilter, limit, offset int,
) ([]*types.CandidateSegment, error) {
	c.lists.Add(1)
	if c.listErr != nil {
		return nil, c.listErr
	}
	if !c.unordered {
		return c.SegmentIndex.ListSegments(ctx, f, limit, offset)
	}
	all, err := c.SegmentIndex.ListSegments(ctx, f, 1000, 0)
	if err != nil {
		return nil, err
	}
	slices.Reverse(all)
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:min(len(all), offset+limit)], nil
}

type fakeReranker struct {
	scores map[string]float64
	err    error
}

func (r *fakeReranker) Rerank(_ context.Context, _ string, docs []string) ([]types.RankResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []types.RankResult
	for i, d := range docs {
		if s, ok := r.scores[d]; ok {
			out = append(out, types.RankResult{Index: i, Score: s})
		}
	}
	return out, nil
}

func (r *fakeReranker) ModelName() string { return "fake" }

// fixture is a fully wired service on in-memory collaborators
type fixture struct {
	index     *countingIndex
	texts     *fakeTexts
	conflicts *fakeConflicts
	calendar  *fakeCalendar
	files     *fakeFiles
	embedder  *bagEmbedder
	cache     interfaces.SessionCache
	primary   *PrimaryFetcher
	secondary *SecondaryFetcher
	svc       interfaces.ContextService
}

func newFixture(t *testing.T, reranker interfaces.Reranker) *fixture {
	t.Helper()
	splitter, err := chunker.New("cl100k_base", 60, 0)
	require.NoError(t, err)

	f := &fixture{
		// small metadata cap so index copies really are truncated
		index:     &countingIndex{SegmentIndex: memory.NewMemoryRetrieveEngineRepository(24, 5)},
		texts:     newFakeTexts(),
		conflicts: newFakeConflicts(),
		calendar:  &fakeCalendar{},
		files:     &fakeFiles{files: map[string]string{}},
		embedder:  &bagEmbedder{},
		cache:     cache.NewMemoryCache(),
	}
	f.primary = NewPrimaryFetcher(f.index, f.texts, f.conflicts, f.files, f.embedder, splitter, 5, 24)
	f.secondary = NewSecondaryFetcher(f.index, f.texts, f.conflicts, f.calendar, f.cache, f.embedder, SecondaryConfig{
		SourceTimeout:   300 * time.Millisecond,
		CalendarTimeout: 150 * time.Millisecond,
		CandidatePool:   20,
		CalendarLimit:   5,
		PageSize:        5,
	})
	f.svc = NewContextService(f.primary, f.secondary, NewSelector(reranker, f.texts, 7, 0), f.cache, Config{
		TopK:           7,
		PrimaryTimeout: time.Second,
	})
	return f
}

// indexChunks stores chunks with full text in the text store and a capped
// copy in the index
func (f *fixture) indexChunks(t *testing.T, kind types.SourceKind, originID, relationshipID string, texts ...string) {
	t.Helper()
	ctx := context.Background()
	vecs, err := f.embedder.Embed(ctx, texts)
	require.NoError(t, err)
	records := make([]*types.SegmentRecord, len(texts))
	rows := make([]*types.SegmentText, len(texts))
	for i, text := range texts {
		id := types.SegmentID(kind, originID, i)
		records[i] = &types.SegmentRecord{
			ID: id, SourceKind: kind.IndexKind(), OriginID: originID, RelationshipID: relationshipID,
			ChunkIndex: i, Content: text, Embedding: vecs[i],
		}
		rows[i] = &types.SegmentText{
			ID: id, SourceKind: string(kind.IndexKind()), OriginID: originID, RelationshipID: relationshipID,
			ChunkIndex: i, Content: text,
		}
	}
	require.NoError(t, f.index.UpsertSegments(ctx, records))
	require.NoError(t, f.texts.SaveTexts(ctx, rows))
}
