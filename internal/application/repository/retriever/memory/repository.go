// Package memory is an in-process segment index for local development and tests
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/anishgillella/serene-sub003/internal/application/repository/retriever"
	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

type storedSegment struct {
	record  types.SegmentRecord
	content string
}

type memoryRepository struct {
	mu               sync.RWMutex
	segments         map[string]*storedSegment
	maxMetadataBytes int
	pageSize         int
}

// NewMemoryRetrieveEngineRepository creates an empty in-process index
func NewMemoryRetrieveEngineRepository(maxMetadataBytes, pageSize int) interfaces.SegmentIndex {
	if pageSize <= 0 {
		pageSize = 256
	}
	return &memoryRepository{
		segments:         make(map[string]*storedSegment),
		maxMetadataBytes: maxMetadataBytes,
		pageSize:         pageSize,
	}
}

func (m *memoryRepository) EngineType() string {
	return retriever.MemoryEngineType
}

func (m *memoryRepository) UpsertSegments(ctx context.Context, records []*types.SegmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if r == nil || r.ID == "" {
			return fmt.Errorf("segment record without id")
		}
		cp := *r
		cp.Embedding = append([]float32(nil), r.Embedding...)
		m.segments[r.ID] = &storedSegment{
			record:  cp,
			content: retriever.MetadataContent(r.Content, m.maxMetadataBytes),
		}
	}
	return nil
}

func (m *memoryRepository) ListSegments(ctx context.Context,
	filter types.SegmentFilter, limit, offset int,
) ([]*types.CandidateSegment, error) {
	if limit <= 0 {
		limit = m.pageSize
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := m.match(filter)
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].record, matched[j].record
		if a.OriginID != b.OriginID {
			return a.OriginID < b.OriginID
		}
		return a.ChunkIndex < b.ChunkIndex
	})
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]*types.CandidateSegment, 0, end-offset)
	for _, s := range matched[offset:end] {
		out = append(out, s.candidate(0))
	}
	return out, nil
}

func (m *memoryRepository) SearchSegments(ctx context.Context,
	embedding []float32, filter types.SegmentFilter, topK int,
) ([]*types.CandidateSegment, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("empty query embedding")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := m.match(filter)
	out := make([]*types.CandidateSegment, 0, len(matched))
	for _, s := range matched {
		if len(s.record.Embedding) != len(embedding) {
			continue
		}
		out = append(out, s.candidate(cosine(embedding, s.record.Embedding)))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *memoryRepository) match(filter types.SegmentFilter) []*storedSegment {
	var out []*storedSegment
	for _, s := range m.segments {
		if retriever.Matches(filter, s.record.SourceKind, s.record.OriginID, s.record.RelationshipID, s.record.ChunkIndex) {
			out = append(out, s)
		}
	}
	return out
}

func (s *storedSegment) candidate(score float64) *types.CandidateSegment {
	return &types.CandidateSegment{
		ID:             s.record.ID,
		SourceKind:     s.record.SourceKind,
		OriginID:       s.record.OriginID,
		RelationshipID: s.record.RelationshipID,
		ChunkIndex:     s.record.ChunkIndex,
		TruncatedText:  s.content,
		Score:          score,
	}
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
