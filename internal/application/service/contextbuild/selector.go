package contextbuild

import (
	"context"
	"sort"

	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

// Selector reranks secondary candidates and keeps the top k
type Selector struct {
	reranker     interfaces.Reranker
	texts        interfaces.SegmentTextRepository
	topK         int
	minRelevance float64
}

// NewSelector creates a selector. reranker may be nil, in which case the
// retrieval scores decide. minRelevance <= 0 disables the floor.
func NewSelector(reranker interfaces.Reranker, texts interfaces.SegmentTextRepository, topK int, minRelevance float64) *Selector {
	return &Selector{reranker: reranker, texts: texts, topK: topK, minRelevance: minRelevance}
}

type ranked struct {
	seg    *types.CandidateSegment
	scored bool
	order  int
}

// Select returns at most topK candidates in relevance order, each carrying
// its full text whenever one is known. Input segments are not modified.
func (s *Selector) Select(ctx context.Context, utterance string, candidates []*types.CandidateSegment) []*types.CandidateSegment {
	if len(candidates) == 0 || s.topK <= 0 {
		return nil
	}

	items := make([]ranked, len(candidates))
	for i, c := range candidates {
		cp := *c
		items[i] = ranked{seg: &cp, scored: true, order: i}
	}
	s.rerank(ctx, utterance, items)

	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })

	out := make([]*types.CandidateSegment, 0, min(s.topK, len(items)))
	for _, it := range items {
		if len(out) == s.topK {
			break
		}
		if s.minRelevance > 0 && (!it.scored || it.seg.Score < s.minRelevance) {
			continue
		}
		out = append(out, it.seg)
	}
	s.preferRaw(ctx, candidates, out)
	return out
}

// less orders by reranker coverage, then score, then kind priority, then
// retrieval order
func less(a, b ranked) bool {
	if a.scored != b.scored {
		return a.scored
	}
	if a.seg.Score != b.seg.Score {
		return a.seg.Score > b.seg.Score
	}
	if pa, pb := a.seg.SourceKind.Priority(), b.seg.SourceKind.Priority(); pa != pb {
		return pa > pb
	}
	return a.order < b.order
}

// rerank overwrites scores with the reranker's. Documents the reranker leaves
// out sort after every scored one. Any failure keeps retrieval scores.
func (s *Selector) rerank(ctx context.Context, utterance string, items []ranked) {
	if s.reranker == nil || utterance == "" {
		return
	}
	docs := make([]string, len(items))
	for i, it := range items {
		docs[i] = it.seg.Text()
	}
	results, err := s.reranker.Rerank(ctx, utterance, docs)
	if err != nil {
		logger.Warnf(ctx, "[Selector] Rerank with %s failed, keeping retrieval scores: %v", s.reranker.ModelName(), err)
		return
	}
	if len(results) == 0 {
		logger.Warnf(ctx, "[Selector] Rerank with %s returned nothing, keeping retrieval scores", s.reranker.ModelName())
		return
	}
	for i := range items {
		items[i].scored = false
	}
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(items) {
			continue
		}
		items[r.Index].seg.Score = r.Score
		items[r.Index].scored = true
	}
}

// preferRaw replaces metadata copies with full text, first from any
// candidate carrying the same chunk, then from the text store
func (s *Selector) preferRaw(ctx context.Context, candidates, selected []*types.CandidateSegment) {
	raw := make(map[string]string, len(candidates))
	for _, c := range candidates {
		if c.RawText != "" {
			raw[c.Key()] = c.RawText
		}
	}
	var missing []string
	for _, seg := range selected {
		if seg.RawText != "" {
			continue
		}
		if text, ok := raw[seg.Key()]; ok {
			seg.RawText = text
			continue
		}
		missing = append(missing, seg.ID)
	}
	if len(missing) == 0 || s.texts == nil {
		return
	}
	texts, err := s.texts.GetTexts(ctx, missing)
	if err != nil {
		logger.Warnf(ctx, "[Selector] Full text lookup for %d segments failed: %v", len(missing), err)
		return
	}
	for _, seg := range selected {
		if seg.RawText == "" {
			seg.RawText = texts[seg.ID]
		}
	}
}
