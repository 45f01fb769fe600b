package contextbuild

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anishgillella/serene-sub003/internal/types"
)

func seg(id string, kind types.SourceKind, score float64) *types.CandidateSegment {
	return &types.CandidateSegment{
		ID: id, SourceKind: kind, OriginID: "o-" + id, TruncatedText: "text " + id, Score: score,
	}
}

func TestSelectTopKBound(t *testing.T) {
	sel := NewSelector(nil, nil, 7, 0)
	for _, m := range []int{0, 1, 6, 7, 8, 20} {
		var cands []*types.CandidateSegment
		for i := range m {
			cands = append(cands, seg(fmt.Sprint(i), types.SourceKindProfile, float64(i)))
		}
		out := sel.Select(context.Background(), "hello", cands)
		assert.Len(t, out, min(7, m), "M=%d", m)
	}
}

func TestSelectOrdersByScoreThenKindPriority(t *testing.T) {
	sel := NewSelector(nil, nil, 4, 0)
	cands := []*types.CandidateSegment{
		seg("cal", types.SourceKindCalendar, 0.5),
		seg("prof", types.SourceKindProfile, 0.5),
		seg("past", types.SourceKindPastConflict, 0.5),
		seg("best", types.SourceKindCalendar, 0.9),
	}
	out := sel.Select(context.Background(), "", cands)
	require.Len(t, out, 4)
	assert.Equal(t, []string{"best", "past", "prof", "cal"}, ids(out))
}

func TestSelectStableForEqualKeys(t *testing.T) {
	sel := NewSelector(nil, nil, 3, 0)
	cands := []*types.CandidateSegment{
		seg("a", types.SourceKindProfile, 1),
		seg("b", types.SourceKindProfile, 1),
		seg("c", types.SourceKindProfile, 1),
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids(sel.Select(context.Background(), "", cands)))
}

func TestSelectUsesRerankerScores(t *testing.T) {
	rr := &fakeReranker{scores: map[string]float64{"text a": 0.1, "text b": 0.8}}
	sel := NewSelector(rr, nil, 3, 0)
	cands := []*types.CandidateSegment{
		seg("a", types.SourceKindProfile, 0.9),
		seg("b", types.SourceKindProfile, 0.2),
		seg("c", types.SourceKindPastConflict, 0.99),
	}
	out := sel.Select(context.Background(), "money", cands)
	// c was not scored by the reranker and sorts last
	assert.Equal(t, []string{"b", "a", "c"}, ids(out))
	assert.InDelta(t, 0.9, cands[0].Score, 1e-9, "inputs untouched")
}

func TestSelectFallsBackWhenRerankerFails(t *testing.T) {
	sel := NewSelector(&fakeReranker{err: errors.New("503")}, nil, 2, 0)
	cands := []*types.CandidateSegment{
		seg("low", types.SourceKindProfile, 0.1),
		seg("high", types.SourceKindProfile, 0.7),
	}
	assert.Equal(t, []string{"high", "low"}, ids(sel.Select(context.Background(), "q", cands)))
}

func TestSelectMinRelevanceFloor(t *testing.T) {
	sel := NewSelector(nil, nil, 5, 0.5)
	cands := []*types.CandidateSegment{
		seg("a", types.SourceKindProfile, 0.4),
		seg("b", types.SourceKindProfile, 0.6),
	}
	assert.Equal(t, []string{"b"}, ids(sel.Select(context.Background(), "q", cands)))
}

func TestSelectPrefersRawText(t *testing.T) {
	texts := newFakeTexts()
	texts.texts["stored"] = "full stored text"
	sel := NewSelector(nil, texts, 5, 0)

	withRaw := seg("a", types.SourceKindProfile, 0.9)
	// same chunk found twice: once with the full text, once truncated
	twin := *withRaw
	twin.ID = "a-copy"
	twin.Score = 0.95
	withRaw.RawText = "full text of a"
	stored := seg("stored", types.SourceKindPastConflict, 0.5)

	out := sel.Select(context.Background(), "", []*types.CandidateSegment{withRaw, &twin, stored})
	require.Len(t, out, 3)
	for _, s := range out {
		assert.NotEqual(t, s.TruncatedText, s.Text(), s.ID)
	}
	assert.Equal(t, "full text of a", out[0].Text())
	assert.Equal(t, "full stored text", out[2].Text())
}

func ids(segs []*types.CandidateSegment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.ID
	}
	return out
}
