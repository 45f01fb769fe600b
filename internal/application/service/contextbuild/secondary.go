package contextbuild

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

// recentConflictLimit bounds how many past conflicts feed a session start
const recentConflictLimit = 3

// SourceResult is the fan-in record of one secondary source
type SourceResult struct {
	Kind     types.SourceKind
	Segments []*types.CandidateSegment
	Outcome  Outcome[[]*types.CandidateSegment]
}

// SecondaryConfig holds per-source limits
type SecondaryConfig struct {
	SourceTimeout    time.Duration
	CalendarTimeout  time.Duration
	CandidatePool    int
	CalendarLookback time.Duration
	CalendarLimit    int
	PageSize         int
}

// SecondaryFetcher queries profiles, past conflicts and calendar insights
// concurrently. Each source runs under its own deadline and a slow or
// failing source never cancels the others.
type SecondaryFetcher struct {
	index     interfaces.SegmentIndex
	texts     interfaces.SegmentTextRepository
	conflicts interfaces.ConflictRepository
	calendar  interfaces.CalendarRepository
	cache     interfaces.SessionCache
	embedder  interfaces.Embedder
	cfg       SecondaryConfig
	now       func() time.Time
}

func NewSecondaryFetcher(
	index interfaces.SegmentIndex,
	texts interfaces.SegmentTextRepository,
	conflicts interfaces.ConflictRepository,
	calendar interfaces.CalendarRepository,
	cache interfaces.SessionCache,
	embedder interfaces.Embedder,
	cfg SecondaryConfig,
) *SecondaryFetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 256
	}
	return &SecondaryFetcher{
		index:     index,
		texts:     texts,
		conflicts: conflicts,
		calendar:  calendar,
		cache:     cache,
		embedder:  embedder,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Fetch runs every source and returns one result per source in a fixed
// order: profile, past conflict, calendar
func (f *SecondaryFetcher) Fetch(ctx context.Context, req *types.ContextRequest) []SourceResult {
	sources := []struct {
		kind    types.SourceKind
		timeout time.Duration
		fetch   func(ctx context.Context) ([]*types.CandidateSegment, error)
	}{
		{types.SourceKindProfile, f.cfg.SourceTimeout, func(ctx context.Context) ([]*types.CandidateSegment, error) {
			return f.fetchProfiles(ctx, req)
		}},
		{types.SourceKindPastConflict, f.cfg.SourceTimeout, func(ctx context.Context) ([]*types.CandidateSegment, error) {
			return f.fetchPastConflicts(ctx, req)
		}},
		{types.SourceKindCalendar, f.cfg.CalendarTimeout, func(ctx context.Context) ([]*types.CandidateSegment, error) {
			return f.fetchCalendar(ctx, req)
		}},
	}

	results := make([]SourceResult, len(sources))
	// branches never return an error, so one source cannot cancel the rest
	var eg errgroup.Group
	for i, src := range sources {
		eg.Go(func() error {
			out := WithTimeout(ctx, string(src.kind), src.timeout, nil, src.fetch)
			out.Value = sanitize(ctx, src.kind, out.Value)
			results[i] = SourceResult{Kind: src.kind, Segments: out.Value, Outcome: out}
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// Candidates flattens completed results, dropping repeats of the same chunk
func Candidates(results []SourceResult) []*types.CandidateSegment {
	var out []*types.CandidateSegment
	seen := make(map[string]struct{})
	for _, r := range results {
		for _, s := range r.Segments {
			if _, dup := seen[s.Key()]; dup {
				continue
			}
			seen[s.Key()] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// sanitize tags segments with their source kind and drops records that
// cannot be rendered
func sanitize(ctx context.Context, kind types.SourceKind, segs []*types.CandidateSegment) []*types.CandidateSegment {
	out := segs[:0:0]
	for _, s := range segs {
		if s == nil {
			continue
		}
		s.SourceKind = kind
		if err := s.Validate(); err != nil {
			logger.Warnf(ctx, "[SecondaryFetcher] Dropping malformed %s segment: %v", kind, err)
			continue
		}
		out = append(out, s)
	}
	return out
}

// fetchProfiles lists every profile chunk of the relationship. Profiles do
// not change within a session, so the list is memoized per session.
func (f *SecondaryFetcher) fetchProfiles(ctx context.Context, req *types.ContextRequest) ([]*types.CandidateSegment, error) {
	key := types.CacheKey{RelationshipID: req.RelationshipID, Kind: types.SourceKindProfile}
	return f.cache.GetOrFetch(ctx, req.SessionID, key, func(ctx context.Context) ([]*types.CandidateSegment, error) {
		filter := types.SegmentFilter{SourceKind: types.SourceKindProfile, RelationshipID: req.RelationshipID}
		var all []*types.CandidateSegment
		for offset := 0; ; {
			page, err := f.index.ListSegments(ctx, filter, f.cfg.PageSize, offset)
			if err != nil {
				return nil, fmt.Errorf("list profile segments: %w", err)
			}
			all = append(all, page...)
			if len(page) < f.cfg.PageSize {
				break
			}
			offset += len(page)
		}
		f.hydrate(ctx, all)
		return all, nil
	})
}

// fetchPastConflicts searches other conflicts of the relationship by the
// utterance. At session start there is nothing to search with, so the
// opening chunks of the most recent conflicts stand in.
func (f *SecondaryFetcher) fetchPastConflicts(ctx context.Context, req *types.ContextRequest) ([]*types.CandidateSegment, error) {
	filter := types.SegmentFilter{
		SourceKind:      types.SourceKindPastConflict,
		RelationshipID:  req.RelationshipID,
		ExcludeOriginID: req.ConflictID,
	}
	if req.IsSessionStart() {
		return f.recentPastConflicts(ctx, req)
	}

	vectors, err := f.embedder.Embed(ctx, []string{req.Utterance})
	if err != nil {
		return nil, fmt.Errorf("embed utterance: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed utterance: got %d vectors", len(vectors))
	}
	segs, err := f.index.SearchSegments(ctx, vectors[0], filter, f.cfg.CandidatePool)
	if err != nil {
		return nil, fmt.Errorf("search past conflicts: %w", err)
	}
	return excludeConflict(segs, req.ConflictID), nil
}

func (f *SecondaryFetcher) recentPastConflicts(ctx context.Context, req *types.ContextRequest) ([]*types.CandidateSegment, error) {
	recent, err := f.conflicts.ListRecentConflicts(ctx, req.RelationshipID, req.ConflictID, recentConflictLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent conflicts: %w", err)
	}
	if len(recent) == 0 {
		return nil, nil
	}
	perConflict := max(1, f.cfg.CandidatePool/len(recent))
	var out []*types.CandidateSegment
	for _, c := range recent {
		page, err := f.index.ListSegments(ctx, types.SegmentFilter{
			SourceKind:      types.SourceKindTranscript,
			OriginID:        c.ID,
			ChunkIndexBelow: perConflict,
		}, perConflict, 0)
		if err != nil {
			return nil, fmt.Errorf("list chunks of conflict %s: %w", c.ID, err)
		}
		// engines do not all return listings in chunk order
		sort.SliceStable(page, func(i, j int) bool { return page[i].ChunkIndex < page[j].ChunkIndex })
		out = append(out, page...)
	}
	return excludeConflict(out, req.ConflictID), nil
}

// fetchCalendar renders recent calendar insights as segments
func (f *SecondaryFetcher) fetchCalendar(ctx context.Context, req *types.ContextRequest) ([]*types.CandidateSegment, error) {
	var since time.Time
	if f.cfg.CalendarLookback > 0 {
		since = f.now().Add(-f.cfg.CalendarLookback)
	}
	insights, err := f.calendar.ListInsights(ctx, req.RelationshipID, since, f.cfg.CalendarLimit)
	if err != nil {
		return nil, fmt.Errorf("list calendar insights: %w", err)
	}
	out := make([]*types.CandidateSegment, 0, len(insights))
	for _, in := range insights {
		out = append(out, &types.CandidateSegment{
			ID:             in.ID,
			SourceKind:     types.SourceKindCalendar,
			OriginID:       in.ID,
			RelationshipID: in.RelationshipID,
			RawText:        in.Summary,
		})
	}
	return out, nil
}

func (f *SecondaryFetcher) hydrate(ctx context.Context, segs []*types.CandidateSegment) {
	if len(segs) == 0 {
		return
	}
	ids := make([]string, len(segs))
	for i, s := range segs {
		ids[i] = s.ID
	}
	texts, err := f.texts.GetTexts(ctx, ids)
	if err != nil {
		logger.Warnf(ctx, "[SecondaryFetcher] Full text lookup failed, using index copies: %v", err)
		return
	}
	for _, s := range segs {
		if raw, ok := texts[s.ID]; ok {
			s.RawText = raw
		}
	}
}

func excludeConflict(segs []*types.CandidateSegment, conflictID string) []*types.CandidateSegment {
	out := segs[:0:0]
	for _, s := range segs {
		if s.OriginID != conflictID {
			out = append(out, s)
		}
	}
	return out
}
