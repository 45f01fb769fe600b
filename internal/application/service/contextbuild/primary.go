package contextbuild

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/anishgillella/serene-sub003/internal/application/repository/retriever"
	apperrors "github.com/anishgillella/serene-sub003/internal/errors"
	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
	"github.com/anishgillella/serene-sub003/internal/utils/chunker"
)

// maxTranscriptBytes bounds a transcript read from the object store
const maxTranscriptBytes = 16 << 20

// PrimaryFetcher returns every chunk of the conflict under discussion.
//
// FindOrBackfill is a read with a write side effect: a conflict that was
// never indexed is chunked from its stored transcript and written back to the
// index and the text store, so the next call finds it indexed.
type PrimaryFetcher struct {
	index            interfaces.SegmentIndex
	texts            interfaces.SegmentTextRepository
	conflicts        interfaces.ConflictRepository
	files            interfaces.FileService
	embedder         interfaces.Embedder
	chunker          *chunker.Chunker
	pageSize         int
	maxMetadataBytes int
}

func NewPrimaryFetcher(
	index interfaces.SegmentIndex,
	texts interfaces.SegmentTextRepository,
	conflicts interfaces.ConflictRepository,
	files interfaces.FileService,
	embedder interfaces.Embedder,
	splitter *chunker.Chunker,
	pageSize, maxMetadataBytes int,
) *PrimaryFetcher {
	if pageSize <= 0 {
		pageSize = 256
	}
	return &PrimaryFetcher{
		index:            index,
		texts:            texts,
		conflicts:        conflicts,
		files:            files,
		embedder:         embedder,
		chunker:          splitter,
		pageSize:         pageSize,
		maxMetadataBytes: maxMetadataBytes,
	}
}

// FindOrBackfill returns the conflict's chunks in transcript order. A missing
// conflict or empty transcript yields no segments and a warning; only a
// failing relational or object store is an error (ErrContextUnavailable).
func (p *PrimaryFetcher) FindOrBackfill(ctx context.Context, conflictID string) ([]*types.CandidateSegment, error) {
	segs, err := p.listAll(ctx, conflictID)
	if err != nil {
		logger.Warnf(ctx, "[PrimaryFetcher] Index listing for conflict %s failed, backfilling: %v", conflictID, err)
	}
	if len(segs) > 0 {
		p.hydrate(ctx, segs)
		return segs, nil
	}

	logger.Infof(ctx, "[PrimaryFetcher] No indexed segments for conflict %s, backfilling from transcript", conflictID)
	segs, err = p.Backfill(ctx, conflictID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrPrimaryFetchEmpty):
		logger.Warnf(ctx, "[PrimaryFetcher] Conflict %s has no transcript to backfill: %v", conflictID, err)
		return nil, nil
	case err != nil:
		return nil, err
	}
	return segs, nil
}

// listAll pages through the index until a short page
func (p *PrimaryFetcher) listAll(ctx context.Context, conflictID string) ([]*types.CandidateSegment, error) {
	filter := types.SegmentFilter{SourceKind: types.SourceKindTranscript, OriginID: conflictID}
	var out []*types.CandidateSegment
	seen := make(map[string]struct{})
	for offset := 0; ; {
		page, err := p.index.ListSegments(ctx, filter, p.pageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, s := range page {
			if s.OriginID != conflictID {
				continue
			}
			if _, dup := seen[s.ID]; dup {
				continue
			}
			seen[s.ID] = struct{}{}
			s.SourceKind = types.SourceKindTranscript
			out = append(out, s)
		}
		if len(page) < p.pageSize {
			break
		}
		offset += len(page)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

// hydrate swaps in full texts. Failure keeps the metadata copies.
func (p *PrimaryFetcher) hydrate(ctx context.Context, segs []*types.CandidateSegment) {
	ids := make([]string, 0, len(segs))
	for _, s := range segs {
		if s.RawText == "" {
			ids = append(ids, s.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	texts, err := p.texts.GetTexts(ctx, ids)
	if err != nil {
		logger.Warnf(ctx, "[PrimaryFetcher] Full text lookup failed, using index copies: %v", err)
		return
	}
	for _, s := range segs {
		if raw, ok := texts[s.ID]; ok {
			s.RawText = raw
		}
	}
}

// Backfill chunks the stored transcript of a conflict and writes the chunks
// to the text store and the index. Write failures are logged and the chunks
// are still returned; read failures are ErrContextUnavailable.
func (p *PrimaryFetcher) Backfill(ctx context.Context, conflictID string) ([]*types.CandidateSegment, error) {
	conflict, err := p.conflicts.GetConflict(ctx, conflictID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("conflict %s: %w", conflictID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: load conflict %s: %w", apperrors.ErrContextUnavailable, conflictID, err)
	}

	transcript, err := p.transcript(ctx, conflict)
	if err != nil {
		return nil, fmt.Errorf("%w: read transcript of %s: %w", apperrors.ErrContextUnavailable, conflictID, err)
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("conflict %s: %w", conflictID, apperrors.ErrPrimaryFetchEmpty)
	}

	chunks, err := p.chunker.Split(transcript)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk transcript of %s: %w", apperrors.ErrContextUnavailable, conflictID, err)
	}

	segs := make([]*types.CandidateSegment, 0, len(chunks))
	rows := make([]*types.SegmentText, 0, len(chunks))
	for _, c := range chunks {
		id := types.SegmentID(types.SourceKindTranscript, conflictID, c.Index)
		segs = append(segs, &types.CandidateSegment{
			ID:             id,
			SourceKind:     types.SourceKindTranscript,
			OriginID:       conflictID,
			RelationshipID: conflict.RelationshipID,
			ChunkIndex:     c.Index,
			RawText:        c.Text,
			TruncatedText:  retriever.MetadataContent(c.Text, p.maxMetadataBytes),
		})
		rows = append(rows, &types.SegmentText{
			ID:             id,
			SourceKind:     string(types.SourceKindTranscript),
			OriginID:       conflictID,
			RelationshipID: conflict.RelationshipID,
			ChunkIndex:     c.Index,
			Content:        c.Text,
		})
	}

	if err := p.texts.SaveTexts(ctx, rows); err != nil {
		logger.Errorf(ctx, "[PrimaryFetcher] Saving texts of conflict %s failed: %v", conflictID, err)
	}
	p.writeBack(ctx, segs)
	logger.Infof(ctx, "[PrimaryFetcher] Backfilled conflict %s with %d chunks", conflictID, len(segs))
	return segs, nil
}

func (p *PrimaryFetcher) writeBack(ctx context.Context, segs []*types.CandidateSegment) {
	inputs := make([]string, len(segs))
	for i, s := range segs {
		inputs[i] = s.RawText
	}
	vectors, err := p.embedder.Embed(ctx, inputs)
	if err != nil {
		logger.Errorf(ctx, "[PrimaryFetcher] Embedding backfilled chunks failed, index not updated: %v", err)
		return
	}
	if len(vectors) != len(segs) {
		logger.Errorf(ctx, "[PrimaryFetcher] Embedder returned %d vectors for %d chunks", len(vectors), len(segs))
		return
	}
	records := make([]*types.SegmentRecord, len(segs))
	for i, s := range segs {
		records[i] = &types.SegmentRecord{
			ID:             s.ID,
			SourceKind:     s.SourceKind,
			OriginID:       s.OriginID,
			RelationshipID: s.RelationshipID,
			ChunkIndex:     s.ChunkIndex,
			Content:        s.RawText,
			Embedding:      vectors[i],
		}
	}
	if err := p.index.UpsertSegments(ctx, records); err != nil {
		logger.Errorf(ctx, "[PrimaryFetcher] Index write-back failed: %v", err)
	}
}

func (p *PrimaryFetcher) transcript(ctx context.Context, conflict *types.Conflict) (string, error) {
	if conflict.TranscriptText != "" || conflict.TranscriptPath == "" {
		return conflict.TranscriptText, nil
	}
	rc, err := p.files.GetFile(ctx, conflict.TranscriptPath)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxTranscriptBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
