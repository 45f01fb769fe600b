// Package profile ingests partner profile documents into the segment index.
package profile

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	apperrors "github.com/anishgillella/serene-sub003/internal/errors"
	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
	"github.com/anishgillella/serene-sub003/internal/utils/chunker"
)

var allowedExtensions = map[string]bool{".txt": true, ".md": true, ".markdown": true}

// Config limits uploads
type Config struct {
	MaxFileBytes int64
}

type profileService struct {
	pool     *ants.Pool
	files    interfaces.FileService
	docs     interfaces.ProfileRepository
	texts    interfaces.SegmentTextRepository
	index    interfaces.SegmentIndex
	embedder interfaces.Embedder
	cache    interfaces.SessionCache
	chunker  *chunker.Chunker
	cfg      Config
}

// NewProfileService creates the ingestion service. Files of one upload are
// processed concurrently on pool.
func NewProfileService(
	pool *ants.Pool,
	files interfaces.FileService,
	docs interfaces.ProfileRepository,
	texts interfaces.SegmentTextRepository,
	index interfaces.SegmentIndex,
	embedder interfaces.Embedder,
	cache interfaces.SessionCache,
	splitter *chunker.Chunker,
	cfg Config,
) interfaces.ProfileService {
	return &profileService{
		pool:     pool,
		files:    files,
		docs:     docs,
		texts:    texts,
		index:    index,
		embedder: embedder,
		cache:    cache,
		chunker:  splitter,
		cfg:      cfg,
	}
}

// Ingest stores, chunks and indexes each file, then drops the cached
// profiles of the relationship so running sessions pick up the change
func (s *profileService) Ingest(ctx context.Context,
	relationshipID, partnerID string, files []*multipart.FileHeader,
) ([]*types.ProfileDocument, error) {
	if relationshipID == "" {
		return nil, fmt.Errorf("%w: missing relationship id", apperrors.ErrInvalidRequest)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files uploaded", apperrors.ErrInvalidRequest)
	}
	for _, fh := range files {
		if err := s.check(fh); err != nil {
			return nil, err
		}
	}

	docs := make([]*types.ProfileDocument, len(files))
	errs := make([]error, len(files))
	var wg sync.WaitGroup
	for i, fh := range files {
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			docs[i], errs[i] = s.ingestOne(ctx, relationshipID, partnerID, fh)
		})
		if err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("schedule %s: %w", fh.Filename, err)
		}
	}
	wg.Wait()

	// invalidate even on partial failure, some documents may have landed
	key := types.CacheKey{RelationshipID: relationshipID, Kind: types.SourceKindProfile}
	if err := s.cache.Invalidate(ctx, key); err != nil {
		logger.Errorf(ctx, "[ProfileService] Cache invalidation for %s failed: %v", key, err)
	}

	var out []*types.ProfileDocument
	var failed []types.UploadFailure
	var names []string
	for i, d := range docs {
		if errs[i] != nil {
			logger.Errorf(ctx, "[ProfileService] Ingesting %s failed: %v", files[i].Filename, errs[i])
			failed = append(failed, types.UploadFailure{FileName: files[i].Filename, Reason: errs[i].Error()})
			names = append(names, files[i].Filename)
			continue
		}
		out = append(out, d)
	}
	if len(failed) > 0 {
		return out, apperrors.NewUploadError(fmt.Errorf("failed files: %s", strings.Join(names, ", "))).
			WithDetails(failed)
	}
	return out, nil
}

func (s *profileService) check(fh *multipart.FileHeader) error {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedExtensions[ext] {
		return fmt.Errorf("%w: unsupported file type %q", apperrors.ErrInvalidRequest, ext)
	}
	if s.cfg.MaxFileBytes > 0 && fh.Size > s.cfg.MaxFileBytes {
		return fmt.Errorf("%w: %s exceeds %d bytes", apperrors.ErrInvalidRequest, fh.Filename, s.cfg.MaxFileBytes)
	}
	return nil
}

func (s *profileService) ingestOne(ctx context.Context,
	relationshipID, partnerID string, fh *multipart.FileHeader,
) (*types.ProfileDocument, error) {
	text, err := readText(fh)
	if err != nil {
		return nil, err
	}
	docID := uuid.New().String()
	path, err := s.files.SaveFile(ctx, fh, relationshipID, docID)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	chunks, err := s.chunker.Split(text)
	if err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%s has no text", fh.Filename)
	}
	inputs := make([]string, len(chunks))
	for i, c := range chunks {
		inputs[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	records := make([]*types.SegmentRecord, len(chunks))
	rows := make([]*types.SegmentText, len(chunks))
	for i, c := range chunks {
		id := types.SegmentID(types.SourceKindProfile, docID, c.Index)
		records[i] = &types.SegmentRecord{
			ID:             id,
			SourceKind:     types.SourceKindProfile,
			OriginID:       docID,
			RelationshipID: relationshipID,
			ChunkIndex:     c.Index,
			Content:        c.Text,
			Embedding:      vectors[i],
		}
		rows[i] = &types.SegmentText{
			ID:             id,
			SourceKind:     string(types.SourceKindProfile),
			OriginID:       docID,
			RelationshipID: relationshipID,
			ChunkIndex:     c.Index,
			Content:        c.Text,
		}
	}
	// full texts first: an indexed chunk without its text would be served truncated
	if err := s.texts.SaveTexts(ctx, rows); err != nil {
		return nil, fmt.Errorf("save texts: %w", err)
	}
	if err := s.index.UpsertSegments(ctx, records); err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	doc := &types.ProfileDocument{
		ID:             docID,
		RelationshipID: relationshipID,
		PartnerID:      partnerID,
		FileName:       fh.Filename,
		FilePath:       path,
		ChunkCount:     len(chunks),
	}
	if err := s.docs.CreateProfileDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	logger.Infof(ctx, "[ProfileService] Indexed %s as %d chunks on %s", fh.Filename, len(chunks), s.index.EngineType())
	return doc, nil
}

func readText(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not UTF-8 text", apperrors.ErrInvalidRequest, fh.Filename)
	}
	return string(data), nil
}
