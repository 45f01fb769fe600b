package interfaces

import (
	"context"
	"io"
	"mime/multipart"
	"time"

	"github.com/anishgillella/serene-sub003/internal/types"
)

// SegmentIndex is the vector index holding transcript, profile and calendar chunks
type SegmentIndex interface {
	// ListSegments returns segments matching filter without relevance ranking.
	// limit <= 0 means the engine page size.
	ListSegments(ctx context.Context, filter types.SegmentFilter, limit, offset int) ([]*types.CandidateSegment, error)

	// SearchSegments returns the topK nearest segments to embedding
	SearchSegments(ctx context.Context, embedding []float32, filter types.SegmentFilter, topK int) ([]*types.CandidateSegment, error)

	// UpsertSegments writes records keyed by their ID; repeating a write is safe
	UpsertSegments(ctx context.Context, records []*types.SegmentRecord) error

	EngineType() string
}

// SegmentTextRepository stores the full text of indexed chunks
type SegmentTextRepository interface {
	SaveTexts(ctx context.Context, texts []*types.SegmentText) error
	GetTexts(ctx context.Context, ids []string) (map[string]string, error)
}

// ConflictRepository reads and writes conflict rows
type ConflictRepository interface {
	GetConflict(ctx context.Context, conflictID string) (*types.Conflict, error)
	SaveConflict(ctx context.Context, conflict *types.Conflict) error

	// ListRecentConflicts returns the newest conflicts of a relationship,
	// skipping excludeID
	ListRecentConflicts(ctx context.Context, relationshipID, excludeID string, limit int) ([]*types.Conflict, error)
}

// CalendarRepository reads calendar insights for a relationship
type CalendarRepository interface {
	ListInsights(ctx context.Context, relationshipID string, since time.Time, limit int) ([]*types.CalendarInsight, error)
}

// ProfileRepository records uploaded profile documents
type ProfileRepository interface {
	CreateProfileDocument(ctx context.Context, doc *types.ProfileDocument) error
	ListProfileDocuments(ctx context.Context, relationshipID string) ([]*types.ProfileDocument, error)
}

// FileService is the object store holding transcripts and uploads
type FileService interface {
	SaveFile(ctx context.Context, file *multipart.FileHeader, relationshipID string, documentID string) (string, error)
	GetFile(ctx context.Context, filePath string) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, filePath string) error
}

// Embedder turns texts into vectors, one per input, in order
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// Reranker scores documents against a query. Results may come back in any
// order and may omit documents.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]types.RankResult, error)
	ModelName() string
}

// FetchFunc produces segments on a cache miss
type FetchFunc func(ctx context.Context) ([]*types.CandidateSegment, error)

// SessionCache memoizes session-invariant sources per mediation session
type SessionCache interface {
	// GetOrFetch returns the live entry for key in sessionID, calling fetch
	// at most once per entry. Non-cacheable keys always call fetch.
	GetOrFetch(ctx context.Context, sessionID string, key types.CacheKey, fetch FetchFunc) ([]*types.CandidateSegment, error)

	// Invalidate drops key from every session
	Invalidate(ctx context.Context, key types.CacheKey) error

	// EndSession drops every entry of sessionID
	EndSession(ctx context.Context, sessionID string) error

	// Sweep ends sessions not touched for longer than idle and returns how many
	Sweep(ctx context.Context, idle time.Duration) (int, error)
}

// ContextService builds prompt context for mediation turns
type ContextService interface {
	Build(ctx context.Context, req *types.ContextRequest) (*types.AssembledContext, error)

	// Reindex rebuilds the index entries of one conflict from its stored transcript
	Reindex(ctx context.Context, conflictID string) (int, error)

	EndSession(ctx context.Context, sessionID string) error
}

// ProfileService ingests partner profile uploads
type ProfileService interface {
	Ingest(ctx context.Context, relationshipID, partnerID string, files []*multipart.FileHeader) ([]*types.ProfileDocument, error)
}
