package qdrant

import (
	"context"
	"fmt"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/anishgillella/serene-sub003/internal/application/repository/retriever"
	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

const defaultPageSize = 256

type qdrantRepository struct {
	client           *qdrant.Client
	collectionName   string
	dimension        int
	maxMetadataBytes int
	pageSize         int
	mu               sync.Mutex
	ready            bool
}

// NewQdrantRetrieveEngineRepository creates a segment index backed by Qdrant.
// Segment ids must be UUIDs, which is what the ingest paths generate.
func NewQdrantRetrieveEngineRepository(client *qdrant.Client,
	collectionBaseName string, dimension, maxMetadataBytes, pageSize int,
) interfaces.SegmentIndex {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	logger.GetLogger(context.Background()).Info("[Qdrant] Initializing Qdrant segment index")
	return &qdrantRepository{
		client:           client,
		collectionName:   fmt.Sprintf("%s_%d", collectionBaseName, dimension),
		dimension:        dimension,
		maxMetadataBytes: maxMetadataBytes,
		pageSize:         pageSize,
	}
}

func (q *qdrantRepository) EngineType() string {
	return retriever.QdrantEngineType
}

func (q *qdrantRepository) ensureCollection(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ready {
		return nil
	}
	if err := q.createCollection(ctx); err != nil {
		return err
	}
	q.ready = true
	return nil
}

func (q *qdrantRepository) createCollection(ctx context.Context) error {
	log := logger.GetLogger(ctx)
	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}
	log.Infof("[Qdrant] Creating collection %s with dimension %d", q.collectionName, q.dimension)
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	for _, field := range []string{retriever.FieldSourceKind, retriever.FieldOriginID, retriever.FieldRelationshipID} {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collectionName,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		}); err != nil {
			return fmt.Errorf("failed to index payload field %s: %w", field, err)
		}
	}
	// integer index so listings can be ordered by chunk position
	if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collectionName,
		FieldName:      retriever.FieldChunkIndex,
		FieldType:      qdrant.FieldType_FieldTypeInteger.Enum(),
	}); err != nil {
		return fmt.Errorf("failed to index payload field %s: %w", retriever.FieldChunkIndex, err)
	}
	return nil
}

func (q *qdrantRepository) UpsertSegments(ctx context.Context, records []*types.SegmentRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := q.ensureCollection(ctx); err != nil {
		return err
	}
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		if len(r.Embedding) != q.dimension {
			return fmt.Errorf("segment %s: embedding dimension %d, collection expects %d",
				r.ID, len(r.Embedding), q.dimension)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(r.ID),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				retriever.FieldContent:        retriever.MetadataContent(r.Content, q.maxMetadataBytes),
				retriever.FieldSourceKind:     string(r.SourceKind),
				retriever.FieldOriginID:       r.OriginID,
				retriever.FieldRelationshipID: r.RelationshipID,
				retriever.FieldChunkIndex:     int64(r.ChunkIndex),
			}),
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		logger.Errorf(ctx, "[Qdrant] Failed to upsert segments: %v", err)
		return fmt.Errorf("failed to upsert segments: %w", err)
	}
	logger.Infof(ctx, "[Qdrant] Upserted %d segments into %s", len(points), q.collectionName)
	return nil
}

func (q *qdrantRepository) ListSegments(ctx context.Context,
	f types.SegmentFilter, limit, offset int,
) ([]*types.CandidateSegment, error) {
	if err := q.ensureCollection(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = q.pageSize
	}
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQueryOrderBy(&qdrant.OrderBy{Key: retriever.FieldChunkIndex}),
		Filter:         buildFilter(f),
		Limit:          qdrant.PtrOf(uint64(limit)),
		Offset:         qdrant.PtrOf(uint64(offset)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		logger.Errorf(ctx, "[Qdrant] Segment listing failed: %v", err)
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	return toCandidates(points, false), nil
}

func (q *qdrantRepository) SearchSegments(ctx context.Context,
	embedding []float32, f types.SegmentFilter, topK int,
) ([]*types.CandidateSegment, error) {
	if len(embedding) != q.dimension {
		return nil, fmt.Errorf("query embedding dimension %d, collection expects %d", len(embedding), q.dimension)
	}
	if err := q.ensureCollection(ctx); err != nil {
		return nil, err
	}
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         buildFilter(f),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		logger.Errorf(ctx, "[Qdrant] Vector search failed: %v", err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	logger.Infof(ctx, "[Qdrant] Vector retrieval found %d results", len(points))
	return toCandidates(points, true), nil
}

// buildFilter translates a segment filter, nil when nothing filters
func buildFilter(f types.SegmentFilter) *qdrant.Filter {
	var must, mustNot []*qdrant.Condition
	if f.SourceKind != "" {
		must = append(must, qdrant.NewMatch(retriever.FieldSourceKind, string(f.SourceKind.IndexKind())))
	}
	if f.OriginID != "" {
		must = append(must, qdrant.NewMatch(retriever.FieldOriginID, f.OriginID))
	}
	if f.RelationshipID != "" {
		must = append(must, qdrant.NewMatch(retriever.FieldRelationshipID, f.RelationshipID))
	}
	if f.ChunkIndexBelow > 0 {
		must = append(must, qdrant.NewRange(retriever.FieldChunkIndex, &qdrant.Range{
			Lt: qdrant.PtrOf(float64(f.ChunkIndexBelow)),
		}))
	}
	if f.ExcludeOriginID != "" {
		mustNot = append(mustNot, qdrant.NewMatch(retriever.FieldOriginID, f.ExcludeOriginID))
	}
	if len(must) == 0 && len(mustNot) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must, MustNot: mustNot}
}

func toCandidates(points []*qdrant.ScoredPoint, withScore bool) []*types.CandidateSegment {
	out := make([]*types.CandidateSegment, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		seg := &types.CandidateSegment{
			ID:             p.GetId().GetUuid(),
			SourceKind:     types.SourceKind(payload[retriever.FieldSourceKind].GetStringValue()),
			OriginID:       payload[retriever.FieldOriginID].GetStringValue(),
			RelationshipID: payload[retriever.FieldRelationshipID].GetStringValue(),
			ChunkIndex:     int(payload[retriever.FieldChunkIndex].GetIntegerValue()),
			TruncatedText:  payload[retriever.FieldContent].GetStringValue(),
		}
		if withScore {
			seg.Score = float64(p.GetScore())
		}
		out = append(out, seg)
	}
	return out
}
