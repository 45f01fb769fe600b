package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	client "github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/anishgillella/serene-sub003/internal/application/repository/retriever"
	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

const (
	defaultCollectionName = "serene_segments"
	defaultPageSize       = 256
	// varchar limit of the content field
	maxContentLength = 65535
)

var allFields = []string{
	retriever.FieldID, retriever.FieldContent, retriever.FieldSourceKind, retriever.FieldOriginID,
	retriever.FieldRelationshipID, retriever.FieldChunkIndex,
}

// NewMilvusRetrieveEngineRepository creates a segment index backed by Milvus.
// dimension fixes the collection the service reads and writes.
func NewMilvusRetrieveEngineRepository(client *client.Client,
	collectionBaseName string, dimension, maxMetadataBytes, pageSize int,
) interfaces.SegmentIndex {
	log := logger.GetLogger(context.Background())
	log.Info("[Milvus] Initializing Milvus segment index")

	if collectionBaseName == "" {
		log.Warn("[Milvus] collection name not set, using default collection name")
		collectionBaseName = defaultCollectionName
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if maxMetadataBytes <= 0 || maxMetadataBytes > maxContentLength {
		maxMetadataBytes = maxContentLength
	}

	return &milvusRepository{
		filter:             filter{},
		client:             client,
		collectionBaseName: collectionBaseName,
		dimension:          dimension,
		maxMetadataBytes:   maxMetadataBytes,
		pageSize:           pageSize,
	}
}

func (m *milvusRepository) EngineType() string {
	return retriever.MilvusEngineType
}

// getCollectionName returns the collection name for a specific dimension
func (m *milvusRepository) getCollectionName(dimension int) string {
	return fmt.Sprintf("%s_%d", m.collectionBaseName, dimension)
}

// ensureCollection ensures the collection exists for the given dimension
func (m *milvusRepository) ensureCollection(ctx context.Context, dimension int) error {
	collectionName := m.getCollectionName(dimension)
	if _, ok := m.initializedCollections.Load(collectionName); ok {
		return nil
	}

	log := logger.GetLogger(ctx)
	hasCollection, err := m.client.HasCollection(ctx, client.NewHasCollectionOption(collectionName))
	if err != nil {
		log.Errorf("[Milvus] Failed to check collection existence: %v", err)
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !hasCollection {
		log.Infof("[Milvus] Creating collection %s with dimension %d", collectionName, dimension)

		schema := &entity.Schema{
			CollectionName: collectionName,
			Description:    fmt.Sprintf("Serene context segments with dimension %d", dimension),
			AutoID:         false,
			Fields: []*entity.Field{
				entity.NewField().
					WithName(retriever.FieldID).
					WithDataType(entity.FieldTypeVarChar).
					WithIsPrimaryKey(true).
					WithMaxLength(64),
				entity.NewField().
					WithName(retriever.FieldEmbedding).
					WithDataType(entity.FieldTypeFloatVector).
					WithDim(int64(dimension)),
				entity.NewField().
					WithName(retriever.FieldContent).
					WithDataType(entity.FieldTypeVarChar).
					WithMaxLength(maxContentLength),
				entity.NewField().
					WithName(retriever.FieldSourceKind).
					WithDataType(entity.FieldTypeVarChar).
					WithMaxLength(32),
				entity.NewField().
					WithName(retriever.FieldOriginID).
					WithDataType(entity.FieldTypeVarChar).
					WithMaxLength(64),
				entity.NewField().
					WithName(retriever.FieldRelationshipID).
					WithDataType(entity.FieldTypeVarChar).
					WithMaxLength(64),
				entity.NewField().
					WithName(retriever.FieldChunkIndex).
					WithDataType(entity.FieldTypeInt64),
			},
		}

		indexOpts := []client.CreateIndexOption{
			client.NewCreateIndexOption(collectionName, retriever.FieldEmbedding, index.NewHNSWIndex(entity.COSINE, 16, 128)),
		}
		for _, fieldName := range []string{retriever.FieldSourceKind, retriever.FieldOriginID, retriever.FieldRelationshipID} {
			indexOpts = append(indexOpts, client.NewCreateIndexOption(collectionName, fieldName, index.NewAutoIndex(entity.IP)))
		}

		err = m.client.CreateCollection(ctx, client.NewCreateCollectionOption(collectionName, schema).WithIndexOptions(indexOpts...))
		if err != nil {
			log.Errorf("[Milvus] Failed to create collection: %v", err)
			return fmt.Errorf("failed to create collection: %w", err)
		}
		log.Infof("[Milvus] Successfully created collection %s", collectionName)
	}

	loadTask, err := m.client.LoadCollection(ctx, client.NewLoadCollectionOption(collectionName))
	if err != nil {
		log.Errorf("[Milvus] Failed to load collection: %v", err)
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		log.Errorf("[Milvus] Failed to await load collection: %v", err)
		return fmt.Errorf("failed to await load collection: %w", err)
	}

	m.initializedCollections.Store(collectionName, true)
	return nil
}

// collectionReady reports whether the service collection exists, so reads
// against a fresh deployment return empty instead of failing
func (m *milvusRepository) collectionReady(ctx context.Context) (bool, error) {
	collectionName := m.getCollectionName(m.dimension)
	if _, ok := m.initializedCollections.Load(collectionName); ok {
		return true, nil
	}
	has, err := m.client.HasCollection(ctx, client.NewHasCollectionOption(collectionName))
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		return false, nil
	}
	return true, m.ensureCollection(ctx, m.dimension)
}

// UpsertSegments writes records keyed by segment id
func (m *milvusRepository) UpsertSegments(ctx context.Context, records []*types.SegmentRecord) error {
	log := logger.GetLogger(ctx)
	if len(records) == 0 {
		log.Warn("[Milvus] Empty list provided to UpsertSegments, skipping")
		return nil
	}

	rows := make([]*MilvusSegment, 0, len(records))
	for _, r := range records {
		if len(r.Embedding) != m.dimension {
			return fmt.Errorf("segment %s: embedding dimension %d, collection expects %d",
				r.ID, len(r.Embedding), m.dimension)
		}
		rows = append(rows, toMilvusSegment(r, m.maxMetadataBytes))
	}

	if err := m.ensureCollection(ctx, m.dimension); err != nil {
		return err
	}
	collectionName := m.getCollectionName(m.dimension)
	if _, err := m.client.Upsert(ctx, createUpsert(collectionName, m.dimension, rows)); err != nil {
		log.Errorf("[Milvus] Failed to upsert segments: %v", err)
		return fmt.Errorf("failed to upsert segments: %w", err)
	}

	log.Infof("[Milvus] Upserted %d segments into %s", len(rows), collectionName)
	return nil
}

// ListSegments runs a filter-only query
func (m *milvusRepository) ListSegments(ctx context.Context,
	f types.SegmentFilter, limit, offset int,
) ([]*types.CandidateSegment, error) {
	log := logger.GetLogger(ctx)
	ready, err := m.collectionReady(ctx)
	if err != nil {
		return nil, err
	}
	if !ready {
		log.Warnf("[Milvus] Collection %s does not exist, returning empty results", m.getCollectionName(m.dimension))
		return nil, nil
	}
	if limit <= 0 {
		limit = m.pageSize
	}

	queryOpt, err := m.listOption(f, limit, offset)
	if err != nil {
		return nil, err
	}
	resultSet, err := m.client.Query(ctx, queryOpt)
	if err != nil {
		log.Errorf("[Milvus] Segment query failed: %v", err)
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	rows, err := convertResultSet(resultSet)
	if err != nil {
		return nil, err
	}
	log.Debugf("[Milvus] Listed %d segments (offset %d)", len(rows), offset)
	return toCandidates(rows), nil
}

// listOption builds a filter-only query. Listings read with strong
// consistency so chunks upserted by a backfill are visible to the next call.
func (m *milvusRepository) listOption(f types.SegmentFilter, limit, offset int) (client.QueryOption, error) {
	queryOpt := client.NewQueryOption(m.getCollectionName(m.dimension))
	if cond := segmentCondition(f); cond != nil {
		params, err := m.filter.Convert(cond)
		if err != nil {
			return nil, err
		}
		queryOpt.WithFilter(params.exprStr)
		for k, v := range params.params {
			queryOpt.WithTemplateParam(k, v)
		}
	}
	queryOpt.WithOutputFields(allFields...)
	queryOpt.WithLimit(limit)
	queryOpt.WithOffset(offset)
	queryOpt.WithConsistencyLevel(entity.ClStrong)
	return queryOpt, nil
}

// SearchSegments performs vector similarity search
func (m *milvusRepository) SearchSegments(ctx context.Context,
	embedding []float32, f types.SegmentFilter, topK int,
) ([]*types.CandidateSegment, error) {
	log := logger.GetLogger(ctx)
	if len(embedding) != m.dimension {
		return nil, fmt.Errorf("query embedding dimension %d, collection expects %d", len(embedding), m.dimension)
	}
	log.Infof("[Milvus] Vector retrieval: dim=%d, topK=%d", len(embedding), topK)

	ready, err := m.collectionReady(ctx)
	if err != nil {
		return nil, err
	}
	if !ready {
		log.Warnf("[Milvus] Collection %s does not exist, returning empty results", m.getCollectionName(m.dimension))
		return nil, nil
	}

	searchOption := client.NewSearchOption(m.getCollectionName(m.dimension), topK,
		[]entity.Vector{entity.FloatVector(embedding)})
	searchOption.WithANNSField(retriever.FieldEmbedding)
	if cond := segmentCondition(f); cond != nil {
		params, err := m.filter.Convert(cond)
		if err != nil {
			return nil, err
		}
		searchOption.WithFilter(params.exprStr)
		for k, v := range params.params {
			searchOption.WithTemplateParam(k, v)
		}
	}
	searchOption.WithOutputFields(allFields...)

	resultSets, err := m.client.Search(ctx, searchOption)
	if err != nil {
		log.Errorf("[Milvus] Vector search failed: %v", err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(resultSets) == 0 {
		return nil, nil
	}
	rows, err := convertResultSet(resultSets[0])
	if err != nil {
		log.Errorf("[Milvus] Failed to convert result set: %v", err)
		return nil, fmt.Errorf("failed to convert result set: %w", err)
	}
	for i, score := range resultSets[0].Scores {
		if i < len(rows) {
			rows[i].Score = float64(score)
		}
	}
	log.Infof("[Milvus] Vector retrieval found %d results", len(rows))
	return toCandidates(rows), nil
}

func toMilvusSegment(r *types.SegmentRecord, maxMetadataBytes int) *MilvusSegment {
	return &MilvusSegment{
		ID:             r.ID,
		Content:        retriever.MetadataContent(r.Content, maxMetadataBytes),
		SourceKind:     string(r.SourceKind),
		OriginID:       r.OriginID,
		RelationshipID: r.RelationshipID,
		ChunkIndex:     int64(r.ChunkIndex),
		Embedding:      r.Embedding,
	}
}

func toCandidates(rows []*MilvusSegmentWithScore) []*types.CandidateSegment {
	out := make([]*types.CandidateSegment, 0, len(rows))
	for _, row := range rows {
		out = append(out, &types.CandidateSegment{
			ID:             row.ID,
			SourceKind:     types.SourceKind(row.SourceKind),
			OriginID:       row.OriginID,
			RelationshipID: row.RelationshipID,
			ChunkIndex:     int(row.ChunkIndex),
			TruncatedText:  row.Content,
			Score:          row.Score,
		})
	}
	return out
}

func createUpsert(collectionName string, dimension int, rows []*MilvusSegment) client.UpsertOption {
	ids := make([]string, 0, len(rows))
	embeddings := make([][]float32, 0, len(rows))
	contents := make([]string, 0, len(rows))
	kinds := make([]string, 0, len(rows))
	originIDs := make([]string, 0, len(rows))
	relationshipIDs := make([]string, 0, len(rows))
	chunkIndexes := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
		embeddings = append(embeddings, row.Embedding)
		contents = append(contents, row.Content)
		kinds = append(kinds, row.SourceKind)
		originIDs = append(originIDs, row.OriginID)
		relationshipIDs = append(relationshipIDs, row.RelationshipID)
		chunkIndexes = append(chunkIndexes, row.ChunkIndex)
	}
	return client.NewColumnBasedInsertOption(collectionName).
		WithVarcharColumn(retriever.FieldID, ids).
		WithFloatVectorColumn(retriever.FieldEmbedding, dimension, embeddings).
		WithVarcharColumn(retriever.FieldContent, contents).
		WithVarcharColumn(retriever.FieldSourceKind, kinds).
		WithVarcharColumn(retriever.FieldOriginID, originIDs).
		WithVarcharColumn(retriever.FieldRelationshipID, relationshipIDs).
		WithInt64Column(retriever.FieldChunkIndex, chunkIndexes)
}

func convertResultSet(set client.ResultSet) ([]*MilvusSegmentWithScore, error) {
	if len(set.Fields) == 0 {
		return nil, nil
	}
	resultLen := set.Fields[0].Len()
	docs := make([]*MilvusSegmentWithScore, 0, resultLen)
	for i := 0; i < resultLen; i++ {
		docs = append(docs, &MilvusSegmentWithScore{})
	}
	for _, field := range allFields {
		columns := set.GetColumn(field)
		if columns == nil || columns.Len() == 0 {
			continue
		}
		for i := 0; i < columns.Len() && i < resultLen; i++ {
			if field == retriever.FieldChunkIndex {
				val, err := columns.GetAsInt64(i)
				if err != nil {
					return nil, err
				}
				docs[i].ChunkIndex = val
				continue
			}
			val, err := columns.GetAsString(i)
			if err != nil {
				return nil, err
			}
			switch field {
			case retriever.FieldID:
				docs[i].ID = val
			case retriever.FieldContent:
				docs[i].Content = val
			case retriever.FieldSourceKind:
				docs[i].SourceKind = val
			case retriever.FieldOriginID:
				docs[i].OriginID = val
			case retriever.FieldRelationshipID:
				docs[i].RelationshipID = val
			}
		}
	}
	return docs, nil
}
