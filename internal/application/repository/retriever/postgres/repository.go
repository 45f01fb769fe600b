package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anishgillella/serene-sub003/internal/application/repository/retriever"
	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

const defaultPageSize = 256

// pgSegment is one row of the segment embeddings table
type pgSegment struct {
	ID             string          `gorm:"type:varchar(64);primaryKey"`
	SourceKind     string          `gorm:"type:varchar(32);index"`
	OriginID       string          `gorm:"type:varchar(64);index"`
	RelationshipID string          `gorm:"type:varchar(64);index"`
	ChunkIndex     int             `gorm:"index"`
	Content        string          `gorm:"type:text"`
	Embedding      pgvector.Vector `gorm:"type:vector"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type pgSegmentWithScore struct {
	pgSegment
	Score float64 `gorm:"column:score"`
}

type pgRepository struct {
	db               *gorm.DB
	table            string
	maxMetadataBytes int
	pageSize         int
}

// NewPostgresRetrieveEngineRepository creates a segment index on pgvector.
// The table is created by the database migrations.
func NewPostgresRetrieveEngineRepository(db *gorm.DB, table string, maxMetadataBytes, pageSize int) interfaces.SegmentIndex {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	logger.GetLogger(context.Background()).Infof("[Postgres] Initializing pgvector segment index on table %s", table)
	return &pgRepository{db: db, table: table, maxMetadataBytes: maxMetadataBytes, pageSize: pageSize}
}

func (r *pgRepository) EngineType() string {
	return retriever.PostgresEngineType
}

func (r *pgRepository) UpsertSegments(ctx context.Context, records []*types.SegmentRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]*pgSegment, 0, len(records))
	for _, rec := range records {
		rows = append(rows, &pgSegment{
			ID:             rec.ID,
			SourceKind:     string(rec.SourceKind),
			OriginID:       rec.OriginID,
			RelationshipID: rec.RelationshipID,
			ChunkIndex:     rec.ChunkIndex,
			Content:        retriever.MetadataContent(rec.Content, r.maxMetadataBytes),
			Embedding:      pgvector.NewVector(rec.Embedding),
		})
	}
	err := r.db.WithContext(ctx).Table(r.table).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"source_kind", "origin_id", "relationship_id", "chunk_index", "content", "embedding", "updated_at",
			}),
		}).
		Create(&rows).Error
	if err != nil {
		logger.Errorf(ctx, "[Postgres] Failed to upsert segments: %v", err)
		return fmt.Errorf("failed to upsert segments: %w", err)
	}
	return nil
}

func (r *pgRepository) ListSegments(ctx context.Context,
	f types.SegmentFilter, limit, offset int,
) ([]*types.CandidateSegment, error) {
	if limit <= 0 {
		limit = r.pageSize
	}
	var rows []*pgSegmentWithScore
	err := applyFilter(r.db.WithContext(ctx).Table(r.table), f).
		Select("id, source_kind, origin_id, relationship_id, chunk_index, content, 0 AS score").
		Order("origin_id").Order("chunk_index").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	return toCandidates(rows), nil
}

func (r *pgRepository) SearchSegments(ctx context.Context,
	embedding []float32, f types.SegmentFilter, topK int,
) ([]*types.CandidateSegment, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("empty query embedding")
	}
	vec := pgvector.NewVector(embedding)
	var rows []*pgSegmentWithScore
	err := applyFilter(r.db.WithContext(ctx).Table(r.table), f).
		Select("id, source_kind, origin_id, relationship_id, chunk_index, content, 1 - (embedding <=> ?) AS score", vec).
		Clauses(clause.OrderBy{Expression: clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}}).
		Limit(topK).
		Find(&rows).Error
	if err != nil {
		logger.Errorf(ctx, "[Postgres] Vector search failed: %v", err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	logger.Infof(ctx, "[Postgres] Vector retrieval found %d results", len(rows))
	return toCandidates(rows), nil
}

func applyFilter(db *gorm.DB, f types.SegmentFilter) *gorm.DB {
	if f.SourceKind != "" {
		db = db.Where("source_kind = ?", string(f.SourceKind.IndexKind()))
	}
	if f.OriginID != "" {
		db = db.Where("origin_id = ?", f.OriginID)
	}
	if f.ExcludeOriginID != "" {
		db = db.Where("origin_id <> ?", f.ExcludeOriginID)
	}
	if f.RelationshipID != "" {
		db = db.Where("relationship_id = ?", f.RelationshipID)
	}
	if f.ChunkIndexBelow > 0 {
		db = db.Where("chunk_index < ?", f.ChunkIndexBelow)
	}
	return db
}

func toCandidates(rows []*pgSegmentWithScore) []*types.CandidateSegment {
	out := make([]*types.CandidateSegment, 0, len(rows))
	for _, row := range rows {
		out = append(out, &types.CandidateSegment{
			ID:             row.ID,
			SourceKind:     types.SourceKind(row.SourceKind),
			OriginID:       row.OriginID,
			RelationshipID: row.RelationshipID,
			ChunkIndex:     row.ChunkIndex,
			TruncatedText:  row.Content,
			Score:          row.Score,
		})
	}
	return out
}
