package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

// lookups are chunked to stay below driver placeholder limits
const textLookupBatch = 500

type segmentTextRepository struct {
	db *gorm.DB
}

// NewSegmentTextRepository creates the full-text store for indexed chunks
func NewSegmentTextRepository(db *gorm.DB) interfaces.SegmentTextRepository {
	return &segmentTextRepository{db: db}
}

// SaveTexts upserts texts by segment id
func (r *segmentTextRepository) SaveTexts(ctx context.Context, texts []*types.SegmentText) error {
	if len(texts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "chunk_index", "relationship_id"}),
		}).
		CreateInBatches(texts, 100).Error
}

// GetTexts returns content by segment id. Unknown ids are absent from the map.
func (r *segmentTextRepository) GetTexts(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for start := 0; start < len(ids); start += textLookupBatch {
		end := min(start+textLookupBatch, len(ids))
		var rows []*types.SegmentText
		if err := r.db.WithContext(ctx).
			Select("id", "content").
			Where("id IN ?", ids[start:end]).
			Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			out[row.ID] = row.Content
		}
	}
	return out, nil
}
