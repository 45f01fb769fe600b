package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/anishgillella/serene-sub003/internal/errors"
	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

// conflictRepository implements the ConflictRepository interface
type conflictRepository struct {
	db *gorm.DB
}

// NewConflictRepository creates a new conflict repository
func NewConflictRepository(db *gorm.DB) interfaces.ConflictRepository {
	return &conflictRepository{db: db}
}

// GetConflict returns the conflict row, ErrNotFound when it does not exist
func (r *conflictRepository) GetConflict(ctx context.Context, conflictID string) (*types.Conflict, error) {
	var conflict types.Conflict
	if err := r.db.WithContext(ctx).Where("id = ?", conflictID).First(&conflict).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &conflict, nil
}

// SaveConflict inserts or updates a conflict
func (r *conflictRepository) SaveConflict(ctx context.Context, conflict *types.Conflict) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(conflict).Error
}

func (r *conflictRepository) ListRecentConflicts(ctx context.Context,
	relationshipID, excludeID string, limit int,
) ([]*types.Conflict, error) {
	var conflicts []*types.Conflict
	query := r.db.WithContext(ctx).
		Omit("transcript_text").
		Where("relationship_id = ?", relationshipID).
		Order("started_at DESC")
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&conflicts).Error; err != nil {
		return nil, err
	}
	return conflicts, nil
}
