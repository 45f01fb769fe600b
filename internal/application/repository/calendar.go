package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

type calendarRepository struct {
	db *gorm.DB
}

// NewCalendarRepository creates a calendar insight repository
func NewCalendarRepository(db *gorm.DB) interfaces.CalendarRepository {
	return &calendarRepository{db: db}
}

// ListInsights returns insights observed after since, newest first
func (r *calendarRepository) ListInsights(ctx context.Context,
	relationshipID string, since time.Time, limit int,
) ([]*types.CalendarInsight, error) {
	var insights []*types.CalendarInsight
	query := r.db.WithContext(ctx).
		Where("relationship_id = ?", relationshipID).
		Order("observed_at DESC")
	if !since.IsZero() {
		query = query.Where("observed_at >= ?", since)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&insights).Error; err != nil {
		return nil, err
	}
	return insights, nil
}

// CreateInsight stores one insight. Used by seeding and tests.
func CreateInsight(ctx context.Context, db *gorm.DB, insight *types.CalendarInsight) error {
	return db.WithContext(ctx).Create(insight).Error
}
