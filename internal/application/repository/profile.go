package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a profile document repository
func NewProfileRepository(db *gorm.DB) interfaces.ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) CreateProfileDocument(ctx context.Context, doc *types.ProfileDocument) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *profileRepository) ListProfileDocuments(ctx context.Context, relationshipID string) ([]*types.ProfileDocument, error) {
	var docs []*types.ProfileDocument
	if err := r.db.WithContext(ctx).
		Where("relationship_id = ?", relationshipID).
		Order("created_at DESC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}
