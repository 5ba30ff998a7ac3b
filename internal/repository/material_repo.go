package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/edugrove/examgen-api/internal/models"
)

// MaterialFilter narrows material listings.
type MaterialFilter struct {
	Kind        string
	IndexStatus string
	UploaderID  *uint
}

// MaterialRepository defines persistence operations for study materials.
type MaterialRepository interface {
	List(ctx context.Context, filter MaterialFilter) ([]models.Material, error)
	GetByID(ctx context.Context, id uint) (models.Material, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.Material, error)
	ListGlobalDocuments(ctx context.Context) ([]models.Material, error)
	Create(ctx context.Context, material *models.Material) error
	Update(ctx context.Context, material *models.Material) error
	SetIndexOutcome(ctx context.Context, id uint, status string, chunkCount int, indexError string) error
	Delete(ctx context.Context, id uint) error
}

type materialRepository struct {
	db *gorm.DB
}

// NewMaterialRepository instantiates a GORM-backed repository.
func NewMaterialRepository(db *gorm.DB) MaterialRepository {
	return &materialRepository{db: db}
}

func (r *materialRepository) List(ctx context.Context, filter MaterialFilter) ([]models.Material, error) {
	query := r.db.WithContext(ctx).Model(&models.Material{})

	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.IndexStatus != "" {
		query = query.Where("index_status = ?", filter.IndexStatus)
	}
	if filter.UploaderID != nil {
		query = query.Where("uploader_id = ?", *filter.UploaderID)
	}

	var materials []models.Material
	if err := query.Order("created_at DESC").Find(&materials).Error; err != nil {
		return nil, err
	}

	return materials, nil
}

func (r *materialRepository) GetByID(ctx context.Context, id uint) (models.Material, error) {
	var material models.Material
	if err := r.db.WithContext(ctx).First(&material, id).Error; err != nil {
		return models.Material{}, err
	}

	return material, nil
}

func (r *materialRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.Material, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var materials []models.Material
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&materials).Error; err != nil {
		return nil, err
	}

	return materials, nil
}

func (r *materialRepository) ListGlobalDocuments(ctx context.Context) ([]models.Material, error) {
	var materials []models.Material
	err := r.db.WithContext(ctx).
		Where("kind = ? AND visibility = ?", models.MaterialKindDocument, models.VisibilityGlobal).
		Order("created_at DESC").
		Find(&materials).Error
	if err != nil {
		return nil, err
	}

	return materials, nil
}

func (r *materialRepository) Create(ctx context.Context, material *models.Material) error {
	return r.db.WithContext(ctx).Create(material).Error
}

func (r *materialRepository) Update(ctx context.Context, material *models.Material) error {
	return r.db.WithContext(ctx).Save(material).Error
}

func (r *materialRepository) SetIndexOutcome(ctx context.Context, id uint, status string, chunkCount int, indexError string) error {
	updates := map[string]interface{}{
		"index_status": status,
		"chunk_count":  chunkCount,
		"index_error":  indexError,
	}

	result := r.db.WithContext(ctx).Model(&models.Material{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *materialRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Material{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
