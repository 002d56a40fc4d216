package repository

import (
	"context"

	"github.com/camden-git/ppemonitor/models"
	"gorm.io/gorm"
)

type GormUploadRepository struct {
	db *gorm.DB
}

func NewGormUploadRepository(db *gorm.DB) UploadRepository {
	return &GormUploadRepository{db: db}
}

func (r *GormUploadRepository) Create(ctx context.Context, upload *models.Upload) error {
	return r.db.WithContext(ctx).Create(upload).Error
}

func (r *GormUploadRepository) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	var upload models.Upload
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&upload).Error; err != nil {
		return nil, err
	}
	return &upload, nil
}

func (r *GormUploadRepository) Update(ctx context.Context, upload *models.Upload) error {
	return r.db.WithContext(ctx).Save(upload).Error
}

func (r *GormUploadRepository) ListByUser(ctx context.Context, userID string) ([]models.Upload, error) {
	uploads := []models.Upload{}
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&uploads).Error
	return uploads, err
}
