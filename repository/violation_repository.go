package repository

import (
	"context"
	"fmt"

	"github.com/camden-git/ppemonitor/models"
	"gorm.io/gorm"
)

type GormViolationRepository struct {
	db *gorm.DB
}

func NewGormViolationRepository(db *gorm.DB) ViolationRepository {
	return &GormViolationRepository{db: db}
}

func (r *GormViolationRepository) Create(ctx context.Context, violation *models.Violation) error {
	if violation.UserID == "" {
		return fmt.Errorf("violation has no owning user")
	}
	return r.db.WithContext(ctx).Create(violation).Error
}

func (r *GormViolationRepository) CreateBatch(ctx context.Context, violations []*models.Violation) error {
	if len(violations) == 0 {
		return nil
	}
	for _, v := range violations {
		if v.UserID == "" {
			return fmt.Errorf("violation %q has no owning user", v.Label)
		}
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, v := range violations {
			if err := tx.Create(v).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *GormViolationRepository) ListByUser(ctx context.Context, userID string) ([]models.Violation, error) {
	violations := []models.Violation{}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Find(&violations).Error
	return violations, err
}
