package repository

import (
	"context"

	"github.com/camden-git/ppemonitor/models"
)

// UserRepository defines the methods for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// GetByUsernameOrEmail resolves a login identifier, trying the username first.
	GetByUsernameOrEmail(ctx context.Context, identifier string) (*models.User, error)
	ListAll(ctx context.Context) ([]models.User, error)
	UpdateRole(ctx context.Context, id string, role models.Role) (*models.User, error)
	// Delete removes the user and, in the same transaction, every violation and upload it owns.
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
	CountByRole(ctx context.Context, role models.Role) (int64, error)
}

// ViolationRepository is the append-only violation log keyed by user.
type ViolationRepository interface {
	Create(ctx context.Context, violation *models.Violation) error
	// CreateBatch stores all records of one frame atomically.
	CreateBatch(ctx context.Context, violations []*models.Violation) error
	// ListByUser returns the user's records, newest first.
	ListByUser(ctx context.Context, userID string) ([]models.Violation, error)
}

// UploadRepository tracks stored upload assets.
type UploadRepository interface {
	Create(ctx context.Context, upload *models.Upload) error
	GetByID(ctx context.Context, id string) (*models.Upload, error)
	Update(ctx context.Context, upload *models.Upload) error
	ListByUser(ctx context.Context, userID string) ([]models.Upload, error)
}
