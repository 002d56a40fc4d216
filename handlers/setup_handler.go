package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/camden-git/ppemonitor/models"
	"github.com/camden-git/ppemonitor/repository"
)

// AdminAccount is the startup-provisioned administrator.
type AdminAccount struct {
	Username string
	Password string
	Email    string
}

// ErrNoAdminAccount means startup finished without any account holding the admin role.
var ErrNoAdminAccount = errors.New("no admin account exists")

// EnsureAdminAccount makes sure the configured admin exists with the admin role.
// It is safe to run on every startup: an existing account is promoted if needed
// and its password is never changed. It returns ErrNoAdminAccount when no admin
// exists afterwards.
func EnsureAdminAccount(ctx context.Context, userRepo repository.UserRepository, account AdminAccount, logger *zap.Logger) error {
	if account.Username != "" {
		if err := provisionAdmin(ctx, userRepo, account, logger); err != nil {
			return err
		}
	}

	admins, err := userRepo.CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to count admin accounts: %w", err)
	}
	if admins == 0 {
		return fmt.Errorf("%w: set ADMIN_USERNAME and ADMIN_PASSWORD", ErrNoAdminAccount)
	}
	return nil
}

func provisionAdmin(ctx context.Context, userRepo repository.UserRepository, account AdminAccount, logger *zap.Logger) error {
	existing, err := userRepo.GetByUsername(ctx, account.Username)
	switch {
	case err == nil:
		if existing.IsAdmin() {
			logger.Info("admin account present", zap.String("username", existing.Username))
			return nil
		}
		if _, err := userRepo.UpdateRole(ctx, existing.ID, models.RoleAdmin); err != nil {
			return fmt.Errorf("failed to promote '%s' to admin: %w", account.Username, err)
		}
		logger.Info("existing account promoted to admin", zap.String("username", existing.Username))
		return nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("failed to look up admin '%s': %w", account.Username, err)
	}

	if account.Password == "" {
		return fmt.Errorf("admin '%s' does not exist and ADMIN_PASSWORD is empty", account.Username)
	}

	email := account.Email
	if email == "" {
		email = account.Username + "@localhost"
	}
	admin := &models.User{Username: account.Username, Email: email, Role: models.RoleAdmin}
	if err := admin.SetPassword(account.Password); err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	if err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin '%s': %w", account.Username, err)
	}
	logger.Info("admin account created", zap.String("username", admin.Username), zap.String("user_id", admin.ID))
	return nil
}

type SetupHandler struct {
	DB       *gorm.DB
	Validate *validator.Validate
	Logger   *zap.Logger
}

func NewSetupHandler(db *gorm.DB, logger *zap.Logger) *SetupHandler {
	return &SetupHandler{DB: db, Validate: validator.New(), Logger: logger}
}

type FirstAdminPayload struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

var errSetupCompleted = errors.New("setup already completed")

// CreateFirstAdmin creates the initial administrator. It only works while no
// admin account exists, and the route is mounted only when ALLOW_ADMIN_SETUP is on.
func (h *SetupHandler) CreateFirstAdmin(w http.ResponseWriter, r *http.Request) {
	var count int64
	if err := h.DB.WithContext(r.Context()).Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		h.Logger.Error("failed to count admins", zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Database error while checking for existing admins")
		return
	}
	if count > 0 {
		WriteAPIError(w, http.StatusForbidden, CodeForbidden, "Setup has already been completed")
		return
	}

	var payload FirstAdminPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request payload")
		return
	}
	payload.Username = strings.TrimSpace(payload.Username)
	payload.Email = strings.TrimSpace(payload.Email)
	if err := h.Validate.Struct(payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeValidation, validationDetail(err))
		return
	}

	var adminUser *models.User
	txErr := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		var innerCount int64
		if err := tx.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&innerCount).Error; err != nil {
			return fmt.Errorf("failed to count admins in transaction: %w", err)
		}
		if innerCount > 0 {
			return errSetupCompleted
		}

		adminUser = &models.User{Username: payload.Username, Email: payload.Email, Role: models.RoleAdmin}
		if err := adminUser.SetPassword(payload.Password); err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		if err := tx.Create(adminUser).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
		return nil
	})

	if txErr != nil {
		if errors.Is(txErr, errSetupCompleted) {
			WriteAPIError(w, http.StatusForbidden, CodeForbidden, "Setup has already been completed")
			return
		}
		h.Logger.Error("failed to create first admin", zap.Error(txErr))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to create first admin user")
		return
	}

	h.Logger.Info("initial admin created", zap.String("username", adminUser.Username))
	writeJSON(w, http.StatusCreated, map[string]string{"detail": "Initial admin user created successfully. Please log in."})
}
