package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/camden-git/ppemonitor/database"
	"github.com/camden-git/ppemonitor/media"
	"github.com/camden-git/ppemonitor/models"
	"github.com/camden-git/ppemonitor/repository"
)

const summaryExportFilename = "user_ppe_summary.csv"

type AdminUserHandler struct {
	UserRepo      repository.UserRepository
	ViolationRepo repository.ViolationRepository
	UploadRepo    repository.UploadRepository
	Store         media.Store // nil when uploads are not retained
	Reports       database.Querier
	Logger        *zap.Logger
}

func NewAdminUserHandler(userRepo repository.UserRepository, violationRepo repository.ViolationRepository, uploadRepo repository.UploadRepository, store media.Store, reports database.Querier, logger *zap.Logger) *AdminUserHandler {
	return &AdminUserHandler{UserRepo: userRepo, ViolationRepo: violationRepo, UploadRepo: uploadRepo, Store: store, Reports: reports, Logger: logger}
}

type RoleUpdatePayload struct {
	NewRole string `json:"new_role"`
}

// ListUsers returns every account.
func (h *AdminUserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.UserRepo.ListAll(r.Context())
	if err != nil {
		h.Logger.Error("failed to list users", zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to retrieve users")
		return
	}
	resp := make([]UserResponse, len(users))
	for i := range users {
		resp[i] = toUserResponse(&users[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteUser removes an account with all of its violations and uploads. Stored
// upload files are removed after the rows are gone.
func (h *AdminUserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	current, ok := UserFromContext(r.Context())
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Not authenticated")
		return
	}
	userID := chi.URLParam(r, "id")
	if current.ID == userID {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Admins cannot delete their own account")
		return
	}

	var assets []string
	if h.Store != nil && h.UploadRepo != nil {
		uploads, err := h.UploadRepo.ListByUser(r.Context(), userID)
		if err != nil {
			h.Logger.Error("failed to list uploads for deletion", zap.String("user_id", userID), zap.Error(err))
			WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to delete user")
			return
		}
		for _, u := range uploads {
			for _, p := range []string{u.OriginalPath, u.AnnotatedPath, u.ThumbnailPath} {
				if p != "" {
					assets = append(assets, p)
				}
			}
		}
	}

	if err := h.UserRepo.Delete(r.Context(), userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "User not found")
			return
		}
		h.Logger.Error("failed to delete user", zap.String("user_id", userID), zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to delete user")
		return
	}

	for _, p := range assets {
		if err := h.Store.Delete(p); err != nil {
			h.Logger.Warn("failed to remove upload asset", zap.String("user_id", userID), zap.String("path", p), zap.Error(err))
		}
	}

	h.Logger.Info("user deleted", zap.String("user_id", userID), zap.String("by", current.ID), zap.Int("assets_removed", len(assets)))
	writeJSON(w, http.StatusOK, map[string]string{"detail": "User deleted"})
}

func readNewRole(r *http.Request) (string, error) {
	if role := r.URL.Query().Get("new_role"); role != "" {
		return role, nil
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return "", nil
	}
	var payload RoleUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return "", err
	}
	return payload.NewRole, nil
}

// UpdateUserRole sets the role from the new_role query parameter or JSON body.
func (h *AdminUserHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	current, _ := UserFromContext(r.Context())
	userID := chi.URLParam(r, "id")

	roleName, err := readNewRole(r)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request payload")
		return
	}
	role, ok := models.ParseRole(roleName)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, CodeValidation, "new_role must be one of: user, admin")
		return
	}
	if current != nil && current.ID == userID && role != models.RoleAdmin {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Admins cannot remove their own admin role")
		return
	}

	user, err := h.UserRepo.UpdateRole(r.Context(), userID, role)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "User not found")
			return
		}
		h.Logger.Error("failed to update role", zap.String("user_id", userID), zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to update role")
		return
	}

	h.Logger.Info("role updated", zap.String("user_id", user.ID), zap.String("role", string(role)))
	writeJSON(w, http.StatusOK, map[string]interface{}{"detail": "Role updated", "user": toUserResponse(user)})
}

// UserViolations lists any user's records, newest first.
func (h *AdminUserHandler) UserViolations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if _, err := h.UserRepo.GetByID(r.Context(), userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "User not found")
			return
		}
		h.Logger.Error("failed to load user", zap.String("user_id", userID), zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to retrieve violations")
		return
	}

	records, err := h.ViolationRepo.ListByUser(r.Context(), userID)
	if err != nil {
		h.Logger.Error("failed to list violations", zap.String("user_id", userID), zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to retrieve violations")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Summary returns per-user GoodToGo and violation counts.
func (h *AdminUserHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summaries, err := database.ComplianceSummary(r.Context(), h.Reports)
	if err != nil {
		h.Logger.Error("failed to build summary", zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to build summary")
		return
	}
	if summaries == nil {
		summaries = []database.UserComplianceSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// ExportSummary streams the summary as a CSV attachment.
func (h *AdminUserHandler) ExportSummary(w http.ResponseWriter, r *http.Request) {
	summaries, err := database.ComplianceSummary(r.Context(), h.Reports)
	if err != nil {
		h.Logger.Error("failed to build summary export", zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to build summary")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": summaryExportFilename}))
	if err := database.WriteSummaryCSV(w, summaries); err != nil {
		h.Logger.Error("failed to write summary export", zap.Error(err))
	}
}
