package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/camden-git/ppemonitor/models"
	"github.com/camden-git/ppemonitor/repository"
)

type ViolationHandler struct {
	ViolationRepo repository.ViolationRepository
	Logger        *zap.Logger
}

func NewViolationHandler(violationRepo repository.ViolationRepository, logger *zap.Logger) *ViolationHandler {
	return &ViolationHandler{ViolationRepo: violationRepo, Logger: logger}
}

type DashboardResponse struct {
	GoodCount      int                `json:"good_count"`
	ViolationCount int                `json:"violation_count"`
	Total          int                `json:"total"`
	ComplianceRate float64            `json:"compliance_rate"`
	Violations     []models.Violation `json:"violations"`
}

func buildDashboard(records []models.Violation) DashboardResponse {
	resp := DashboardResponse{Violations: records, Total: len(records)}
	for i := range records {
		if records[i].IsCompliant() {
			resp.GoodCount++
		} else {
			resp.ViolationCount++
		}
	}
	if resp.Total > 0 {
		resp.ComplianceRate = float64(resp.GoodCount) / float64(resp.Total)
	}
	return resp
}

// MyViolations lists the caller's records, newest first.
func (h *ViolationHandler) MyViolations(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Not authenticated")
		return
	}
	records, err := h.ViolationRepo.ListByUser(r.Context(), user.ID)
	if err != nil {
		h.Logger.Error("failed to list violations", zap.String("user_id", user.ID), zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to retrieve violations")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Dashboard returns the caller's records with their compliance counts.
func (h *ViolationHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Not authenticated")
		return
	}
	records, err := h.ViolationRepo.ListByUser(r.Context(), user.ID)
	if err != nil {
		h.Logger.Error("failed to build dashboard", zap.String("user_id", user.ID), zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to retrieve violations")
		return
	}
	writeJSON(w, http.StatusOK, buildDashboard(records))
}
