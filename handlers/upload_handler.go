package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/camden-git/ppemonitor/media"
	"github.com/camden-git/ppemonitor/permissions"
	"github.com/camden-git/ppemonitor/repository"
)

// UploadHandler serves retained upload assets to their owner and to admins.
type UploadHandler struct {
	UploadRepo repository.UploadRepository
	Store      media.Store
	Logger     *zap.Logger
}

func NewUploadHandler(uploadRepo repository.UploadRepository, store media.Store, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{UploadRepo: uploadRepo, Store: store, Logger: logger}
}

// ServeAsset handles GET /api/uploads/{id}/{kind}.
func (h *UploadHandler) ServeAsset(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Not authenticated")
		return
	}

	kind, ok := media.ParseAssetType(chi.URLParam(r, "kind"))
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Asset kind must be original, annotated or thumbnail")
		return
	}

	upload, err := h.UploadRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Upload not found")
			return
		}
		h.Logger.Error("failed to load upload", zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to load upload")
		return
	}
	if upload.UserID != user.ID && !user.HasGlobalPermission(permissions.ViolationViewAny) {
		// not revealing other users' uploads
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Upload not found")
		return
	}

	var relPath string
	switch kind {
	case media.AssetTypeOriginal:
		relPath = upload.OriginalPath
	case media.AssetTypeAnnotated:
		relPath = upload.AnnotatedPath
	case media.AssetTypeThumbnail:
		relPath = upload.ThumbnailPath
	}
	if relPath == "" {
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Asset not available")
		return
	}

	rc, info, err := h.Store.Get(relPath)
	if err != nil {
		h.Logger.Warn("upload asset missing", zap.String("upload_id", upload.ID), zap.String("path", relPath), zap.Error(err))
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Asset not available")
		return
	}
	defer rc.Close()

	cacheDuration := 24 * time.Hour
	w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int(cacheDuration.Seconds())))

	seeker, ok := rc.(io.ReadSeeker)
	if !ok {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.Copy(w, rc)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), seeker)
}
