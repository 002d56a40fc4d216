package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/camden-git/ppemonitor/models"
	"github.com/camden-git/ppemonitor/services"
)

// FrameAnalyzer is the part of the compliance service the HTTP layer needs.
type FrameAnalyzer interface {
	AnalyzeUpload(ctx context.Context, userID, filename string, data []byte) (*services.FrameAnalysis, error)
	AnalyzeFrame(ctx context.Context, userID string, data []byte) (*services.FrameAnalysis, error)
}

type DetectHandler struct {
	Analyzer       FrameAnalyzer
	MaxUploadBytes int64
	Logger         *zap.Logger
}

func NewDetectHandler(analyzer FrameAnalyzer, maxUploadBytes int64, logger *zap.Logger) *DetectHandler {
	return &DetectHandler{Analyzer: analyzer, MaxUploadBytes: maxUploadBytes, Logger: logger}
}

type DetectResponse struct {
	ImageID              string             `json:"image_id"`
	AnnotatedImageBase64 string             `json:"annotated_image_base64"`
	Violations           []models.Violation `json:"violations"`
}

var errNoImage = errors.New("no image provided")

// readImage returns the multipart "file" part, or the raw body when the request
// is sent with an image content type.
func (h *DetectHandler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "image/") {
		data, err := io.ReadAll(r.Body)
		return data, "frame" + extensionFor(mediaType), err
	}

	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		return nil, "", err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", errNoImage
		}
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, filepath.Base(header.Filename), nil
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/bmp":
		return ".bmp"
	default:
		return ".jpg"
	}
}

func (h *DetectHandler) writeReadError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		WriteAPIError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, fmt.Sprintf("Image exceeds %d bytes", h.MaxUploadBytes))
	case errors.Is(err, errNoImage):
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Multipart field 'file' is required")
	default:
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Failed to read uploaded image")
	}
}

func (h *DetectHandler) writeAnalysisError(w http.ResponseWriter, err error, userID string) {
	switch {
	case errors.Is(err, services.ErrDecode):
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidImage, "The uploaded file is not a valid image")
	case errors.Is(err, services.ErrInference):
		h.Logger.Error("inference failed", zap.String("user_id", userID), zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInferenceFailed, "Detection failed for this image")
	case errors.Is(err, services.ErrPersistence):
		WriteAPIError(w, http.StatusInternalServerError, CodePersistenceFailed, "Detection results could not be saved")
	default:
		h.Logger.Error("frame analysis failed", zap.String("user_id", userID), zap.Error(err))
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to process image")
	}
}

func (h *DetectHandler) respond(w http.ResponseWriter, res *services.FrameAnalysis) {
	violations := res.Violations
	if violations == nil {
		violations = []models.Violation{}
	}
	writeJSON(w, http.StatusOK, DetectResponse{
		ImageID:              res.ImageID,
		AnnotatedImageBase64: base64.StdEncoding.EncodeToString(res.Annotated),
		Violations:           violations,
	})
}

// Detect analyzes an uploaded image (multipart field "file").
func (h *DetectHandler) Detect(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Not authenticated")
		return
	}

	data, filename, err := h.readImage(w, r)
	if err != nil {
		h.writeReadError(w, err)
		return
	}

	res, err := h.Analyzer.AnalyzeUpload(r.Context(), user.ID, filename, data)
	if err != nil {
		h.writeAnalysisError(w, err, user.ID)
		return
	}
	h.respond(w, res)
}

// DetectFrame analyzes one browser-captured webcam frame. Nothing is kept on disk.
func (h *DetectHandler) DetectFrame(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Not authenticated")
		return
	}

	data, _, err := h.readImage(w, r)
	if err != nil {
		h.writeReadError(w, err)
		return
	}

	res, err := h.Analyzer.AnalyzeFrame(r.Context(), user.ID, data)
	if err != nil {
		h.writeAnalysisError(w, err, user.ID)
		return
	}
	h.respond(w, res)
}
