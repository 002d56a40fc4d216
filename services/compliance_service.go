package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/camden-git/ppemonitor/detection"
	"github.com/camden-git/ppemonitor/media"
	"github.com/camden-git/ppemonitor/models"
	"github.com/camden-git/ppemonitor/realtime"
	"github.com/camden-git/ppemonitor/repository"
)

// FrameAnalysis is the outcome of one analyzed frame.
type FrameAnalysis struct {
	ImageID    string                  `json:"image_id"`
	Annotated  []byte                  `json:"-"`
	Labels     []detection.PlacedLabel `json:"-"`
	Violations []models.Violation      `json:"violations"`
}

// ComplianceService runs decode, inference, annotation, extraction and storage
// for a single frame, synchronously.
type ComplianceService struct {
	detector   detection.Detector
	violations repository.ViolationRepository
	uploads    repository.UploadRepository
	processor  *media.Processor // nil disables upload retention
	publisher  realtime.Publisher
	logger     *zap.Logger
	now        func() time.Time
}

func NewComplianceService(
	detector detection.Detector,
	violations repository.ViolationRepository,
	uploads repository.UploadRepository,
	processor *media.Processor,
	publisher realtime.Publisher,
	logger *zap.Logger,
) *ComplianceService {
	return &ComplianceService{
		detector:   detector,
		violations: violations,
		uploads:    uploads,
		processor:  processor,
		publisher:  publisher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func decodeFrame(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), fmt.Errorf("%w: empty payload", ErrDecode)
	}
	frame, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return frame, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if frame.Empty() {
		return frame, fmt.Errorf("%w: unsupported or corrupt image", ErrDecode)
	}
	return frame, nil
}

// AnalyzeUpload processes an uploaded image file for userID. The image gets a new
// identity shared by all of its records; the original, annotated copy and
// thumbnail are retained when a processor is configured.
func (s *ComplianceService) AnalyzeUpload(ctx context.Context, userID, filename string, data []byte) (*FrameAnalysis, error) {
	frame, err := decodeFrame(data)
	defer frame.Close()
	if err != nil {
		return nil, err
	}

	imageID := uuid.NewString()
	result, err := s.analyzeEncoded(ctx, frame, userID, imageID)
	if err != nil {
		return nil, err
	}

	s.retainUpload(ctx, userID, imageID, filename, data, result.Annotated, frame)
	return result, nil
}

// AnalyzeFrame processes a single captured frame (browser webcam). Records carry
// image id N/A and nothing is retained on disk.
func (s *ComplianceService) AnalyzeFrame(ctx context.Context, userID string, data []byte) (*FrameAnalysis, error) {
	frame, err := decodeFrame(data)
	defer frame.Close()
	if err != nil {
		return nil, err
	}
	return s.analyzeEncoded(ctx, frame, userID, models.NotApplicable)
}

func (s *ComplianceService) analyzeEncoded(ctx context.Context, frame gocv.Mat, userID, imageID string) (*FrameAnalysis, error) {
	annotated, labels, candidates, err := s.Process(frame)
	defer annotated.Close()
	if err != nil {
		return nil, err
	}

	encoded, err := detection.EncodeJPEG(annotated)
	if err != nil {
		return nil, err
	}

	records, err := s.Record(ctx, userID, imageID, candidates)
	if err != nil {
		return nil, err
	}

	return &FrameAnalysis{
		ImageID:    imageID,
		Annotated:  encoded,
		Labels:     labels,
		Violations: records,
	}, nil
}

// Process runs the detector on frame and returns the annotated copy, the placed
// labels and the violation candidates. The caller owns the returned Mat and must
// close it on the error path too.
func (s *ComplianceService) Process(frame gocv.Mat) (gocv.Mat, []detection.PlacedLabel, []detection.ViolationCandidate, error) {
	detections, err := s.detector.Detect(frame)
	if err != nil {
		return gocv.NewMat(), nil, nil, fmt.Errorf("%w: %v", ErrInference, err)
	}

	annotated, labels, err := detection.Annotate(frame, detections)
	if err != nil {
		return gocv.NewMat(), nil, nil, fmt.Errorf("failed to annotate frame: %w", err)
	}
	return annotated, labels, detection.ExtractViolations(detections), nil
}

// Record stores the frame's records for userID in one transaction and publishes
// them. An empty candidate list stores a single GoodToGo record.
func (s *ComplianceService) Record(ctx context.Context, userID, imageID string, candidates []detection.ViolationCandidate) ([]models.Violation, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: no owning user", ErrPersistence)
	}

	now := s.now()
	drafts := DraftsFor(candidates)
	batch := make([]*models.Violation, len(drafts))
	for i, d := range drafts {
		batch[i] = d.WithDefaults(now, imageID).Record(userID)
	}

	if err := s.violations.CreateBatch(ctx, batch); err != nil {
		s.logger.Error("failed to store violations",
			zap.String("user_id", userID),
			zap.String("image_id", imageID),
			zap.Int("count", len(batch)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	records := make([]models.Violation, len(batch))
	for i, v := range batch {
		records[i] = *v
	}

	s.logger.Info("frame recorded",
		zap.String("user_id", userID),
		zap.String("image_id", imageID),
		zap.Int("records", len(records)),
		zap.Bool("compliant", len(candidates) == 0),
	)

	if s.publisher != nil {
		event := realtime.NewViolationsEvent(userID, imageID, records, now)
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish violations event", zap.String("image_id", imageID), zap.Error(err))
		}
	}
	return records, nil
}

// retainUpload stores the upload assets and their row. Failures are logged only;
// the violations are already stored at this point.
func (s *ComplianceService) retainUpload(ctx context.Context, userID, imageID, filename string, original, annotated []byte, frame gocv.Mat) {
	if s.processor == nil || s.uploads == nil {
		return
	}

	upload := &models.Upload{
		ID:       imageID,
		UserID:   userID,
		Filename: filename,
		Width:    frame.Cols(),
		Height:   frame.Rows(),
	}
	if meta, err := media.ReadMetadata(original); err == nil {
		upload.TakenAt = meta.TakenAt
	}

	assets, err := s.processor.SaveUpload(imageID, filename, original, annotated)
	if err != nil {
		s.logger.Warn("failed to store upload assets", zap.String("image_id", imageID), zap.Error(err))
	}
	upload.OriginalPath = assets.OriginalPath
	upload.AnnotatedPath = assets.AnnotatedPath
	upload.ThumbnailPath = assets.ThumbnailPath
	if upload.OriginalPath == "" {
		return
	}

	if err := s.uploads.Create(ctx, upload); err != nil {
		s.logger.Warn("failed to record upload", zap.String("image_id", imageID), zap.Error(err))
	}
}
