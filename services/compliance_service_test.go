package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gorm.io/gorm"

	"github.com/camden-git/ppemonitor/database"
	"github.com/camden-git/ppemonitor/detection"
	"github.com/camden-git/ppemonitor/media"
	"github.com/camden-git/ppemonitor/models"
	"github.com/camden-git/ppemonitor/realtime"
	"github.com/camden-git/ppemonitor/repository"
)

type fakeDetector struct {
	detections []detection.Detection
	err        error
	calls      int
}

func (f *fakeDetector) Detect(gocv.Mat) ([]detection.Detection, error) {
	f.calls++
	return f.detections, f.err
}

type capturePublisher struct {
	events []realtime.Event
}

func (c *capturePublisher) Publish(_ context.Context, e realtime.Event) error {
	c.events = append(c.events, e)
	return nil
}

type testEnv struct {
	db        *gorm.DB
	user      *models.User
	detector  *fakeDetector
	publisher *capturePublisher
	service   *ComplianceService
	mediaRoot string
	uploads   repository.UploadRepository
}

func newTestEnv(t *testing.T, retain bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := database.InitGormDB(filepath.Join(dir, "svc.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("InitGormDB failed: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	user := &models.User{Username: "worker", Email: "worker@example.com", PasswordHash: "x"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	var proc *media.Processor
	mediaRoot := filepath.Join(dir, "media")
	if retain {
		store, err := media.NewLocalStorage(mediaRoot, map[media.AssetType]string{
			media.AssetTypeOriginal:  "uploads",
			media.AssetTypeAnnotated: "annotated",
			media.AssetTypeThumbnail: "thumbnails",
		}, zap.NewNop())
		if err != nil {
			t.Fatalf("NewLocalStorage failed: %v", err)
		}
		proc = media.NewProcessor(store, 64, zap.NewNop())
	}

	det := &fakeDetector{}
	pub := &capturePublisher{}
	uploads := repository.NewGormUploadRepository(db)
	svc := NewComplianceService(det, repository.NewGormViolationRepository(db), uploads, proc, pub, zap.NewNop())
	return &testEnv{db: db, user: user, detector: det, publisher: pub, service: svc, mediaRoot: mediaRoot, uploads: uploads}
}

func (e *testEnv) storedViolations(t *testing.T) []models.Violation {
	t.Helper()
	var out []models.Violation
	if err := e.db.Order("timestamp ASC").Find(&out).Error; err != nil {
		t.Fatalf("query failed: %v", err)
	}
	return out
}

func testImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{90, 120, 150, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	return buf.Bytes()
}

func TestAnalyzeUpload_HelmetOnlyStoresGoodToGo(t *testing.T) {
	env := newTestEnv(t, false)
	env.detector.detections = []detection.Detection{
		{Label: detection.LabelHelmet, Confidence: 0.93, Box: image.Rect(40, 40, 120, 100)},
	}

	res, err := env.service.AnalyzeUpload(context.Background(), env.user.ID, "site.png", testImage(t))
	if err != nil {
		t.Fatalf("AnalyzeUpload failed: %v", err)
	}

	stored := env.storedViolations(t)
	if len(stored) != 1 {
		t.Fatalf("expected exactly one stored record, got %d", len(stored))
	}
	v := stored[0]
	if v.Label != models.LabelGoodToGo || v.Confidence != 1.0 || v.PersonID != models.NotApplicable {
		t.Errorf("unexpected sentinel %+v", v)
	}
	if v.ImageID != res.ImageID || res.ImageID == models.NotApplicable {
		t.Errorf("sentinel should carry the upload image id, got %s (upload %s)", v.ImageID, res.ImageID)
	}
	if len(res.Annotated) == 0 || len(res.Labels) != 1 {
		t.Errorf("expected annotated output with one label")
	}
	if len(env.publisher.events) != 1 || !env.publisher.events[0].Compliant {
		t.Errorf("expected one compliant event, got %+v", env.publisher.events)
	}
}

func TestAnalyzeUpload_TwoNoVest(t *testing.T) {
	env := newTestEnv(t, false)
	env.detector.detections = []detection.Detection{
		{Label: detection.LabelPerson, Confidence: 0.99, Box: image.Rect(0, 0, 300, 240)},
		{Label: detection.LabelNoVest, Confidence: 0.814, Box: image.Rect(20, 60, 100, 200)},
		{Label: detection.LabelNoVest, Confidence: 0.776, Box: image.Rect(200, 60, 300, 200)},
	}

	res, err := env.service.AnalyzeUpload(context.Background(), env.user.ID, "yard.png", testImage(t))
	if err != nil {
		t.Fatalf("AnalyzeUpload failed: %v", err)
	}

	stored := env.storedViolations(t)
	if len(stored) != 2 {
		t.Fatalf("expected 2 records, got %d", len(stored))
	}
	if stored[0].PersonID == stored[1].PersonID {
		t.Error("each violation needs its own person id")
	}
	for _, v := range stored {
		if v.Label != detection.LabelNoVest {
			t.Errorf("unexpected label %s", v.Label)
		}
		if v.ImageID != res.ImageID {
			t.Errorf("expected image id %s, got %s", res.ImageID, v.ImageID)
		}
		if v.UserID != env.user.ID {
			t.Errorf("record owned by %s, want %s", v.UserID, env.user.ID)
		}
	}
	if !stored[0].Timestamp.Equal(stored[1].Timestamp) {
		t.Errorf("records of one frame should share the default timestamp")
	}
	if res.Violations[0].Confidence != 0.81 || res.Violations[1].Confidence != 0.78 {
		t.Errorf("confidences not rounded: %v %v", res.Violations[0].Confidence, res.Violations[1].Confidence)
	}
	if len(res.Labels) != 2 {
		t.Errorf("Person should not be labeled, got %d labels", len(res.Labels))
	}
}

func TestAnalyzeUpload_MalformedImage(t *testing.T) {
	env := newTestEnv(t, true)

	_, err := env.service.AnalyzeUpload(context.Background(), env.user.ID, "bad.jpg", []byte("definitely not an image"))
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if env.detector.calls != 0 {
		t.Error("detector must not run on undecodable input")
	}
	if n := len(env.storedViolations(t)); n != 0 {
		t.Errorf("expected no stored records, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(env.mediaRoot, "uploads")); !os.IsNotExist(err) {
		t.Error("nothing should be written to media storage")
	}
}

func TestAnalyzeUpload_InferenceFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.detector.err = errors.New("tensor shape mismatch")

	_, err := env.service.AnalyzeUpload(context.Background(), env.user.ID, "a.png", testImage(t))
	if !errors.Is(err, ErrInference) {
		t.Fatalf("expected ErrInference, got %v", err)
	}
	if n := len(env.storedViolations(t)); n != 0 {
		t.Errorf("expected no stored records, got %d", n)
	}
}

func TestProcess_FailureReturnsOwnedEmptyMat(t *testing.T) {
	env := newTestEnv(t, false)
	env.detector.err = detection.ErrMalformedOutput

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	for i := 0; i < 3; i++ {
		annotated, labels, candidates, err := env.service.Process(frame)
		if !errors.Is(err, ErrInference) {
			t.Fatalf("expected ErrInference, got %v", err)
		}
		if !annotated.Empty() || labels != nil || candidates != nil {
			t.Errorf("expected empty results on failure")
		}
		if err := annotated.Close(); err != nil {
			t.Errorf("closing the failure Mat should succeed, got %v", err)
		}
	}
	if env.detector.calls != 3 {
		t.Errorf("expected 3 detector calls, got %d", env.detector.calls)
	}
}

func TestAnalyzeUpload_PersistenceFailure(t *testing.T) {
	env := newTestEnv(t, true)
	env.detector.detections = []detection.Detection{
		{Label: detection.LabelNoHelmet, Confidence: 0.9, Box: image.Rect(10, 30, 60, 90)},
	}

	_, err := env.service.AnalyzeUpload(context.Background(), "no-such-user", "a.png", testImage(t))
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if len(env.publisher.events) != 0 {
		t.Error("no event should be published when storage fails")
	}
	if _, err := os.Stat(filepath.Join(env.mediaRoot, "uploads")); !os.IsNotExist(err) {
		t.Error("assets should not be retained when storage fails")
	}
}

func TestAnalyzeUpload_RetainsAssets(t *testing.T) {
	env := newTestEnv(t, true)

	res, err := env.service.AnalyzeUpload(context.Background(), env.user.ID, "gate.png", testImage(t))
	if err != nil {
		t.Fatalf("AnalyzeUpload failed: %v", err)
	}

	upload, err := env.uploads.GetByID(context.Background(), res.ImageID)
	if err != nil {
		t.Fatalf("upload row missing: %v", err)
	}
	if upload.Width != 320 || upload.Height != 240 || upload.UserID != env.user.ID {
		t.Errorf("unexpected upload %+v", upload)
	}
	for _, rel := range []string{upload.OriginalPath, upload.AnnotatedPath, upload.ThumbnailPath} {
		if rel == "" {
			t.Errorf("missing asset path in %+v", upload)
			continue
		}
		if _, err := os.Stat(filepath.Join(env.mediaRoot, filepath.FromSlash(rel))); err != nil {
			t.Errorf("asset %s not on disk: %v", rel, err)
		}
	}
}

func TestAnalyzeFrame_UsesNotApplicableImageID(t *testing.T) {
	env := newTestEnv(t, true)
	env.detector.detections = []detection.Detection{
		{Label: detection.LabelNoHelmet, Confidence: 0.66, Box: image.Rect(10, 30, 60, 90)},
	}

	res, err := env.service.AnalyzeFrame(context.Background(), env.user.ID, testImage(t))
	if err != nil {
		t.Fatalf("AnalyzeFrame failed: %v", err)
	}
	if res.ImageID != models.NotApplicable {
		t.Errorf("expected image id N/A, got %s", res.ImageID)
	}
	stored := env.storedViolations(t)
	if len(stored) != 1 || stored[0].ImageID != models.NotApplicable {
		t.Errorf("unexpected stored records %+v", stored)
	}
	if _, err := os.Stat(filepath.Join(env.mediaRoot, "uploads")); !os.IsNotExist(err) {
		t.Error("browser frames should not be retained")
	}
}
