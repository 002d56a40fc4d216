package webcam

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/camden-git/ppemonitor/detection"
	"github.com/camden-git/ppemonitor/models"
)

type fakeSource struct {
	frames int
	reads  int
	closed bool
}

func (s *fakeSource) Read(m *gocv.Mat) bool {
	if s.reads >= s.frames {
		return false
	}
	s.reads++
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 720, 1280, gocv.MatTypeCV8UC3)
	defer src.Close()
	src.CopyTo(m)
	return true
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeDisplay struct {
	key    int
	shown  int
	closed bool
}

func (d *fakeDisplay) IMShow(gocv.Mat) { d.shown++ }

func (d *fakeDisplay) WaitKey(int) int { return d.key }

func (d *fakeDisplay) Close() error {
	d.closed = true
	return nil
}

type recordCall struct {
	userID, imageID string
	candidates      int
}

type fakeProcessor struct {
	sizes      [][2]int
	candidates []detection.ViolationCandidate
	records    []recordCall
	err        error
}

func (p *fakeProcessor) Process(frame gocv.Mat) (gocv.Mat, []detection.PlacedLabel, []detection.ViolationCandidate, error) {
	p.sizes = append(p.sizes, [2]int{frame.Cols(), frame.Rows()})
	if p.err != nil {
		return gocv.NewMat(), nil, nil, p.err
	}
	return frame.Clone(), nil, p.candidates, nil
}

func (p *fakeProcessor) Record(_ context.Context, userID, imageID string, candidates []detection.ViolationCandidate) ([]models.Violation, error) {
	p.records = append(p.records, recordCall{userID, imageID, len(candidates)})
	return nil, nil
}

func TestLoop_PersistsEveryFrameUntilCameraFails(t *testing.T) {
	source := &fakeSource{frames: 3}
	proc := &fakeProcessor{candidates: []detection.ViolationCandidate{{Label: detection.LabelNoHelmet, Confidence: 0.9, PersonID: "p1"}}}
	loop := NewLoop(source, nil, proc, Options{UserID: "u1", Persist: true, Interval: time.Millisecond}, zap.NewNop())

	err := loop.Run(context.Background())
	if !errors.Is(err, ErrFrameRead) {
		t.Fatalf("expected ErrFrameRead, got %v", err)
	}
	if len(proc.records) != 3 {
		t.Fatalf("expected 3 recorded frames, got %d", len(proc.records))
	}
	for _, rc := range proc.records {
		if rc.userID != "u1" || rc.imageID != models.NotApplicable || rc.candidates != 1 {
			t.Errorf("unexpected record call %+v", rc)
		}
	}
	for _, size := range proc.sizes {
		if size != [2]int{640, 480} {
			t.Errorf("expected 640x480 frame, got %dx%d", size[0], size[1])
		}
	}
	if !source.closed {
		t.Error("camera should be released")
	}
}

func TestLoop_QuitKey(t *testing.T) {
	source := &fakeSource{frames: 10}
	display := &fakeDisplay{key: 'q'}
	proc := &fakeProcessor{}
	loop := NewLoop(source, display, proc, Options{Interval: time.Millisecond}, zap.NewNop())

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if source.reads != 1 || display.shown != 1 {
		t.Errorf("expected one frame before quitting, got reads=%d shown=%d", source.reads, display.shown)
	}
	if !display.closed || !source.closed {
		t.Error("window and camera should be released")
	}
	if len(proc.records) != 0 {
		t.Error("nothing should be recorded without persistence")
	}
}

func TestLoop_PersistWithoutUserRecordsNothing(t *testing.T) {
	source := &fakeSource{frames: 2}
	proc := &fakeProcessor{}
	loop := NewLoop(source, nil, proc, Options{Persist: true, Interval: time.Millisecond}, zap.NewNop())

	_ = loop.Run(context.Background())
	if len(proc.sizes) != 2 {
		t.Errorf("expected 2 processed frames, got %d", len(proc.sizes))
	}
	if len(proc.records) != 0 {
		t.Errorf("expected no records, got %d", len(proc.records))
	}
}

func TestLoop_CancelledContext(t *testing.T) {
	source := &fakeSource{frames: 10}
	display := &fakeDisplay{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop := NewLoop(source, display, &fakeProcessor{}, Options{Interval: time.Hour}, zap.NewNop())
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if source.reads != 0 {
		t.Errorf("no frame should be read after cancellation, got %d", source.reads)
	}
	if !source.closed || !display.closed {
		t.Error("resources should be released on cancellation")
	}
}

func TestLoop_CancelDuringInterval(t *testing.T) {
	source := &fakeSource{frames: 10}
	ctx, cancel := context.WithCancel(context.Background())
	proc := &fakeProcessor{}
	loop := NewLoop(source, nil, proc, Options{Interval: time.Hour}, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
	if source.reads != 1 {
		t.Errorf("expected exactly one frame, got %d", source.reads)
	}
}

func TestLoop_QuitKeyPolledWhenAnalysisFails(t *testing.T) {
	source := &fakeSource{frames: 10}
	display := &fakeDisplay{key: 'q'}
	proc := &fakeProcessor{err: errors.New("inference failed")}
	loop := NewLoop(source, display, proc, Options{UserID: "u1", Persist: true, Interval: time.Millisecond}, zap.NewNop())

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if source.reads != 1 {
		t.Errorf("expected the loop to stop after the first frame, got %d reads", source.reads)
	}
	if display.shown != 0 {
		t.Errorf("a failed frame should not be shown, got %d", display.shown)
	}
	if len(proc.records) != 0 {
		t.Errorf("a failed frame should not be recorded, got %d", len(proc.records))
	}
}

func TestLoop_KeepsRunningThroughFailedFrames(t *testing.T) {
	source := &fakeSource{frames: 4}
	proc := &fakeProcessor{err: errors.New("inference failed")}
	loop := NewLoop(source, &fakeDisplay{}, proc, Options{Interval: time.Millisecond}, zap.NewNop())

	if err := loop.Run(context.Background()); !errors.Is(err, ErrFrameRead) {
		t.Fatalf("expected ErrFrameRead once frames run out, got %v", err)
	}
	if len(proc.sizes) != 4 {
		t.Errorf("expected every frame analyzed, got %d", len(proc.sizes))
	}
}
