// Package webcam runs the local camera analysis loop.
package webcam

import (
	"context"
	"errors"
	"image"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/camden-git/ppemonitor/detection"
	"github.com/camden-git/ppemonitor/models"
)

// FrameSize is the resolution frames are scaled to before detection.
var FrameSize = image.Pt(640, 480)

const quitKey = 'q'

var ErrFrameRead = errors.New("failed to read frame from camera")

// FrameSource is satisfied by *gocv.VideoCapture.
type FrameSource interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Display is satisfied by *gocv.Window.
type Display interface {
	IMShow(img gocv.Mat)
	WaitKey(delay int) int
	Close() error
}

// FrameProcessor is the slice of the compliance service the loop drives.
type FrameProcessor interface {
	Process(frame gocv.Mat) (gocv.Mat, []detection.PlacedLabel, []detection.ViolationCandidate, error)
	Record(ctx context.Context, userID, imageID string, candidates []detection.ViolationCandidate) ([]models.Violation, error)
}

type Options struct {
	UserID   string
	Persist  bool
	Interval time.Duration
}

type Loop struct {
	source    FrameSource
	display   Display // nil when headless
	processor FrameProcessor
	opts      Options
	logger    *zap.Logger
}

func NewLoop(source FrameSource, display Display, processor FrameProcessor, opts Options, logger *zap.Logger) *Loop {
	return &Loop{source: source, display: display, processor: processor, opts: opts, logger: logger}
}

// Run reads, analyzes and shows frames until the camera fails, the quit key is
// pressed or ctx is cancelled. The camera and window are released on every exit.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		if err := l.source.Close(); err != nil {
			l.logger.Warn("failed to release camera", zap.Error(err))
		}
		if l.display != nil {
			if err := l.display.Close(); err != nil {
				l.logger.Warn("failed to close window", zap.Error(err))
			}
		}
	}()

	persist := l.opts.Persist && l.opts.UserID != ""
	if l.opts.Persist && !persist {
		l.logger.Warn("persistence requested without a user id; frames will not be recorded")
	}

	frame := gocv.NewMat()
	defer frame.Close()
	resized := gocv.NewMat()
	defer resized.Close()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("webcam loop stopped", zap.Error(ctx.Err()))
			return nil
		default:
		}

		if ok := l.source.Read(&frame); !ok || frame.Empty() {
			return ErrFrameRead
		}
		gocv.Resize(frame, &resized, FrameSize, 0, 0, gocv.InterpolationLinear)

		if quit := l.step(ctx, resized, persist); quit {
			l.logger.Info("quit key pressed")
			return nil
		}

		select {
		case <-ctx.Done():
			l.logger.Info("webcam loop stopped", zap.Error(ctx.Err()))
			return nil
		case <-time.After(l.opts.Interval):
		}
	}
}

// step analyzes one frame and reports whether the quit key was pressed. The key
// is polled even when analysis fails.
func (l *Loop) step(ctx context.Context, frame gocv.Mat, persist bool) bool {
	annotated, _, candidates, err := l.processor.Process(frame)
	defer annotated.Close()
	if err != nil {
		l.logger.Error("frame analysis failed", zap.Error(err))
		return l.pollQuit()
	}

	if persist {
		if _, err := l.processor.Record(ctx, l.opts.UserID, models.NotApplicable, candidates); err != nil {
			l.logger.Error("failed to record frame", zap.String("user_id", l.opts.UserID), zap.Error(err))
		}
	}
	l.logger.Debug("frame analyzed", zap.Int("violations", len(candidates)))

	if l.display != nil {
		l.display.IMShow(annotated)
	}
	return l.pollQuit()
}

func (l *Loop) pollQuit() bool {
	if l.display == nil {
		return false
	}
	return l.display.WaitKey(1)&0xFF == quitKey
}
