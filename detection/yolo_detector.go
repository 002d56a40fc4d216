package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// YOLOConfig describes an ONNX export in the YOLOv8 layout: output [1, 4+classes, anchors].
type YOLOConfig struct {
	ModelPath     string
	ClassNames    []string
	InputSize     int
	ConfThreshold float32
	NMSThreshold  float32
}

// YOLODetector runs a YOLOv8 ONNX model through OpenCV's DNN module.
// Forward passes are serialized; the network is not safe for concurrent use.
type YOLODetector struct {
	mu     sync.Mutex
	net    gocv.Net
	cfg    YOLOConfig
	logger *zap.Logger
}

// NewYOLODetector loads the network once. A missing or unreadable model returns ErrModelUnavailable.
func NewYOLODetector(cfg YOLOConfig, logger *zap.Logger) (*YOLODetector, error) {
	if len(cfg.ClassNames) == 0 {
		return nil, fmt.Errorf("%w: no class names configured", ErrModelUnavailable)
	}
	if cfg.InputSize <= 0 {
		return nil, fmt.Errorf("%w: invalid input size %d", ErrModelUnavailable, cfg.InputSize)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: failed to read network from %s", ErrModelUnavailable, cfg.ModelPath)
	}

	cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
	if cudaBackendErr == nil && cudaTargetErr == nil {
		logger.Info("detector backend set to CUDA")
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
		logger.Info("detector backend set to CPU", zap.NamedError("cuda_backend", cudaBackendErr), zap.NamedError("cuda_target", cudaTargetErr))
	}

	logger.Info("detection model loaded",
		zap.String("path", cfg.ModelPath),
		zap.Strings("classes", cfg.ClassNames),
		zap.Int("input_size", cfg.InputSize),
	)
	return &YOLODetector{net: net, cfg: cfg, logger: logger}, nil
}

func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// Detect letterboxes the frame into a square, runs one forward pass and applies NMS.
func (d *YOLODetector) Detect(frame gocv.Mat) ([]Detection, error) {
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}

	height, width := frame.Rows(), frame.Cols()
	maxDim := max(height, width)

	square := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), maxDim, maxDim, frame.Type())
	defer square.Close()
	roi := square.Region(image.Rect(0, 0, width, height))
	frame.CopyTo(&roi)
	roi.Close()

	size := d.cfg.InputSize
	blob := gocv.BlobFromImage(square, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	scale := float32(maxDim) / float32(size)
	return d.decode(output, scale, image.Rect(0, 0, width, height))
}

func (d *YOLODetector) decode(output gocv.Mat, scale float32, bounds image.Rectangle) ([]Detection, error) {
	dims := output.Size()
	numClasses := len(d.cfg.ClassNames)
	if len(dims) != 3 || dims[0] != 1 || dims[1] != 4+numClasses {
		return nil, fmt.Errorf("%w: got shape %v, want [1 %d N]", ErrMalformedOutput, dims, 4+numClasses)
	}
	anchors := dims[2]

	var (
		boxes   []image.Rectangle
		scores  []float32
		classes []int
	)
	for a := 0; a < anchors; a++ {
		bestClass, bestScore := -1, float32(0)
		for c := 0; c < numClasses; c++ {
			s := output.GetFloatAt3(0, 4+c, a)
			if s > bestScore {
				bestClass, bestScore = c, s
			}
		}
		if bestClass < 0 || bestScore < d.cfg.ConfThreshold {
			continue
		}

		cx := output.GetFloatAt3(0, 0, a)
		cy := output.GetFloatAt3(0, 1, a)
		w := output.GetFloatAt3(0, 2, a)
		h := output.GetFloatAt3(0, 3, a)

		box := image.Rect(
			int((cx-w/2)*scale),
			int((cy-h/2)*scale),
			int((cx+w/2)*scale),
			int((cy+h/2)*scale),
		).Intersect(bounds)
		if box.Empty() {
			continue
		}
		boxes = append(boxes, box)
		scores = append(scores, bestScore)
		classes = append(classes, bestClass)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, scores, d.cfg.ConfThreshold, d.cfg.NMSThreshold)
	detections := make([]Detection, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(boxes) {
			continue
		}
		detections = append(detections, Detection{
			Label:      d.cfg.ClassNames[classes[idx]],
			Confidence: float64(min(max(scores[idx], 0), 1)),
			Box:        boxes[idx],
		})
	}
	d.logger.Debug("frame analyzed", zap.Int("candidates", len(boxes)), zap.Int("detections", len(detections)))
	return detections, nil
}
