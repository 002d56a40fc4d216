package detection

import (
	"errors"
	"image"
	"math"
	"testing"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

func newDecoder(classes ...string) *YOLODetector {
	return &YOLODetector{
		cfg: YOLOConfig{
			ClassNames:    classes,
			InputSize:     640,
			ConfThreshold: 0.25,
			NMSThreshold:  0.45,
		},
		logger: zap.NewNop(),
	}
}

// anchor is one column of the [1, 4+classes, anchors] output tensor.
type anchor struct {
	cx, cy, w, h float32
	scores       []float32
}

func outputTensor(t *testing.T, numClasses int, anchors []anchor) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizes([]int{1, 4 + numClasses, len(anchors)}, gocv.MatTypeCV32F)
	for a, an := range anchors {
		if len(an.scores) != numClasses {
			t.Fatalf("anchor %d has %d scores, want %d", a, len(an.scores), numClasses)
		}
		m.SetFloatAt3(0, 0, a, an.cx)
		m.SetFloatAt3(0, 1, a, an.cy)
		m.SetFloatAt3(0, 2, a, an.w)
		m.SetFloatAt3(0, 3, a, an.h)
		for c, s := range an.scores {
			m.SetFloatAt3(0, 4+c, a, s)
		}
	}
	return m
}

func TestDecode_ThresholdClampAndNMS(t *testing.T) {
	d := newDecoder(LabelHelmet, LabelNoVest)
	output := outputTensor(t, 2, []anchor{
		{cx: 20, cy: 20, w: 20, h: 20, scores: []float32{0.9, 0.1}},
		// near-duplicate of the first box, lower score
		{cx: 21, cy: 20, w: 20, h: 20, scores: []float32{0.6, 0.05}},
		// runs past the right edge of a 100x100 frame
		{cx: 95, cy: 50, w: 20, h: 20, scores: []float32{0.2, 0.7}},
		// below the confidence threshold
		{cx: 60, cy: 80, w: 10, h: 10, scores: []float32{0.1, 0.1}},
	})
	defer output.Close()

	dets, err := d.decode(output, 1, image.Rect(0, 0, 100, 100))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("expected 2 detections after NMS, got %d: %+v", len(dets), dets)
	}

	byLabel := map[string]Detection{}
	for _, det := range dets {
		if det.Confidence < 0 || det.Confidence > 1 {
			t.Errorf("confidence out of range: %+v", det)
		}
		byLabel[det.Label] = det
	}

	helmet, ok := byLabel[LabelHelmet]
	if !ok {
		t.Fatalf("missing Helmet detection in %+v", dets)
	}
	if helmet.Box != image.Rect(10, 10, 30, 30) {
		t.Errorf("expected the higher scoring Helmet box to survive, got %v", helmet.Box)
	}
	if math.Abs(helmet.Confidence-0.9) > 1e-6 {
		t.Errorf("expected Helmet confidence 0.9, got %f", helmet.Confidence)
	}

	vest, ok := byLabel[LabelNoVest]
	if !ok {
		t.Fatalf("missing NoVest detection in %+v", dets)
	}
	if vest.Box != image.Rect(85, 40, 100, 60) {
		t.Errorf("expected NoVest box clamped to the frame, got %v", vest.Box)
	}
}

func TestDecode_ScalesBackToFrame(t *testing.T) {
	d := newDecoder(LabelPerson)
	output := outputTensor(t, 1, []anchor{
		{cx: 100, cy: 100, w: 40, h: 20, scores: []float32{0.8}},
	})
	defer output.Close()

	dets, err := d.decode(output, 2, image.Rect(0, 0, 1280, 720))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(dets) != 1 || dets[0].Box != image.Rect(160, 180, 240, 220) {
		t.Errorf("unexpected detections %+v", dets)
	}
}

func TestDecode_NothingAboveThreshold(t *testing.T) {
	d := newDecoder(LabelHelmet)
	output := outputTensor(t, 1, []anchor{
		{cx: 10, cy: 10, w: 5, h: 5, scores: []float32{0.05}},
	})
	defer output.Close()

	dets, err := d.decode(output, 1, image.Rect(0, 0, 50, 50))
	if err != nil || len(dets) != 0 {
		t.Errorf("expected no detections and no error, got %+v / %v", dets, err)
	}
}

func TestDecode_MalformedShape(t *testing.T) {
	d := newDecoder(LabelHelmet, LabelNoVest)

	tests := []struct {
		name  string
		sizes []int
	}{
		{"wrong channel count", []int{1, 5, 3}},
		{"batch of two", []int{2, 6, 3}},
		{"two dimensional", []int{6, 3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			output := gocv.NewMatWithSizes(tc.sizes, gocv.MatTypeCV32F)
			defer output.Close()

			_, err := d.decode(output, 1, image.Rect(0, 0, 100, 100))
			if !errors.Is(err, ErrMalformedOutput) {
				t.Errorf("expected ErrMalformedOutput, got %v", err)
			}
		})
	}
}
