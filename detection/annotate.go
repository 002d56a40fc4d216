package detection

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

const (
	labelFont      = gocv.FontHersheySimplex
	labelFontScale = 0.6
	labelThickness = 2
	boxThickness   = 2
)

type hersheyMeasurer struct{}

func (hersheyMeasurer) Measure(text string) image.Point {
	return gocv.GetTextSize(text, labelFont, labelFontScale, labelThickness)
}

// Annotate draws a box and caption for every non-Person detection onto a copy of
// frame. The input Mat is left untouched; the caller owns the returned Mat.
func Annotate(frame gocv.Mat, detections []Detection) (gocv.Mat, []PlacedLabel, error) {
	if frame.Empty() {
		return gocv.NewMat(), nil, ErrEmptyFrame
	}

	out := frame.Clone()
	labels := PlaceLabels(detections, out.Cols(), hersheyMeasurer{})
	for _, l := range labels {
		if err := gocv.Rectangle(&out, l.Box, l.Color, boxThickness); err != nil {
			out.Close()
			return gocv.NewMat(), nil, fmt.Errorf("failed to draw box for %s: %w", l.Label, err)
		}
		if err := gocv.PutText(&out, l.Text, l.Origin(), labelFont, labelFontScale, l.Color, labelThickness); err != nil {
			out.Close()
			return gocv.NewMat(), nil, fmt.Errorf("failed to draw label %q: %w", l.Text, err)
		}
	}
	return out, labels, nil
}

// EncodeJPEG encodes a frame to JPEG bytes.
func EncodeJPEG(frame gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
