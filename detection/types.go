package detection

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Class labels produced by the PPE model.
const (
	LabelHelmet   = "Helmet"
	LabelVest     = "Vest"
	LabelNoHelmet = "NoHelmet"
	LabelNoVest   = "NoVest"
	LabelPerson   = "Person"
)

var (
	ErrModelUnavailable = errors.New("detection model unavailable")
	ErrMalformedOutput  = errors.New("malformed detector output")
	ErrEmptyFrame       = errors.New("empty frame")
)

// Detection is one object found in a frame.
type Detection struct {
	Label      string
	Confidence float64
	Box        image.Rectangle
}

// Detector turns a decoded BGR frame into detections, in detector-defined order.
type Detector interface {
	Detect(frame gocv.Mat) ([]Detection, error)
}

var (
	colorCompliant = color.RGBA{0, 255, 0, 0}
	colorViolation = color.RGBA{255, 0, 0, 0}
	colorUnknown   = color.RGBA{255, 255, 255, 0}
)

var classPalette = map[string]color.RGBA{
	LabelHelmet:   colorCompliant,
	LabelVest:     colorCompliant,
	LabelNoHelmet: colorViolation,
	LabelNoVest:   colorViolation,
}

// ClassColor returns the draw color for a class label, white for anything outside the palette.
func ClassColor(label string) color.RGBA {
	if c, ok := classPalette[label]; ok {
		return c
	}
	return colorUnknown
}

// IsViolationLabel reports whether the label marks missing equipment.
func IsViolationLabel(label string) bool {
	return label == LabelNoHelmet || label == LabelNoVest
}

// LabelText is the caption drawn next to a detection box.
func LabelText(d Detection) string {
	return fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
}
