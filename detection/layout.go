package detection

import (
	"image"
	"image/color"
)

const (
	labelGap     = 10
	labelPushGap = 5
)

// TextMeasurer reports the rendered width and height of a caption.
type TextMeasurer interface {
	Measure(text string) image.Point
}

// PlacedLabel is a caption resolved for drawing. Rect spans from the text origin
// (Min) to origin plus text size; it is what later labels are tested against.
type PlacedLabel struct {
	Detection
	Text  string
	Rect  image.Rectangle
	Color color.RGBA
}

// Origin is the point the caption is drawn at.
func (p PlacedLabel) Origin() image.Point {
	return p.Rect.Min
}

// PlaceLabels resolves caption positions for every non-Person detection, in input order.
//
// A caption sits 10px above the box top when there is room, otherwise one text
// height plus 10px below it, clamped to the frame width. It is then compared once
// against each previously placed caption in order; on intersection it moves to
// 5px below that caption. Later moves are not re-checked against earlier captions,
// so three or more crowded labels can still overlap.
func PlaceLabels(detections []Detection, frameWidth int, m TextMeasurer) []PlacedLabel {
	placed := make([]PlacedLabel, 0, len(detections))
	for _, d := range detections {
		if d.Label == LabelPerson {
			continue
		}

		text := LabelText(d)
		size := m.Measure(text)
		textW, textH := size.X, size.Y

		y := d.Box.Min.Y - labelGap
		if y <= textH {
			y = d.Box.Min.Y + textH + labelGap
		}
		x := max(0, min(d.Box.Min.X, frameWidth-textW))

		for _, prior := range placed {
			o := prior.Rect
			if x < o.Max.X && x+textW > o.Min.X && y < o.Max.Y && y+textH > o.Min.Y {
				y = o.Max.Y + labelPushGap
			}
		}

		placed = append(placed, PlacedLabel{
			Detection: d,
			Text:      text,
			Rect:      image.Rect(x, y, x+textW, y+textH),
			Color:     ClassColor(d.Label),
		})
	}
	return placed
}
