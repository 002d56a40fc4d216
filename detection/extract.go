package detection

import (
	"strconv"

	"github.com/google/uuid"
)

// ViolationCandidate is a violation found in one frame, not yet persisted.
type ViolationCandidate struct {
	Label      string
	Confidence float64
	PersonID   string
}

// roundConfidence keeps the value the operator sees in the drawn caption.
func roundConfidence(c float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(c, 'f', 2, 64), 64)
	if err != nil {
		return c
	}
	return min(max(r, 0), 1)
}

// ExtractViolations returns one candidate per NoHelmet/NoVest detection, in input
// order, each with its own person id. An empty result means the frame is compliant;
// callers record that with a GoodToGo entry.
func ExtractViolations(detections []Detection) []ViolationCandidate {
	var candidates []ViolationCandidate
	for _, d := range detections {
		if !IsViolationLabel(d.Label) {
			continue
		}
		candidates = append(candidates, ViolationCandidate{
			Label:      d.Label,
			Confidence: roundConfidence(d.Confidence),
			PersonID:   uuid.NewString(),
		})
	}
	return candidates
}
