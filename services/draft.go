package services

import (
	"time"

	"github.com/camden-git/ppemonitor/detection"
	"github.com/camden-git/ppemonitor/models"
)

// ViolationDraft is a record before storage. Timestamp and ImageID are optional;
// WithDefaults fills them only when nil, so replayed drafts keep their own values.
type ViolationDraft struct {
	Label      string
	Confidence float64
	PersonID   string
	Timestamp  *time.Time
	ImageID    *string
}

func DraftFromCandidate(c detection.ViolationCandidate) ViolationDraft {
	return ViolationDraft{Label: c.Label, Confidence: c.Confidence, PersonID: c.PersonID}
}

// GoodToGoDraft is the single record stored for a frame with no violations.
func GoodToGoDraft() ViolationDraft {
	return ViolationDraft{
		Label:      models.LabelGoodToGo,
		Confidence: models.SentinelConfidence,
		PersonID:   models.NotApplicable,
	}
}

// DraftsFor converts a frame's candidates to drafts, substituting the GoodToGo
// sentinel when there are none.
func DraftsFor(candidates []detection.ViolationCandidate) []ViolationDraft {
	if len(candidates) == 0 {
		return []ViolationDraft{GoodToGoDraft()}
	}
	drafts := make([]ViolationDraft, len(candidates))
	for i, c := range candidates {
		drafts[i] = DraftFromCandidate(c)
	}
	return drafts
}

// WithDefaults sets Timestamp to now and ImageID to imageID ("N/A" when empty)
// where they are absent.
func (d ViolationDraft) WithDefaults(now time.Time, imageID string) ViolationDraft {
	if d.Timestamp == nil {
		ts := now
		d.Timestamp = &ts
	}
	if d.ImageID == nil {
		id := imageID
		if id == "" {
			id = models.NotApplicable
		}
		d.ImageID = &id
	}
	return d
}

// Record builds the storable violation. Call WithDefaults first.
func (d ViolationDraft) Record(userID string) *models.Violation {
	v := &models.Violation{
		Label:      d.Label,
		Confidence: d.Confidence,
		PersonID:   d.PersonID,
		ImageID:    models.NotApplicable,
		UserID:     userID,
	}
	if d.Timestamp != nil {
		v.Timestamp = *d.Timestamp
	}
	if d.ImageID != nil {
		v.ImageID = *d.ImageID
	}
	return v
}
