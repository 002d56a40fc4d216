package services

import (
	"testing"
	"time"

	"github.com/camden-git/ppemonitor/detection"
	"github.com/camden-git/ppemonitor/models"
)

func TestViolationDraft_WithDefaults(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)
	replayedID := "batch-7"

	tests := []struct {
		name      string
		draft     ViolationDraft
		imageID   string
		wantTime  time.Time
		wantImage string
	}{
		{"fills both", ViolationDraft{Label: "NoVest"}, "img-1", now, "img-1"},
		{"empty image id becomes N/A", ViolationDraft{Label: "NoVest"}, "", now, models.NotApplicable},
		{"keeps timestamp", ViolationDraft{Label: "NoVest", Timestamp: &earlier}, "img-1", earlier, "img-1"},
		{"keeps image id", ViolationDraft{Label: "NoVest", ImageID: &replayedID}, "img-1", now, "batch-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.draft.WithDefaults(now, tt.imageID)
			if !got.Timestamp.Equal(tt.wantTime) {
				t.Errorf("timestamp = %v, want %v", got.Timestamp, tt.wantTime)
			}
			if *got.ImageID != tt.wantImage {
				t.Errorf("image id = %s, want %s", *got.ImageID, tt.wantImage)
			}
		})
	}
}

func TestViolationDraft_WithDefaultsAppliesOnce(t *testing.T) {
	first := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	d := ViolationDraft{Label: "NoHelmet"}.WithDefaults(first, "img-a")
	d = d.WithDefaults(first.Add(time.Minute), "img-b")

	if !d.Timestamp.Equal(first) || *d.ImageID != "img-a" {
		t.Errorf("second WithDefaults overwrote values: %v %s", d.Timestamp, *d.ImageID)
	}
}

func TestDraftsFor(t *testing.T) {
	sentinel := DraftsFor(nil)
	if len(sentinel) != 1 {
		t.Fatalf("expected exactly one sentinel draft, got %d", len(sentinel))
	}
	s := sentinel[0]
	if s.Label != models.LabelGoodToGo || s.Confidence != 1.0 || s.PersonID != models.NotApplicable {
		t.Errorf("unexpected sentinel %+v", s)
	}

	drafts := DraftsFor([]detection.ViolationCandidate{
		{Label: "NoVest", Confidence: 0.7, PersonID: "p1"},
		{Label: "NoHelmet", Confidence: 0.6, PersonID: "p2"},
	})
	if len(drafts) != 2 || drafts[0].PersonID != "p1" || drafts[1].Label != "NoHelmet" {
		t.Errorf("unexpected drafts %+v", drafts)
	}
}

func TestViolationDraft_Record(t *testing.T) {
	now := time.Now()
	v := GoodToGoDraft().WithDefaults(now, "").Record("user-1")
	if v.UserID != "user-1" || v.ImageID != models.NotApplicable || !v.Timestamp.Equal(now) {
		t.Errorf("unexpected record %+v", v)
	}
}
