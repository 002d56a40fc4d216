package realtime

import (
	"context"
	"time"

	"github.com/camden-git/ppemonitor/models"
)

const EventViolationsRecorded = "violations.recorded"

// Event is published after the records of one analyzed frame are stored.
type Event struct {
	Type       string             `json:"type"`
	UserID     string             `json:"user_id"`
	ImageID    string             `json:"image_id"`
	Compliant  bool               `json:"compliant"`
	Violations []models.Violation `json:"violations"`
	Timestamp  int64              `json:"timestamp"`
}

// NewViolationsEvent builds the event for one frame's stored records.
func NewViolationsEvent(userID, imageID string, records []models.Violation, at time.Time) Event {
	compliant := true
	for i := range records {
		if !records[i].IsCompliant() {
			compliant = false
			break
		}
	}
	return Event{
		Type:       EventViolationsRecorded,
		UserID:     userID,
		ImageID:    imageID,
		Compliant:  compliant,
		Violations: records,
		Timestamp:  at.Unix(),
	}
}

// Publisher delivers events to observers. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// MultiPublisher fans an event out to every publisher and returns the first error.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, event Event) error {
	var firstErr error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
