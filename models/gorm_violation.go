package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// LabelGoodToGo is the sentinel label persisted when a frame has no violations.
	LabelGoodToGo = "GoodToGo"
	// NotApplicable fills identities that do not exist for a record (sentinel person, webcam image).
	NotApplicable = "N/A"
	// SentinelConfidence is the fixed confidence of a GoodToGo record.
	SentinelConfidence = 1.0
)

// Violation is one persisted compliance outcome for a single detection event.
// Records are immutable after creation; they disappear only with their owning user.
type Violation struct {
	ID         string    `gorm:"primaryKey;type:text" json:"id"`
	Label      string    `gorm:"not null;index" json:"label"`
	Confidence float64   `gorm:"not null" json:"confidence"`
	Timestamp  time.Time `gorm:"not null;index" json:"timestamp"`
	PersonID   string    `gorm:"not null" json:"person_id"`
	ImageID    string    `gorm:"not null;index" json:"image_id"`
	UserID     string    `gorm:"not null;index" json:"user_id"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName explicitly sets the table name for GORM.
func (Violation) TableName() string {
	return "violations"
}

// BeforeCreate assigns the record identity.
func (v *Violation) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// IsCompliant reports whether the record is the GoodToGo sentinel.
func (v *Violation) IsCompliant() bool {
	return v.Label == LabelGoodToGo
}
