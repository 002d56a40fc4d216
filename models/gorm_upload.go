package models

import "time"

// Upload tracks an image submitted through the upload endpoint. Its ID is the
// image identity stored on the violations produced from it.
type Upload struct {
	ID            string     `gorm:"primaryKey;type:text" json:"id"`
	UserID        string     `gorm:"not null;index" json:"user_id"`
	Filename      string     `gorm:"not null" json:"filename"`
	OriginalPath  string     `json:"original_path,omitempty"`
	AnnotatedPath string     `json:"annotated_path,omitempty"`
	ThumbnailPath string     `json:"thumbnail_path,omitempty"`
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	TakenAt       *time.Time `json:"taken_at,omitempty"` // from EXIF when present
	CreatedAt     time.Time  `json:"created_at"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName explicitly sets the table name for GORM.
func (Upload) TableName() string {
	return "uploads"
}
