package media

import "time"

type AssetType string

const (
	AssetTypeOriginal  AssetType = "original"
	AssetTypeAnnotated AssetType = "annotated"
	AssetTypeThumbnail AssetType = "thumbnail"
)

// ParseAssetType maps a URL segment to an asset type.
func ParseAssetType(s string) (AssetType, bool) {
	switch AssetType(s) {
	case AssetTypeOriginal, AssetTypeAnnotated, AssetTypeThumbnail:
		return AssetType(s), true
	}
	return "", false
}

// Metadata holds what the upload record keeps about an image.
type Metadata struct {
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Format      string     `json:"format,omitempty"`
	CameraMake  *string    `json:"camera_make,omitempty"`
	CameraModel *string    `json:"camera_model,omitempty"`
	TakenAt     *time.Time `json:"taken_at,omitempty"`
}
