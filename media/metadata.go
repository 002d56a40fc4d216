package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

func getString(exifData *exif.Exif, tagName exif.FieldName) *string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.StringVal()
	if err != nil {
		return nil
	}
	val = strings.TrimSpace(strings.TrimRight(val, "\x00"))
	if val == "" {
		return nil
	}
	return &val
}

// ReadMetadata returns the image dimensions and, when the file carries EXIF, the
// camera and capture time. Missing EXIF is not an error.
func ReadMetadata(data []byte) (Metadata, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Metadata{}, fmt.Errorf("metadata: failed to decode image config: %w", err)
	}
	meta := Metadata{Width: cfg.Width, Height: cfg.Height, Format: format}

	exifData, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return meta, nil
	}
	meta.CameraMake = getString(exifData, exif.Make)
	meta.CameraModel = getString(exifData, exif.Model)
	if dt, err := exifData.DateTime(); err == nil {
		meta.TakenAt = &dt
	}
	return meta, nil
}
