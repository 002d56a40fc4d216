package media

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const (
	ThumbnailJpegQuality   = 85
	ThumbnailFileExtension = ".jpg"
	AnnotatedFileExtension = ".jpg"
)

var supportedImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// originalExtension keeps a known raster extension from the uploaded filename, defaulting to .jpg.
func originalExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if supportedImageExtensions[ext] {
		return ext
	}
	return ".jpg"
}

// StoredAssets are the relative paths written for one upload.
type StoredAssets struct {
	OriginalPath  string
	AnnotatedPath string
	ThumbnailPath string
}

// Processor writes upload assets through a Store.
type Processor struct {
	store   Store
	maxSize int
	logger  *zap.Logger
}

func NewProcessor(store Store, thumbnailMaxSize int, logger *zap.Logger) *Processor {
	return &Processor{store: store, maxSize: thumbnailMaxSize, logger: logger}
}

func (p *Processor) Store() Store {
	return p.store
}

// SaveUpload stores the original bytes, the annotated JPEG and a thumbnail of the
// original, grouped under the upload id. Assets already written stay on disk when
// a later step fails; the returned paths say which ones exist.
func (p *Processor) SaveUpload(uploadID, filename string, original, annotated []byte) (StoredAssets, error) {
	var assets StoredAssets
	var err error

	assets.OriginalPath, err = p.store.Save(AssetTypeOriginal, "", uploadID+originalExtension(filename), bytes.NewReader(original))
	if err != nil {
		return assets, fmt.Errorf("failed to save original: %w", err)
	}

	if len(annotated) > 0 {
		assets.AnnotatedPath, err = p.store.Save(AssetTypeAnnotated, "", uploadID+AnnotatedFileExtension, bytes.NewReader(annotated))
		if err != nil {
			return assets, fmt.Errorf("failed to save annotated copy: %w", err)
		}
	}

	img, err := imaging.Decode(bytes.NewReader(original), imaging.AutoOrientation(true))
	if err != nil {
		return assets, fmt.Errorf("failed to decode original for thumbnail: %w", err)
	}
	assets.ThumbnailPath, err = p.GenerateThumbnail(img, uploadID)
	if err != nil {
		return assets, err
	}
	return assets, nil
}

// GenerateThumbnail fits the image inside maxSize x maxSize and saves it as JPEG.
func (p *Processor) GenerateThumbnail(img image.Image, uploadID string) (string, error) {
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return "", fmt.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	thumb := imaging.Fit(img, p.maxSize, p.maxSize, imaging.Lanczos)

	reader, writer := io.Pipe()
	go func() {
		err := imaging.Encode(writer, thumb, imaging.JPEG, imaging.JPEGQuality(ThumbnailJpegQuality))
		if err != nil {
			p.logger.Warn("failed to encode thumbnail", zap.String("upload_id", uploadID), zap.Error(err))
			writer.CloseWithError(fmt.Errorf("thumbnail encoding failed: %w", err))
			return
		}
		writer.Close()
	}()

	savedRelPath, err := p.store.Save(AssetTypeThumbnail, "", uploadID+ThumbnailFileExtension, reader)
	reader.Close()
	if err != nil {
		return "", fmt.Errorf("failed to save thumbnail via store: %w", err)
	}

	p.logger.Debug("thumbnail saved", zap.String("upload_id", uploadID), zap.String("path", savedRelPath))
	return savedRelPath, nil
}
