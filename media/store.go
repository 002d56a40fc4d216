package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Store defines the interface for saving, retrieving, and deleting media assets
type Store interface {
	// Save writes data under the asset type's directory and returns the path relative to the store root.
	Save(assetType AssetType, relativeDirHint string, filename string, data io.Reader) (string, error)
	Get(relativePath string) (io.ReadCloser, os.FileInfo, error)
	Delete(relativePath string) error
	GetFullPath(relativePath string) (string, error)
	EnsureDir(assetType AssetType) (string, error)
}

// LocalStorage implements the Store interface using the local filesystem
type LocalStorage struct {
	basePath string
	dirs     map[AssetType]string // absolute directory per asset type
	logger   *zap.Logger
}

// NewLocalStorage creates a store rooted at basePath. dirs maps asset types to
// directories; relative entries are resolved under basePath.
func NewLocalStorage(basePath string, dirs map[AssetType]string, logger *zap.Logger) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}
	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	resolved := make(map[AssetType]string, len(dirs))
	for assetType, dir := range dirs {
		fullPath := dir
		if !filepath.IsAbs(fullPath) {
			fullPath = filepath.Join(absBasePath, dir)
		}
		fullPath = filepath.Clean(fullPath)
		if !within(absBasePath, fullPath) {
			return nil, fmt.Errorf("invalid directory for %s: '%s' resolves outside base path '%s'", assetType, dir, absBasePath)
		}
		resolved[assetType] = fullPath
	}

	logger.Info("media store initialized", zap.String("path", absBasePath))
	return &LocalStorage{basePath: absBasePath, dirs: resolved, logger: logger}, nil
}

func within(base, path string) bool {
	return path == base || strings.HasPrefix(path, base+string(filepath.Separator))
}

func (ls *LocalStorage) assetDir(assetType AssetType) (string, error) {
	dir, ok := ls.dirs[assetType]
	if !ok {
		return "", fmt.Errorf("asset type '%s' is not configured", assetType)
	}
	return dir, nil
}

// EnsureDir creates the directory for the asset type if it doesn't exist
func (ls *LocalStorage) EnsureDir(assetType AssetType) (string, error) {
	dir, err := ls.assetDir(assetType)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to ensure directory '%s': %w", dir, err)
	}
	return dir, nil
}

func (ls *LocalStorage) Save(assetType AssetType, relativeDirHint string, filename string, data io.Reader) (string, error) {
	baseAssetDir, err := ls.EnsureDir(assetType)
	if err != nil {
		return "", err
	}

	targetDir := baseAssetDir
	if relativeDirHint != "" {
		targetDir = filepath.Join(baseAssetDir, relativeDirHint)
		if !within(baseAssetDir, filepath.Clean(targetDir)) {
			return "", fmt.Errorf("invalid relative directory hint '%s'", relativeDirHint)
		}
		if err := os.MkdirAll(targetDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create sub-directory '%s': %w", targetDir, err)
		}
	}

	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid filename '%s'", filename)
	}
	fullSavePath := filepath.Join(targetDir, filename)

	outFile, err := os.Create(fullSavePath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file '%s': %w", fullSavePath, err)
	}
	if _, err := io.Copy(outFile, data); err != nil {
		outFile.Close()
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to write data to '%s': %w", fullSavePath, err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to close '%s': %w", fullSavePath, err)
	}

	relativePath, err := filepath.Rel(ls.basePath, fullSavePath)
	if err != nil {
		return "", fmt.Errorf("internal error calculating relative path: %w", err)
	}

	ls.logger.Debug("asset saved", zap.String("type", string(assetType)), zap.String("path", fullSavePath))
	return filepath.ToSlash(relativePath), nil
}

func (ls *LocalStorage) Get(relativePath string) (io.ReadCloser, os.FileInfo, error) {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("asset not found at '%s': %w", relativePath, err)
		}
		return nil, nil, fmt.Errorf("failed to open asset '%s': %w", relativePath, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat asset '%s': %w", relativePath, err)
	}
	return file, info, nil
}

// Delete removes an asset file; a missing file is not an error.
func (ls *LocalStorage) Delete(relativePath string) error {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return err
	}
	err = os.Remove(fullPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete asset '%s': %w", relativePath, err)
	}
	if err == nil {
		ls.logger.Debug("asset deleted", zap.String("path", fullPath))
	}
	return nil
}

// GetFullPath calculates the absolute path and rejects paths escaping the store root.
func (ls *LocalStorage) GetFullPath(relativePath string) (string, error) {
	if relativePath == "" {
		return "", fmt.Errorf("empty asset path")
	}
	absFullPath, err := filepath.Abs(filepath.Join(ls.basePath, filepath.Clean(relativePath)))
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", relativePath, err)
	}
	if !within(ls.basePath, absFullPath) || absFullPath == ls.basePath {
		return "", fmt.Errorf("invalid path: access denied for '%s'", relativePath)
	}
	return absFullPath, nil
}
