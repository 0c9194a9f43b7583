package filestorage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cozy-creator/audio-adapters/internal/config"
)

// LocalFileStorage leaves files where they were written.
type LocalFileStorage struct{}

func NewLocalFileStorage(cfg *config.Config) (*LocalFileStorage, error) {
	if cfg.Filesystem != config.FilesystemLocal {
		return nil, ErrNotLocalConfig
	}

	return &LocalFileStorage{}, nil
}

func (u *LocalFileStorage) Upload(_ context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, abs)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", abs)
	}

	return abs, nil
}

func (u *LocalFileStorage) UploadMultiple(ctx context.Context, paths []string) ([]string, error) {
	return uploadMultiple(ctx, u, paths)
}

func (u *LocalFileStorage) Remote() bool {
	return false
}
