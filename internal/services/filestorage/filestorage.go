package filestorage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cozy-creator/audio-adapters/internal/config"
)

var (
	ErrFileNotFound    = errors.New("file not found")
	ErrNotLocalConfig  = errors.New("filesystem is not local")
	ErrS3NotConfigured = errors.New("s3 config is not set")
)

// FileStorage publishes files the adapters have written to disk.
type FileStorage interface {
	// Upload makes the file at path available and returns where it can be
	// found: the absolute path for local storage, a URL for remote storage.
	Upload(ctx context.Context, path string) (string, error)
	UploadMultiple(ctx context.Context, paths []string) ([]string, error)
	// Remote reports whether Upload returns URLs.
	Remote() bool
}

func NewFileStorage(ctx context.Context, cfg *config.Config) (FileStorage, error) {
	switch cfg.Filesystem {
	case config.FilesystemLocal:
		return NewLocalFileStorage(cfg)
	case config.FilesystemS3:
		return NewS3FileStorage(ctx, cfg)
	}

	return nil, fmt.Errorf("%w %s", config.ErrInvalidFilesystem, cfg.Filesystem)
}

func uploadMultiple(ctx context.Context, storage FileStorage, paths []string) ([]string, error) {
	uploaded := make([]string, 0, len(paths))
	for _, path := range paths {
		location, err := storage.Upload(ctx, path)
		if err != nil {
			return nil, err
		}
		uploaded = append(uploaded, location)
	}

	return uploaded, nil
}

func readFile(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, err
	}
	return content, nil
}
