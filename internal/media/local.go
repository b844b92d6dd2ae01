package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalUploader stores files on the local filesystem (typically /tmp) for short-lived processing.
type LocalUploader struct {
	BaseDir string
}

// NewLocalUploader constructs an uploader that writes to the provided directory.
// If baseDir is empty, os.TempDir() is used.
func NewLocalUploader(baseDir string) (*LocalUploader, error) {
	dir := baseDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local media dir: %w", err)
	}
	return &LocalUploader{BaseDir: dir}, nil
}

// Upload writes the incoming content under BaseDir and returns its absolute
// path. A populated Key keeps the same layout local runs would get on S3; an
// empty Key falls back to an anonymous temp file.
func (l *LocalUploader) Upload(_ context.Context, input UploadInput) (UploadResult, error) {
	if input.Body == nil {
		return UploadResult{}, fmt.Errorf("upload body is required")
	}

	if key := filepath.ToSlash(input.Key); key != "" && !strings.Contains(key, "..") {
		dest := filepath.Join(l.BaseDir, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return UploadResult{}, fmt.Errorf("create media dir: %w", err)
		}
		file, err := os.Create(dest)
		if err != nil {
			return UploadResult{}, fmt.Errorf("create media file: %w", err)
		}
		defer file.Close()
		if _, err := io.Copy(file, input.Body); err != nil {
			os.Remove(dest)
			return UploadResult{}, fmt.Errorf("write media file: %w", err)
		}
		return UploadResult{Key: key, URL: dest}, nil
	}

	ext := filepath.Ext(input.Filename)
	if len(ext) > 10 {
		ext = ext[:10]
	}

	tmpFile, err := os.CreateTemp(l.BaseDir, "bentomedia-*"+ext)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create temp file: %w", err)
	}
	defer tmpFile.Close()

	if _, err := io.Copy(tmpFile, input.Body); err != nil {
		os.Remove(tmpFile.Name())
		return UploadResult{}, fmt.Errorf("write temp file: %w", err)
	}

	return UploadResult{
		Key: tmpFile.Name(),
		URL: "",
	}, nil
}
