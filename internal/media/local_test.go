package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalUploaderWritesKeyedPath(t *testing.T) {
	up, err := NewLocalUploader(t.TempDir())
	if err != nil {
		t.Fatalf("new local uploader: %v", err)
	}

	res, err := up.Upload(context.Background(), UploadInput{
		Key:         "2026-01-02_15-04-05-abcd1234/generated.png",
		ContentType: "image/png",
		Body:        strings.NewReader("payload"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Key != "2026-01-02_15-04-05-abcd1234/generated.png" {
		t.Fatalf("unexpected key %q", res.Key)
	}

	data, err := os.ReadFile(filepath.Join(up.BaseDir, "2026-01-02_15-04-05-abcd1234", "generated.png"))
	if err != nil {
		t.Fatalf("read written file: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestLocalUploaderFallsBackToTempFile(t *testing.T) {
	up, err := NewLocalUploader(t.TempDir())
	if err != nil {
		t.Fatalf("new local uploader: %v", err)
	}

	res, err := up.Upload(context.Background(), UploadInput{
		Filename: "photo.jpg",
		Body:     strings.NewReader("payload"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasSuffix(res.Key, ".jpg") {
		t.Fatalf("temp key %q lacks extension", res.Key)
	}
}

func TestDisabledUploader(t *testing.T) {
	_, err := Disabled().Upload(context.Background(), UploadInput{Body: strings.NewReader("x")})
	if err != ErrUploaderDisabled {
		t.Fatalf("disabled uploader yielded %v", err)
	}
}
