package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log"
	"time"

	"github.com/google/uuid"

	"bentopro/internal/apierr"
	"bentopro/internal/media"
	"bentopro/internal/storage"
	"bentopro/internal/vision"
)

// ThumbnailLongEdge is the pixel size of the longest thumbnail edge.
const ThumbnailLongEdge = 400

// NewKey builds the object-key prefix for one generation. The timestamp keeps
// listings chronologically sortable; the uuid suffix avoids collisions within
// the same second.
func NewKey(now time.Time) string {
	return now.Format("2006-01-02_15-04-05") + "-" + uuid.NewString()[:8]
}

// Store persists generation artifacts under a shared key prefix:
// original, generated image, thumbnail and a metadata document.
type Store struct {
	uploader media.Uploader
}

// NewStore wires a history store on top of the given uploader.
func NewStore(uploader media.Uploader) *Store {
	return &Store{uploader: uploader}
}

// Save uploads the artifacts for one generation and returns the record with
// its object URLs filled in. A failed thumbnail is logged and skipped; any
// other upload failure aborts with a storage error.
func (s *Store) Save(ctx context.Context, rec storage.Record, original, generated []byte) (storage.Record, error) {
	if s == nil || s.uploader == nil {
		return rec, fmt.Errorf("history: uploader not configured: %w", apierr.ErrStorage)
	}

	originalName := "original.png"
	originalMime := "image/png"
	if mime, err := vision.SniffImage(original); err == nil && mime == "image/jpeg" {
		originalName = "original.jpg"
		originalMime = "image/jpeg"
	}

	res, err := s.upload(ctx, rec.Key+"/"+originalName, originalMime, original)
	if err != nil {
		return rec, err
	}
	rec.OriginalURL = res.URL

	res, err = s.upload(ctx, rec.Key+"/generated.png", "image/png", generated)
	if err != nil {
		return rec, err
	}
	rec.GeneratedURL = res.URL

	if thumb, err := thumbnail(generated); err != nil {
		log.Printf("history: skip thumbnail for %s: %v", rec.Key, err)
	} else if res, err = s.upload(ctx, rec.Key+"/thumbnail.png", "image/png", thumb); err != nil {
		log.Printf("history: skip thumbnail for %s: %v", rec.Key, err)
	} else {
		rec.ThumbnailURL = res.URL
	}

	meta, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("history: marshal metadata: %w", err)
	}
	if _, err := s.upload(ctx, rec.Key+"/metadata.json", "application/json", meta); err != nil {
		return rec, err
	}

	return rec, nil
}

func (s *Store) upload(ctx context.Context, key, contentType string, data []byte) (media.UploadResult, error) {
	res, err := s.uploader.Upload(ctx, media.UploadInput{
		Key:         key,
		ContentType: contentType,
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
	})
	if err != nil {
		return media.UploadResult{}, fmt.Errorf("history: upload %s: %v: %w", key, err, apierr.ErrStorage)
	}
	return res, nil
}

// thumbnail scales the image down so its longest edge is ThumbnailLongEdge.
// Images already small enough are re-encoded unchanged.
func thumbnail(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	bounds := src.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()

	longEdge := srcWidth
	if srcHeight > longEdge {
		longEdge = srcHeight
	}
	scale := 1.0
	if longEdge > ThumbnailLongEdge {
		scale = float64(ThumbnailLongEdge) / float64(longEdge)
	}

	newWidth := int(float64(srcWidth) * scale)
	newHeight := int(float64(srcHeight) * scale)
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	for y := 0; y < newHeight; y++ {
		for x := 0; x < newWidth; x++ {
			srcX := bounds.Min.X + int(float64(x)/scale)
			srcY := bounds.Min.Y + int(float64(y)/scale)
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}
