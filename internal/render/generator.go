package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"bentopro/internal/apierr"
)

// Request describes one image-generation call.
type Request struct {
	// Prompt is the composed generation prompt; it must be non-empty.
	Prompt string
	// Reference is the source photo the model restyles. Optional.
	Reference []byte
	// AspectRatio selects the output format ("1:1", "3:4", "4:3"). Optional.
	AspectRatio string
}

// Image is a rendered image payload.
type Image struct {
	Data []byte
	MIME string
}

// Generator renders a studio photo for the composed prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (Image, error)
}

// validatePayload enforces the generator contract: a non-empty, decodable image.
func validatePayload(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("render: empty image payload: %w", apierr.ErrUnavailable)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("render: undecodable image payload: %v: %w", err, apierr.ErrUnavailable)
	}
	return nil
}

func referenceMime(data []byte) string {
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "image/jpeg"
	}
	return mime
}
