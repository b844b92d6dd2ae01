package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"testing"
	"time"

	"google.golang.org/genai"

	"bentopro/internal/apierr"
)

func TestGeminiGeneratorRejectsEmptyPrompt(t *testing.T) {
	g := NewGeminiGenerator("key", "", "", time.Second)
	if _, err := g.Generate(context.Background(), Request{Prompt: "   "}); !errors.Is(err, apierr.ErrInvalidPrompt) {
		t.Fatalf("blank prompt yielded %v, want invalid prompt", err)
	}
}

func TestGeminiGeneratorRequiresAPIKey(t *testing.T) {
	g := NewGeminiGenerator("", "", "", time.Second)
	if _, err := g.Generate(context.Background(), Request{Prompt: "studio bento"}); !errors.Is(err, apierr.ErrConfig) {
		t.Fatalf("missing key yielded %v, want config error", err)
	}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func imageResponse(data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{{
					InlineData: &genai.Blob{Data: data, MIMEType: "image/png"},
				}},
			},
		}},
	}
}

func TestGeminiGeneratorFallsBackWhenModelUnavailable(t *testing.T) {
	var tried []string
	g := NewGeminiGenerator("key", "primary-model", "fallback-model", time.Second)
	g.generate = func(_ context.Context, model string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		tried = append(tried, model)
		if model == "primary-model" {
			return nil, errors.New("model primary-model not found for this account")
		}
		return imageResponse(testPNG(t)), nil
	}

	img, err := g.Generate(context.Background(), Request{Prompt: "studio bento"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if img.MIME != "image/png" || len(img.Data) == 0 {
		t.Fatalf("unexpected image %+v", img)
	}
	if len(tried) != 2 || tried[0] != "primary-model" || tried[1] != "fallback-model" {
		t.Fatalf("models tried %v, want primary then fallback", tried)
	}
}

func TestGeminiGeneratorBothModelsUnavailable(t *testing.T) {
	g := NewGeminiGenerator("key", "primary-model", "fallback-model", time.Second)
	g.generate = func(_ context.Context, model string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return nil, fmt.Errorf("model %s not found for this account", model)
	}

	if _, err := g.Generate(context.Background(), Request{Prompt: "studio bento"}); !errors.Is(err, apierr.ErrModelUnavailable) {
		t.Fatalf("both models unavailable yielded %v, want model unavailable", err)
	}
}

func TestGeminiGeneratorDoesNotFallBackOnRateLimit(t *testing.T) {
	var tried []string
	g := NewGeminiGenerator("key", "primary-model", "fallback-model", time.Second)
	g.generate = func(_ context.Context, model string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		tried = append(tried, model)
		return nil, errors.New("429 quota exceeded")
	}

	if _, err := g.Generate(context.Background(), Request{Prompt: "studio bento"}); !errors.Is(err, apierr.ErrRateLimited) {
		t.Fatalf("rate limit yielded %v, want rate limited", err)
	}
	if len(tried) != 1 {
		t.Fatalf("rate limit tried %d models, want only the primary", len(tried))
	}
}

func TestVertexImagenRequiresConfiguration(t *testing.T) {
	v := NewVertexImagen(VertexImagenConfig{})
	if _, err := v.Generate(context.Background(), Request{Prompt: "studio bento"}); !errors.Is(err, apierr.ErrConfig) {
		t.Fatalf("unconfigured imagen yielded %v, want config error", err)
	}
}

func TestValidatePayload(t *testing.T) {
	if err := validatePayload(nil); !errors.Is(err, apierr.ErrUnavailable) {
		t.Fatalf("empty payload yielded %v, want unavailable", err)
	}
	if err := validatePayload([]byte("not an image")); !errors.Is(err, apierr.ErrUnavailable) {
		t.Fatalf("garbage payload yielded %v, want unavailable", err)
	}

	if err := validatePayload(testPNG(t)); err != nil {
		t.Fatalf("valid png rejected: %v", err)
	}
}

func TestReferenceMime(t *testing.T) {
	if got := referenceMime([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0}); got != "image/jpeg" {
		t.Fatalf("jpeg detected as %q", got)
	}
	if got := referenceMime([]byte("plain text payload")); got != "image/jpeg" {
		t.Fatalf("non-image fallback = %q, want image/jpeg", got)
	}
}
