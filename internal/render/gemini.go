package render

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"

	"bentopro/internal/apierr"
)

const defaultImageModel = "gemini-3-pro-image-preview"

// generateFn performs one model call; it exists so tests can exercise the
// fallback loop without a live client.
type generateFn func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiGenerator renders studio photos via Gemini image outputs. When the
// configured model is unavailable it retries once on the fallback model.
type GeminiGenerator struct {
	apiKey   string
	model    string
	fallback string
	timeout  time.Duration
	generate generateFn
}

// NewGeminiGenerator constructs a generator able to request inline images.
func NewGeminiGenerator(apiKey, model, fallback string, timeout time.Duration) *GeminiGenerator {
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	if model == "" {
		model = defaultImageModel
	}
	fallback = strings.TrimPrefix(strings.TrimSpace(fallback), "models/")
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &GeminiGenerator{
		apiKey:   apiKey,
		model:    model,
		fallback: fallback,
		timeout:  timeout,
	}
}

// Generate requests a photorealistic image for the composed prompt, passing
// the original photo as an inline reference part when present.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (Image, error) {
	if g == nil || strings.TrimSpace(g.apiKey) == "" {
		return Image{}, fmt.Errorf("render: generator not configured: %w", apierr.ErrConfig)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return Image{}, fmt.Errorf("render: empty prompt: %w", apierr.ErrInvalidPrompt)
	}

	childCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	call := g.generate
	if call == nil {
		client, err := genai.NewClient(childCtx, &genai.ClientConfig{
			APIKey: g.apiKey,
		})
		if err != nil {
			return Image{}, fmt.Errorf("render: create genai client: %v: %w", err, apierr.ErrUnavailable)
		}
		call = client.Models.GenerateContent
	}

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if len(req.Reference) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Reference, referenceMime(req.Reference)))
	}
	contents := []*genai.Content{{Parts: parts}}

	var config *genai.GenerateContentConfig
	if req.AspectRatio != "" {
		config = &genai.GenerateContentConfig{
			ImageConfig: &genai.ImageConfig{
				AspectRatio: req.AspectRatio,
			},
		}
	}

	models := []string{g.model}
	if g.fallback != "" && g.fallback != g.model {
		models = append(models, g.fallback)
	}

	var lastErr error
	for i, model := range models {
		resp, err := call(childCtx, model, contents, config)
		if err != nil {
			classified := apierr.Classify(err)
			if errors.Is(classified, apierr.ErrModelUnavailable) && i < len(models)-1 {
				log.Printf("render: model %s unavailable, falling back to %s", model, models[i+1])
				lastErr = classified
				continue
			}
			return Image{}, fmt.Errorf("render: generate with %s: %w", model, classified)
		}
		return extractImage(resp)
	}
	return Image{}, fmt.Errorf("render: no usable model: %w", lastErr)
}

func extractImage(resp *genai.GenerateContentResponse) (Image, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Image{}, fmt.Errorf("render: empty response: %w", apierr.ErrUnavailable)
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			if err := validatePayload(part.InlineData.Data); err != nil {
				return Image{}, err
			}
			mime := strings.TrimSpace(part.InlineData.MIMEType)
			if mime == "" {
				mime = "image/png"
			}
			return Image{Data: part.InlineData.Data, MIME: mime}, nil
		}
	}
	return Image{}, fmt.Errorf("render: response contains no image data: %w", apierr.ErrUnavailable)
}
