package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"bentopro/internal/apierr"
)

// Analysis is the textual food-content description for one uploaded photo.
// It is consumed immediately by the prompt composer and never persisted on
// its own.
type Analysis struct {
	Description string `json:"description"`
}

// Analyzer extracts a food-content description from an uploaded photo.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte) (Analysis, error)
}

const (
	// MaxImageBytes bounds uploads before they reach the vision model.
	MaxImageBytes = 7 * 1024 * 1024

	defaultVisionModel = "gemini-3-pro-preview"
	defaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
)

const analyzePrompt = `Analyze this bento image for a commercial photography prompt.
Extract the following visual details accurately:

1. CONTAINER: Describe the material, shape, color, and pattern of the bento box (e.g., wood-grain paper box, black plastic, round, rectangular).
2. LAYOUT: Describe specifically where each food item is placed (e.g., Grilled salmon on the center-left, Tamagoyaki on the top-right).
3. FOOD: List all food items with visual details (texture, color).

IMPORTANT: Do NOT describe the camera angle, shooting angle, or perspective (e.g., high-angle, overhead, low-angle).
Only describe the container, food arrangement, and food details.

Format the output as a descriptive paragraph for image generation.
Answer in English.`

// GeminiAnalyzer implements Analyzer using Google's Generative Language API.
// Extended reasoning is disabled on every request; it only adds latency for
// this kind of visual inventory.
type GeminiAnalyzer struct {
	apiKey      string
	model       string
	baseURL     string
	client      *http.Client
	tokenSource oauth2.TokenSource
}

// NewGeminiAnalyzer constructs a Gemini-powered analyzer.
func NewGeminiAnalyzer(apiKey, model string, timeout time.Duration, tokenSource oauth2.TokenSource) *GeminiAnalyzer {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &GeminiAnalyzer{
		apiKey:      apiKey,
		model:       normalizeModel(model),
		baseURL:     defaultBaseURL,
		client:      &http.Client{Timeout: timeout},
		tokenSource: tokenSource,
	}
}

// Analyze runs the vision model on the uploaded image bytes. Invalid input
// is rejected before any network call.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, data []byte) (Analysis, error) {
	if len(data) == 0 {
		return Analysis{}, fmt.Errorf("vision: empty image data: %w", apierr.ErrInvalidImage)
	}
	if len(data) > MaxImageBytes {
		return Analysis{}, fmt.Errorf("vision: image exceeds %d bytes: %w", MaxImageBytes, apierr.ErrInvalidImage)
	}
	mime, err := SniffImage(data)
	if err != nil {
		return Analysis{}, err
	}

	payload := map[string]any{
		"contents": []map[string]any{
			{
				"role": "user",
				"parts": []map[string]any{
					{"text": analyzePrompt},
					{
						"inline_data": map[string]string{
							"mime_type": mime,
							"data":      base64.StdEncoding.EncodeToString(data),
						},
					},
				},
			},
		},
		"generationConfig": map[string]any{
			"temperature": 0.2,
			"thinkingConfig": map[string]any{
				"thinkingBudget": 0,
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Analysis{}, fmt.Errorf("vision: marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	if g.tokenSource == nil {
		endpoint = fmt.Sprintf("%s?key=%s", endpoint, url.QueryEscape(g.apiKey))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Analysis{}, fmt.Errorf("vision: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.tokenSource != nil {
		token, err := g.tokenSource.Token()
		if err != nil {
			return Analysis{}, fmt.Errorf("vision: fetch oauth token: %v: %w", err, apierr.ErrUnavailable)
		}
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Analysis{}, fmt.Errorf("vision: perform request: %v: %w", err, apierr.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var failure struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return Analysis{}, fmt.Errorf("vision: status %d: %s: %w",
			resp.StatusCode, failure.Error.Message, apierr.FromStatus(resp.StatusCode))
	}

	var completion struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return Analysis{}, fmt.Errorf("vision: decode response: %v: %w", err, apierr.ErrUnavailable)
	}
	if len(completion.Candidates) == 0 || len(completion.Candidates[0].Content.Parts) == 0 {
		return Analysis{}, fmt.Errorf("vision: empty response: %w", apierr.ErrUnavailable)
	}

	text := strings.TrimSpace(completion.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return Analysis{}, fmt.Errorf("vision: blank description: %w", apierr.ErrUnavailable)
	}
	return Analysis{Description: text}, nil
}

// SniffImage validates that data is JPEG or PNG and returns its MIME type.
func SniffImage(data []byte) (string, error) {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg", nil
	case len(data) >= 8 && bytes.Equal(data[:8], []byte("\x89PNG\r\n\x1a\n")):
		return "image/png", nil
	default:
		return "", fmt.Errorf("vision: unsupported image encoding: %w", apierr.ErrInvalidImage)
	}
}

func normalizeModel(model string) string {
	clean := strings.TrimSpace(model)
	clean = strings.TrimPrefix(clean, "models/")
	if clean == "" {
		return defaultVisionModel
	}
	return clean
}
