package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bentopro/internal/llm"
)

// Tags is the catalog metadata derived from one analysis.
type Tags struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Tagger derives searchable catalog metadata from the analysis text.
type Tagger interface {
	Tag(ctx context.Context, analysis string) (Tags, error)
}

const tagPrompt = `Based on this bento description, generate the following metadata in JSON format:
- title: A short Japanese title (max 20 characters, e.g., "ハンバーグ弁当", "幕の内弁当")
- description: A brief Japanese description (max 50 characters)
- tags: An array of 3-5 Japanese search tags (e.g., ["ハンバーグ", "和食", "唐揚げ"])

Return ONLY valid JSON in this exact format:
{
  "title": "...",
  "description": "...",
  "tags": ["...", "...", "..."]
}

Bento description:
`

// LLMTagger implements Tagger on top of a chat-completion client.
type LLMTagger struct {
	client llm.Client
}

// NewLLMTagger wires a tagger backed by the given client.
func NewLLMTagger(client llm.Client) *LLMTagger {
	return &LLMTagger{client: client}
}

// Tag asks the model for title, description and tags. Callers treat failures
// as non-fatal and fall back to defaults.
func (t *LLMTagger) Tag(ctx context.Context, analysis string) (Tags, error) {
	if t == nil || t.client == nil {
		return Tags{}, fmt.Errorf("meta: tagger not configured")
	}

	raw, err := t.client.ChatCompletion(ctx, []llm.ChatMessage{
		{Role: "user", Content: tagPrompt + analysis},
	}, 0.4)
	if err != nil {
		return Tags{}, fmt.Errorf("meta: tag completion: %w", err)
	}

	payload, err := extractJSON(raw)
	if err != nil {
		return Tags{}, err
	}

	var tags Tags
	if err := json.Unmarshal([]byte(payload), &tags); err != nil {
		return Tags{}, fmt.Errorf("meta: parse tags: %w", err)
	}
	if strings.TrimSpace(tags.Title) == "" {
		return Tags{}, fmt.Errorf("meta: model returned empty title")
	}
	return tags, nil
}

// extractJSON peels markdown code fences and any surrounding prose off the
// model output and returns the outermost JSON object.
func extractJSON(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.Index(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("meta: no JSON object in model output")
	}
	return cleaned[start : end+1], nil
}
