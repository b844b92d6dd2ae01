package meta

import (
	"context"
	"errors"
	"testing"

	"bentopro/internal/llm"
)

type fakeClient struct {
	reply string
	err   error
}

func (f fakeClient) ChatCompletion(_ context.Context, _ []llm.ChatMessage, _ float64) (string, error) {
	return f.reply, f.err
}

func TestTagParsesFencedJSON(t *testing.T) {
	tagger := NewLLMTagger(fakeClient{reply: "```json\n{\"title\":\"鮭弁当\",\"description\":\"焼き鮭がメインの和風弁当\",\"tags\":[\"鮭\",\"和食\",\"焼き魚\"]}\n```"})

	tags, err := tagger.Tag(context.Background(), "grilled salmon bento")
	if err != nil {
		t.Fatalf("tag: %v", err)
	}
	if tags.Title != "鮭弁当" || len(tags.Tags) != 3 {
		t.Fatalf("unexpected tags: %+v", tags)
	}
}

func TestTagParsesBareJSONWithProse(t *testing.T) {
	tagger := NewLLMTagger(fakeClient{reply: "Here you go:\n{\"title\":\"唐揚げ弁当\",\"description\":\"\",\"tags\":[\"唐揚げ\"]}\nEnjoy!"})

	tags, err := tagger.Tag(context.Background(), "karaage bento")
	if err != nil {
		t.Fatalf("tag: %v", err)
	}
	if tags.Title != "唐揚げ弁当" {
		t.Fatalf("unexpected title %q", tags.Title)
	}
}

func TestTagRejectsEmptyTitle(t *testing.T) {
	tagger := NewLLMTagger(fakeClient{reply: `{"title":"","description":"x","tags":[]}`})
	if _, err := tagger.Tag(context.Background(), "x"); err == nil {
		t.Fatal("empty title accepted")
	}
}

func TestTagPropagatesClientError(t *testing.T) {
	wantErr := errors.New("boom")
	tagger := NewLLMTagger(fakeClient{err: wantErr})
	if _, err := tagger.Tag(context.Background(), "x"); !errors.Is(err, wantErr) {
		t.Fatalf("client error not propagated: %v", err)
	}
}
