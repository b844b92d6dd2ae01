package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"bentopro/internal/apierr"
	"bentopro/internal/events"
	"bentopro/internal/meta"
	"bentopro/internal/render"
	"bentopro/internal/storage"
	"bentopro/internal/style"
	"bentopro/internal/vision"
)

type stubAnalyzer struct {
	description string
	err         error
	calls       int
}

func (s *stubAnalyzer) Analyze(_ context.Context, _ []byte) (vision.Analysis, error) {
	s.calls++
	if s.err != nil {
		return vision.Analysis{}, s.err
	}
	return vision.Analysis{Description: s.description}, nil
}

type stubGenerator struct {
	err    error
	calls  int
	prompt string
	onCall func()
}

func (s *stubGenerator) Generate(_ context.Context, req render.Request) (render.Image, error) {
	s.calls++
	s.prompt = req.Prompt
	if s.onCall != nil {
		s.onCall()
	}
	if s.err != nil {
		return render.Image{}, s.err
	}
	return render.Image{Data: []byte("rendered"), MIME: "image/png"}, nil
}

type stubHistory struct {
	err   error
	calls int
	saved storage.Record
}

func (s *stubHistory) Save(_ context.Context, rec storage.Record, _, _ []byte) (storage.Record, error) {
	s.calls++
	if s.err != nil {
		return rec, s.err
	}
	rec.GeneratedURL = "https://cdn.example/" + rec.Key + "/generated.png"
	s.saved = rec
	return rec, nil
}

type stubTagger struct {
	tags meta.Tags
	err  error
}

func (s stubTagger) Tag(_ context.Context, _ string) (meta.Tags, error) {
	return s.tags, s.err
}

func TestRunSuccess(t *testing.T) {
	analyzer := &stubAnalyzer{description: "rice, grilled salmon, tamagoyaki"}
	generator := &stubGenerator{}
	hist := &stubHistory{}
	index := storage.NewInMemoryStore()

	runner := &Runner{
		Analyzer:  analyzer,
		Generator: generator,
		History:   hist,
		Index:     index,
		Tagger:    stubTagger{tags: meta.Tags{Title: "鮭弁当", Tags: []string{"鮭"}}},
	}

	res, err := runner.Run(context.Background(), []byte("photo"), style.Studio(), Options{AspectRatio: "4:3"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Stage != StageDone || res.Warning != "" {
		t.Fatalf("unexpected result stage %s warning %q", res.Stage, res.Warning)
	}
	if string(res.Image) != "rendered" {
		t.Fatalf("unexpected image payload %q", res.Image)
	}
	if hist.calls != 1 {
		t.Fatalf("history saved %d times", hist.calls)
	}
	if !strings.Contains(generator.prompt, "A Japanese bento box containing rice, grilled salmon, tamagoyaki.") {
		t.Fatalf("composed prompt missing content clause:\n%s", generator.prompt)
	}
	if res.Record.Title != "鮭弁当" || res.Record.AspectRatio != "4:3" {
		t.Fatalf("record not filled in: %+v", res.Record)
	}

	indexed, err := index.GetRecord(context.Background(), res.Record.Key)
	if err != nil {
		t.Fatalf("record not indexed: %v", err)
	}
	if indexed.GeneratedURL != res.Record.GeneratedURL {
		t.Fatalf("indexed record lost URLs: %+v", indexed)
	}
}

func TestRunAnalyzerFailureStopsPipeline(t *testing.T) {
	analyzer := &stubAnalyzer{err: fmt.Errorf("vision: status 429: %w", apierr.ErrRateLimited)}
	generator := &stubGenerator{}
	hist := &stubHistory{}

	runner := &Runner{Analyzer: analyzer, Generator: generator, History: hist}

	_, err := runner.Run(context.Background(), []byte("photo"), style.Studio(), Options{})
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageAnalyzing {
		t.Fatalf("expected analyzing stage error, got %v", err)
	}
	if !errors.Is(err, apierr.ErrRateLimited) {
		t.Fatalf("cause not preserved: %v", err)
	}
	if generator.calls != 0 || hist.calls != 0 {
		t.Fatal("later stages ran after analyzer failure")
	}
}

func TestRunInvalidStyleFailsAtIdle(t *testing.T) {
	runner := &Runner{Analyzer: &stubAnalyzer{}, Generator: &stubGenerator{}}

	sel := style.Studio()
	sel.Background = "neon"
	_, err := runner.Run(context.Background(), []byte("photo"), sel, Options{})
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageIdle {
		t.Fatalf("expected idle stage error, got %v", err)
	}
	if !errors.Is(err, apierr.ErrConfig) {
		t.Fatalf("cause not preserved: %v", err)
	}
}

func TestRunStorageFailureDegradesToWarning(t *testing.T) {
	runner := &Runner{
		Analyzer:  &stubAnalyzer{description: "rice"},
		Generator: &stubGenerator{},
		History:   &stubHistory{err: fmt.Errorf("history: upload: %w", apierr.ErrStorage)},
		Index:     storage.NewInMemoryStore(),
	}

	res, err := runner.Run(context.Background(), []byte("photo"), style.Studio(), Options{})
	if err != nil {
		t.Fatalf("storage failure should not fail the run: %v", err)
	}
	if res.Stage != StageDoneWithWarning || res.Warning == "" {
		t.Fatalf("expected warning result, got stage %s warning %q", res.Stage, res.Warning)
	}
	if len(res.Image) == 0 {
		t.Fatal("image lost on storage failure")
	}
}

func TestRunCancelledBeforePersistSkipsSave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hist := &stubHistory{}
	runner := &Runner{
		Analyzer:  &stubAnalyzer{description: "rice"},
		Generator: &stubGenerator{onCall: cancel},
		History:   hist,
	}

	_, err := runner.Run(ctx, []byte("photo"), style.Studio(), Options{})
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StagePersisting {
		t.Fatalf("expected persisting stage error, got %v", err)
	}
	if hist.calls != 0 {
		t.Fatal("history written for cancelled run")
	}
}

func TestRunFailureEventNamesFailingStage(t *testing.T) {
	broker := events.NewBroker()
	ch := broker.Subscribe()
	defer broker.Unsubscribe(ch)

	runner := &Runner{
		Analyzer:  &stubAnalyzer{err: fmt.Errorf("vision: status 429: %w", apierr.ErrRateLimited)},
		Generator: &stubGenerator{},
		Events:    broker,
	}
	if _, err := runner.Run(context.Background(), []byte("photo"), style.Studio(), Options{}); err == nil {
		t.Fatal("run succeeded with failing analyzer")
	}

	var failed events.Event
	for len(ch) > 0 {
		if evt := <-ch; evt.Stage == string(StageFailed) {
			failed = evt
		}
	}
	if failed.Stage != string(StageFailed) {
		t.Fatal("no Failed event published")
	}
	if !strings.Contains(failed.Error, string(StageAnalyzing)) {
		t.Fatalf("failed event %q does not name the failing stage", failed.Error)
	}
	if !strings.Contains(failed.Error, "429") {
		t.Fatalf("failed event %q lost the cause", failed.Error)
	}
}

func TestRunPublishesStages(t *testing.T) {
	broker := events.NewBroker()
	ch := broker.Subscribe()
	defer broker.Unsubscribe(ch)

	runner := &Runner{
		Analyzer:  &stubAnalyzer{description: "rice"},
		Generator: &stubGenerator{},
		Events:    broker,
	}
	if _, err := runner.Run(context.Background(), []byte("photo"), style.Studio(), Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	var stages []string
	for len(ch) > 0 {
		stages = append(stages, (<-ch).Stage)
	}
	want := []string{"Analyzing", "Composing", "Generating", "Persisting", "Done"}
	if len(stages) != len(want) {
		t.Fatalf("published stages %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("published stages %v, want %v", stages, want)
		}
	}
}
