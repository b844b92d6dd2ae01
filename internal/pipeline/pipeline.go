package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"bentopro/internal/events"
	"bentopro/internal/history"
	"bentopro/internal/meta"
	"bentopro/internal/prompt"
	"bentopro/internal/render"
	"bentopro/internal/storage"
	"bentopro/internal/style"
	"bentopro/internal/vision"
)

// Stage identifies where a generation run currently is.
type Stage string

const (
	StageIdle            Stage = "Idle"
	StageAnalyzing       Stage = "Analyzing"
	StageComposing       Stage = "Composing"
	StageGenerating      Stage = "Generating"
	StagePersisting      Stage = "Persisting"
	StageDone            Stage = "Done"
	StageDoneWithWarning Stage = "DoneWithWarning"
	StageFailed          Stage = "Failed"
)

// Options carries per-run knobs beyond the five style dimensions.
type Options struct {
	AspectRatio    string
	CleanContainer bool
}

// Result is the outcome of one successful run. Warning is set when the image
// was produced but persisting it failed.
type Result struct {
	Record  storage.Record
	Image   []byte
	MIME    string
	Stage   Stage
	Warning string
}

// StageError reports a failed run together with the stage that caused it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("pipeline %s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// HistorySaver persists run artifacts under the record key.
type HistorySaver interface {
	Save(ctx context.Context, rec storage.Record, original, generated []byte) (storage.Record, error)
}

const (
	defaultCallTimeout   = 120 * time.Second
	defaultMaxConcurrent = 2
	defaultTitle         = "弁当"
)

// Runner executes the analyze, compose, generate, persist sequence for one
// uploaded photo. Concurrent runs are bounded by a semaphore so a burst of
// uploads cannot exhaust the model quota at once.
type Runner struct {
	Analyzer  vision.Analyzer
	Generator render.Generator
	History   HistorySaver
	Index     storage.Store
	Tagger    meta.Tagger
	Events    *events.Broker

	CallTimeout   time.Duration
	MaxConcurrent int64

	once sync.Once
	sem  *semaphore.Weighted
}

// Run converts the uploaded photo into a studio photo using the given style.
// Failures before the image exists return a StageError; persistence failures
// after the image exists degrade to a DoneWithWarning result instead.
func (r *Runner) Run(ctx context.Context, image []byte, sel style.Selection, opts Options) (Result, error) {
	sel = sel.WithDefaults()
	if opts.AspectRatio == "" {
		opts.AspectRatio = "1:1"
	}
	fragment, err := style.Render(sel)
	if err != nil {
		return Result{}, &StageError{Stage: StageIdle, Err: err}
	}

	r.once.Do(func() {
		limit := r.MaxConcurrent
		if limit <= 0 {
			limit = defaultMaxConcurrent
		}
		r.sem = semaphore.NewWeighted(limit)
	})
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return Result{}, &StageError{Stage: StageIdle, Err: err}
	}
	defer r.sem.Release(1)

	started := time.Now()
	key := history.NewKey(started)

	r.publish(key, StageAnalyzing, nil)
	analyzeStart := time.Now()
	analyzeCtx, cancelAnalyze := context.WithTimeout(ctx, r.callTimeout())
	analysis, err := r.Analyzer.Analyze(analyzeCtx, image)
	cancelAnalyze()
	if err != nil {
		return Result{}, r.fail(key, StageAnalyzing, err)
	}
	analyzeSeconds := time.Since(analyzeStart).Seconds()

	r.publish(key, StageComposing, nil)
	composed := prompt.Compose(fragment, analysis.Description, prompt.Options{
		AspectRatio:    opts.AspectRatio,
		CleanContainer: opts.CleanContainer,
	})

	r.publish(key, StageGenerating, nil)
	generateStart := time.Now()
	generateCtx, cancelGenerate := context.WithTimeout(ctx, r.callTimeout())
	rendered, err := r.Generator.Generate(generateCtx, render.Request{
		Prompt:      composed,
		Reference:   image,
		AspectRatio: opts.AspectRatio,
	})
	cancelGenerate()
	if err != nil {
		return Result{}, r.fail(key, StageGenerating, err)
	}
	generateSeconds := time.Since(generateStart).Seconds()

	rec := storage.Record{
		Key:             key,
		Title:           defaultTitle,
		Background:      sel.Background,
		Angle:           sel.Angle,
		Lighting:        sel.Lighting,
		Margin:          sel.Margin,
		Orientation:     sel.Orientation,
		AspectRatio:     opts.AspectRatio,
		ContainerClean:  opts.CleanContainer,
		Analysis:        analysis.Description,
		Prompt:          composed,
		AnalyzeSeconds:  analyzeSeconds,
		GenerateSeconds: generateSeconds,
		CreatedAt:       started,
	}
	if r.Tagger != nil {
		if tags, err := r.Tagger.Tag(ctx, analysis.Description); err != nil {
			log.Printf("pipeline: tagging %s failed, using defaults: %v", key, err)
		} else {
			rec.Title = tags.Title
			rec.Description = tags.Description
			rec.Tags = tags.Tags
		}
	}
	rec.TotalSeconds = time.Since(started).Seconds()

	// A cancelled request must not leave a half-written history entry.
	if err := ctx.Err(); err != nil {
		return Result{}, r.fail(key, StagePersisting, err)
	}

	r.publish(key, StagePersisting, nil)
	var warning string
	if r.History != nil {
		if saved, err := r.History.Save(ctx, rec, image, rendered.Data); err != nil {
			warning = fmt.Sprintf("history not saved: %v", err)
		} else {
			rec = saved
		}
	}
	if warning == "" && r.Index != nil {
		if saved, err := r.Index.SaveRecord(ctx, rec); err != nil {
			warning = fmt.Sprintf("record not indexed: %v", err)
		} else {
			rec = saved
		}
	}

	stage := StageDone
	if warning != "" {
		stage = StageDoneWithWarning
		log.Printf("pipeline: %s finished with warning: %s", key, warning)
	}
	r.publish(key, stage, nil)

	return Result{
		Record:  rec,
		Image:   rendered.Data,
		MIME:    rendered.MIME,
		Stage:   stage,
		Warning: warning,
	}, nil
}

func (r *Runner) fail(key string, stage Stage, err error) error {
	stageErr := &StageError{Stage: stage, Err: err}
	// Publish the wrapped error so stream consumers see which stage failed.
	r.publish(key, StageFailed, stageErr)
	return stageErr
}

func (r *Runner) publish(key string, stage Stage, err error) {
	if r.Events == nil {
		return
	}
	evt := events.Event{Key: key, Stage: string(stage)}
	if err != nil {
		evt.Error = err.Error()
	}
	r.Events.Publish(evt)
}

func (r *Runner) callTimeout() time.Duration {
	if r.CallTimeout <= 0 {
		return defaultCallTimeout
	}
	return r.CallTimeout
}
