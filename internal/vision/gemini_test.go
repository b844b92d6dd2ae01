package vision

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bentopro/internal/apierr"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestAnalyzeRejectsEmptyInputWithoutCalling(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
	}))
	defer srv.Close()

	a := NewGeminiAnalyzer("key", "", time.Second, nil)
	a.baseURL = srv.URL

	if _, err := a.Analyze(context.Background(), nil); !errors.Is(err, apierr.ErrInvalidImage) {
		t.Fatalf("empty input yielded %v, want invalid image", err)
	}
	if _, err := a.Analyze(context.Background(), []byte("not an image")); !errors.Is(err, apierr.ErrInvalidImage) {
		t.Fatalf("garbage input yielded %v, want invalid image", err)
	}
	if calls != 0 {
		t.Fatalf("vision model called %d times for invalid input", calls)
	}
}

func TestAnalyzeRejectsOversizeInputWithoutCalling(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
	}))
	defer srv.Close()

	a := NewGeminiAnalyzer("key", "", time.Second, nil)
	a.baseURL = srv.URL

	// Valid PNG header so only the size check can reject it.
	oversize := make([]byte, MaxImageBytes+1)
	copy(oversize, pngBytes(t))

	if _, err := a.Analyze(context.Background(), oversize); !errors.Is(err, apierr.ErrInvalidImage) {
		t.Fatalf("oversize input yielded %v, want invalid image", err)
	}
	if calls != 0 {
		t.Fatalf("vision model called %d times for oversize input", calls)
	}
}

func TestAnalyzeClassifiesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	a := NewGeminiAnalyzer("key", "", time.Second, nil)
	a.baseURL = srv.URL

	_, err := a.Analyze(context.Background(), pngBytes(t))
	if !errors.Is(err, apierr.ErrRateLimited) {
		t.Fatalf("429 yielded %v, want rate limited", err)
	}
}

func TestAnalyzeClassifiesServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewGeminiAnalyzer("key", "", time.Second, nil)
	a.baseURL = srv.URL

	_, err := a.Analyze(context.Background(), pngBytes(t))
	if !errors.Is(err, apierr.ErrUnavailable) {
		t.Fatalf("503 yielded %v, want unavailable", err)
	}
}

func TestAnalyzeReturnsDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  rice, grilled salmon, pickled vegetables  "}]}}]}`))
	}))
	defer srv.Close()

	a := NewGeminiAnalyzer("key", "models/gemini-3-pro-preview", time.Second, nil)
	a.baseURL = srv.URL

	got, err := a.Analyze(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.Description != "rice, grilled salmon, pickled vegetables" {
		t.Fatalf("unexpected description %q", got.Description)
	}
}

func TestSniffImage(t *testing.T) {
	if mime, err := SniffImage([]byte{0xFF, 0xD8, 0xFF, 0xE0}); err != nil || mime != "image/jpeg" {
		t.Fatalf("jpeg sniff = %q, %v", mime, err)
	}
	if mime, err := SniffImage(pngBytes(t)); err != nil || mime != "image/png" {
		t.Fatalf("png sniff = %q, %v", mime, err)
	}
	if _, err := SniffImage([]byte("GIF89a")); !errors.Is(err, apierr.ErrInvalidImage) {
		t.Fatalf("gif sniff yielded %v, want invalid image", err)
	}
}
