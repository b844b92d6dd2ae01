package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bentopro/internal/apierr"
	"bentopro/internal/events"
	"bentopro/internal/pipeline"
	"bentopro/internal/storage"
	"bentopro/internal/style"
	"bentopro/internal/vision"
)

// PipelineRunner abstracts the generation pipeline for the HTTP layer.
type PipelineRunner interface {
	Run(ctx context.Context, image []byte, sel style.Selection, opts pipeline.Options) (pipeline.Result, error)
}

// Handler exposes the generation API.
type Handler struct {
	Runner PipelineRunner
	Index  storage.Store
	Events *events.Broker
}

type generationResponse struct {
	Record      storage.Record `json:"record"`
	ImageBase64 string         `json:"image_base64"`
	MIME        string         `json:"mime"`
	Stage       string         `json:"stage"`
	Warning     string         `json:"warning,omitempty"`
}

// Create handles POST /api/generations: a multipart upload with the bento
// photo and the style form fields.
func (h Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Runner == nil {
		http.Error(w, "generation inactive", http.StatusServiceUnavailable)
		return
	}

	if err := r.ParseMultipartForm(vision.MaxImageBytes + (1 << 20)); err != nil {
		http.Error(w, fmt.Sprintf("could not parse form: %v", err), http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("image_file")
	if err != nil {
		http.Error(w, "image_file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, vision.MaxImageBytes+1))
	if err != nil {
		http.Error(w, "could not read file", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty file", http.StatusBadRequest)
		return
	}
	if len(data) > vision.MaxImageBytes {
		http.Error(w, fmt.Sprintf("file exceeds %d bytes", vision.MaxImageBytes), http.StatusBadRequest)
		return
	}

	sel := style.Selection{
		Background:  r.FormValue("background"),
		Angle:       r.FormValue("angle"),
		Lighting:    r.FormValue("lighting"),
		Margin:      r.FormValue("margin"),
		Orientation: r.FormValue("orientation"),
	}
	opts := pipeline.Options{
		AspectRatio:    r.FormValue("aspect_ratio"),
		CleanContainer: parseBool(r.FormValue("clean_container")),
	}

	result, err := h.Runner.Run(r.Context(), data, sel, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, generationResponse{
		Record:      result.Record,
		ImageBase64: base64.StdEncoding.EncodeToString(result.Image),
		MIME:        result.MIME,
		Stage:       string(result.Stage),
		Warning:     result.Warning,
	})
}

// List handles GET /api/generations with an optional q search parameter.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Index == nil {
		http.Error(w, "history index inactive", http.StatusServiceUnavailable)
		return
	}

	records, err := h.Index.ListRecords(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		http.Error(w, "could not list generations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// Get handles GET /api/generations/{key}.
func (h Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Index == nil {
		http.Error(w, "history index inactive", http.StatusServiceUnavailable)
		return
	}

	rec, err := h.Index.GetRecord(r.Context(), chi.URLParam(r, "key"))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "generation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "could not load generation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Favorite handles POST /api/generations/{key}/favorite.
func (h Handler) Favorite(w http.ResponseWriter, r *http.Request) {
	if h.Index == nil {
		http.Error(w, "history index inactive", http.StatusServiceUnavailable)
		return
	}

	var payload struct {
		Favorite bool `json:"favorite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := h.Index.SetFavorite(r.Context(), chi.URLParam(r, "key"), payload.Favorite)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "generation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "could not update favorite", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// StreamEvents handles GET /api/events as a server-sent event stream of
// pipeline stage transitions.
func (h Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		http.Error(w, "events inactive", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch := h.Events.Subscribe()
	defer h.Events.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, apierr.ErrInvalidImage),
		errors.Is(err, apierr.ErrInvalidPrompt),
		errors.Is(err, apierr.ErrConfig):
		status = http.StatusBadRequest
	case errors.Is(err, apierr.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, apierr.ErrModelUnavailable):
		status = http.StatusUnprocessableEntity
	}

	body := map[string]any{"error": err.Error()}
	if errors.Is(err, apierr.ErrModelUnavailable) {
		body["hint"] = "configure a different image model"
	}
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		body["stage"] = string(stageErr.Stage)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
