package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"bentopro/internal/config"
	"bentopro/internal/events"
	"bentopro/internal/history"
	"bentopro/internal/llm"
	"bentopro/internal/media"
	"bentopro/internal/meta"
	"bentopro/internal/pipeline"
	"bentopro/internal/render"
	"bentopro/internal/server"
	"bentopro/internal/storage"
	"bentopro/internal/vision"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer store.Close()

	var uploader media.Uploader
	if cfg.Media.Bucket != "" && cfg.Media.Region != "" {
		uploader, err = media.NewUploader(ctx, media.Config{
			Bucket:          cfg.Media.Bucket,
			Region:          cfg.Media.Region,
			Endpoint:        cfg.Media.Endpoint,
			PublicURL:       cfg.Media.PublicURL,
			KeyPrefix:       cfg.Media.KeyPrefix,
			ForcePathStyle:  cfg.Media.ForcePathStyle,
			AccessKeyID:     cfg.Media.AccessKeyID,
			SecretAccessKey: cfg.Media.SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("failed to init media uploader: %v", err)
		}
	} else {
		uploader, err = media.NewLocalUploader("")
		if err != nil {
			log.Fatalf("failed to init local media storage: %v", err)
		}
		log.Println("media uploader: using local storage (S3 config missing)")
	}

	tokenSource := googleTokenSource(ctx, cfg.AI)
	callTimeout := time.Duration(cfg.Pipeline.CallTimeoutSeconds) * time.Second

	analyzer := vision.NewGeminiAnalyzer(cfg.AI.GoogleAPIKey, cfg.AI.VisionModel, callTimeout, tokenSource)

	var generator render.Generator
	if strings.EqualFold(cfg.AI.RenderBackend, "vertex") {
		generator = render.NewVertexImagen(render.VertexImagenConfig{
			ProjectID:          cfg.AI.VertexProjectID,
			Location:           cfg.AI.VertexLocation,
			Model:              cfg.AI.VertexModel,
			APIKey:             cfg.AI.GoogleAPIKey,
			ServiceAccount:     cfg.AI.ServiceAccount,
			ServiceAccountJSON: cfg.AI.ServiceAccountJSON,
		})
		log.Println("render backend: Vertex Imagen")
	} else {
		generator = render.NewGeminiGenerator(cfg.AI.GoogleAPIKey, cfg.AI.ImageModel, cfg.AI.ImageModelFallback, callTimeout)
		log.Println("render backend: Gemini")
	}

	var taggerClient llm.Client
	if strings.EqualFold(cfg.AI.TaggerProvider, "openai") {
		taggerClient = llm.NewOpenAIClient(cfg.AI.OpenAIAPIKey, cfg.AI.TaggerModel)
		log.Println("tagger ready: OpenAI")
	} else {
		taggerClient = llm.NewGeminiClient(cfg.AI.GoogleAPIKey, cfg.AI.TaggerModel, callTimeout, tokenSource)
		log.Println("tagger ready: Gemini")
	}

	eventBroker := events.NewBroker()

	runner := &pipeline.Runner{
		Analyzer:      analyzer,
		Generator:     generator,
		History:       history.NewStore(uploader),
		Index:         store,
		Tagger:        meta.NewLLMTagger(taggerClient),
		Events:        eventBroker,
		CallTimeout:   callTimeout,
		MaxConcurrent: int64(cfg.Pipeline.MaxConcurrentRuns),
	}

	handler := server.Handler{
		Runner: runner,
		Index:  store,
		Events: eventBroker,
	}

	srv := server.New(cfg.Port, handler, cfg.AccessTokenHash)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownChan
		log.Println("shutting down server...")
		if err := srv.Close(); err != nil {
			log.Printf("server close error: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}

// googleTokenSource builds an oauth2 token source from service-account
// credentials when they are configured. With none, calls fall back to the
// API key.
func googleTokenSource(ctx context.Context, ai config.AIConfig) oauth2.TokenSource {
	var raw []byte
	if ai.ServiceAccountJSON != "" {
		raw = []byte(ai.ServiceAccountJSON)
	} else if ai.ServiceAccount != "" {
		data, err := os.ReadFile(ai.ServiceAccount)
		if err != nil {
			log.Fatalf("failed to read service account file: %v", err)
		}
		raw = data
	} else {
		return nil
	}

	creds, err := google.CredentialsFromJSON(ctx, raw, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		log.Fatalf("failed to parse service account credentials: %v", err)
	}
	return creds.TokenSource
}
