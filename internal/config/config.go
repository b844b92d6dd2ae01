package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration values.
type Config struct {
	Port            string
	DatabaseURL     string
	AccessTokenHash string
	AI              AIConfig
	Media           MediaConfig
	Pipeline        PipelineConfig
}

// AIConfig describes the model endpoints the pipeline talks to.
type AIConfig struct {
	GoogleAPIKey       string
	VisionModel        string
	ImageModel         string
	ImageModelFallback string
	TaggerProvider     string
	TaggerModel        string
	OpenAIAPIKey       string
	RenderBackend      string
	VertexProjectID    string
	VertexLocation     string
	VertexModel        string
	ServiceAccount     string
	ServiceAccountJSON string
}

// MediaConfig describes S3/media related configuration.
type MediaConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	PublicURL       string
	KeyPrefix       string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
}

// PipelineConfig bounds the generation pipeline.
type PipelineConfig struct {
	CallTimeoutSeconds int
	MaxConcurrentRuns  int
}

// FromEnv loads configuration from the environment, reading a .env file first
// when one is present.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("config: loaded .env file")
	}

	cfg := Config{
		Port:            getenv("APP_PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		AccessTokenHash: os.Getenv("ACCESS_TOKEN_HASH"),
		AI: AIConfig{
			GoogleAPIKey:       os.Getenv("GOOGLE_API_KEY"),
			VisionModel:        getenv("VISION_MODEL", "gemini-3-pro-preview"),
			ImageModel:         getenv("IMAGE_MODEL", "gemini-3-pro-image-preview"),
			ImageModelFallback: getenv("IMAGE_MODEL_FALLBACK", "gemini-2.5-flash-image"),
			TaggerProvider:     getenv("TAGGER_PROVIDER", "gemini"),
			TaggerModel:        getenv("TAGGER_MODEL", "gemini-2.0-flash-exp"),
			OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
			RenderBackend:      getenv("RENDER_BACKEND", "gemini"),
			VertexProjectID:    os.Getenv("VERTEX_PROJECT_ID"),
			VertexLocation:     os.Getenv("VERTEX_LOCATION"),
			VertexModel:        os.Getenv("VERTEX_MODEL"),
			ServiceAccount:     os.Getenv("GOOGLE_SERVICE_ACCOUNT"),
			ServiceAccountJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		},
		Media: MediaConfig{
			Bucket:          os.Getenv("S3_BUCKET_NAME"),
			Region:          os.Getenv("S3_REGION"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			PublicURL:       os.Getenv("S3_PUBLIC_URL"),
			KeyPrefix:       strings.Trim(os.Getenv("S3_KEY_PREFIX"), "/"),
			ForcePathStyle:  getenvBool("S3_FORCE_PATH_STYLE", false),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},
		Pipeline: PipelineConfig{
			CallTimeoutSeconds: getenvInt("AI_CALL_TIMEOUT_SECONDS", 120),
			MaxConcurrentRuns:  getenvInt("MAX_CONCURRENT_RUNS", 2),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("config: APP_PORT cannot be empty")
	}
	if c.AI.RenderBackend != "gemini" && c.AI.RenderBackend != "vertex" {
		return fmt.Errorf("config: RENDER_BACKEND must be gemini or vertex, got %q", c.AI.RenderBackend)
	}
	if c.AI.GoogleAPIKey == "" && c.AI.ServiceAccount == "" && c.AI.ServiceAccountJSON == "" {
		return fmt.Errorf("config: GOOGLE_API_KEY or a service account is required")
	}
	if c.AI.RenderBackend == "vertex" && (c.AI.VertexProjectID == "" || c.AI.VertexLocation == "" || c.AI.VertexModel == "") {
		return fmt.Errorf("config: vertex backend needs VERTEX_PROJECT_ID, VERTEX_LOCATION and VERTEX_MODEL")
	}
	if c.AI.TaggerProvider == "openai" && c.AI.OpenAIAPIKey == "" {
		return fmt.Errorf("config: TAGGER_PROVIDER=openai needs OPENAI_API_KEY")
	}
	return nil
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}

func getenvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}

	return parsed
}

func getenvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}

	return parsed
}
