package config

import "testing"

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "key")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("default port = %q", cfg.Port)
	}
	if cfg.AI.VisionModel != "gemini-3-pro-preview" || cfg.AI.ImageModel != "gemini-3-pro-image-preview" {
		t.Fatalf("default models wrong: %+v", cfg.AI)
	}
	if cfg.Pipeline.CallTimeoutSeconds != 120 || cfg.Pipeline.MaxConcurrentRuns != 2 {
		t.Fatalf("default pipeline bounds wrong: %+v", cfg.Pipeline)
	}
}

func TestFromEnvRequiresCredentials(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")

	if _, err := FromEnv(); err == nil {
		t.Fatal("missing credentials accepted")
	}
}

func TestFromEnvValidatesBackend(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "key")
	t.Setenv("RENDER_BACKEND", "dalle")

	if _, err := FromEnv(); err == nil {
		t.Fatal("unknown render backend accepted")
	}
}

func TestFromEnvVertexNeedsProject(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "key")
	t.Setenv("RENDER_BACKEND", "vertex")
	t.Setenv("VERTEX_PROJECT_ID", "")

	if _, err := FromEnv(); err == nil {
		t.Fatal("vertex backend without project accepted")
	}
}
