package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates that a generation record could not be located in the
// backing store.
var ErrNotFound = errors.New("generation not found")

// Record captures one completed generation: the style that produced it, the
// model outputs and where the artifacts live.
type Record struct {
	Key             string    `json:"key"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Tags            []string  `json:"tags"`
	Favorite        bool      `json:"favorite"`
	Background      string    `json:"background"`
	Angle           string    `json:"angle"`
	Lighting        string    `json:"lighting"`
	Margin          string    `json:"margin"`
	Orientation     string    `json:"orientation"`
	AspectRatio     string    `json:"aspect_ratio,omitempty"`
	ContainerClean  bool      `json:"container_clean,omitempty"`
	Analysis        string    `json:"analyzed_content"`
	Prompt          string    `json:"full_prompt"`
	OriginalURL     string    `json:"original_url,omitempty"`
	GeneratedURL    string    `json:"generated_url,omitempty"`
	ThumbnailURL    string    `json:"thumbnail_url,omitempty"`
	AnalyzeSeconds  float64   `json:"analyze_seconds"`
	GenerateSeconds float64   `json:"generate_seconds"`
	TotalSeconds    float64   `json:"total_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store defines the persistence behaviors the application relies on.
type Store interface {
	SaveRecord(ctx context.Context, rec Record) (Record, error)
	ListRecords(ctx context.Context, query string) ([]Record, error)
	GetRecord(ctx context.Context, key string) (Record, error)
	SetFavorite(ctx context.Context, key string, favorite bool) (Record, error)
	Close()
}

// NewStore selects a backing store based on whether a database URL is provided.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if databaseURL == "" {
		return NewInMemoryStore(), nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := ensureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS generations (
        key TEXT PRIMARY KEY,
        title TEXT NOT NULL,
        description TEXT,
        tags TEXT[],
        favorite BOOLEAN NOT NULL DEFAULT false,
        background TEXT,
        angle TEXT,
        lighting TEXT,
        margin TEXT,
        orientation TEXT,
        aspect_ratio TEXT,
        container_clean BOOLEAN NOT NULL DEFAULT false,
        analyzed_content TEXT,
        full_prompt TEXT,
        original_url TEXT,
        generated_url TEXT,
        thumbnail_url TEXT,
        analyze_seconds DOUBLE PRECISION,
        generate_seconds DOUBLE PRECISION,
        total_seconds DOUBLE PRECISION,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`)
	if err != nil {
		return fmt.Errorf("create generations table: %w", err)
	}

	return nil
}
