package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists generation records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const recordColumns = `key, title, description, tags, favorite, background, angle, lighting,
	margin, orientation, aspect_ratio, container_clean, analyzed_content, full_prompt,
	original_url, generated_url, thumbnail_url, analyze_seconds, generate_seconds,
	total_seconds, created_at`

// SaveRecord upserts the provided record keyed by its generation key.
func (s *PostgresStore) SaveRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO generations (`+recordColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		 ON CONFLICT (key) DO UPDATE SET
		   title = EXCLUDED.title,
		   description = EXCLUDED.description,
		   tags = EXCLUDED.tags,
		   favorite = EXCLUDED.favorite,
		   original_url = EXCLUDED.original_url,
		   generated_url = EXCLUDED.generated_url,
		   thumbnail_url = EXCLUDED.thumbnail_url`,
		rec.Key, rec.Title, rec.Description, rec.Tags, rec.Favorite,
		rec.Background, rec.Angle, rec.Lighting, rec.Margin, rec.Orientation,
		rec.AspectRatio, rec.ContainerClean, rec.Analysis, rec.Prompt,
		rec.OriginalURL, rec.GeneratedURL, rec.ThumbnailURL,
		rec.AnalyzeSeconds, rec.GenerateSeconds, rec.TotalSeconds, rec.CreatedAt); err != nil {
		return Record{}, fmt.Errorf("insert generation: %w", err)
	}

	return rec, nil
}

// ListRecords returns recent records, newest first. A non-empty query filters
// on title, description and tags.
func (s *PostgresStore) ListRecords(ctx context.Context, query string) ([]Record, error) {
	sql := `SELECT ` + recordColumns + ` FROM generations`
	args := []any{}
	if query != "" {
		sql += ` WHERE title ILIKE $1 OR description ILIKE $1 OR array_to_string(tags, ' ') ILIKE $1`
		args = append(args, "%"+query+"%")
	}
	sql += ` ORDER BY created_at DESC LIMIT 100`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetRecord returns a single record by key.
func (s *PostgresStore) GetRecord(ctx context.Context, key string) (Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM generations WHERE key = $1`, key)
	rec, err := scanRecord(row)
	if err == pgx.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// SetFavorite toggles the favorite flag on a record.
func (s *PostgresStore) SetFavorite(ctx context.Context, key string, favorite bool) (Record, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE generations SET favorite = $2 WHERE key = $1`, key, favorite)
	if err != nil {
		return Record{}, fmt.Errorf("update favorite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Record{}, ErrNotFound
	}
	return s.GetRecord(ctx, key)
}

// Close releases database resources.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.Key, &rec.Title, &rec.Description, &rec.Tags, &rec.Favorite,
		&rec.Background, &rec.Angle, &rec.Lighting, &rec.Margin, &rec.Orientation,
		&rec.AspectRatio, &rec.ContainerClean, &rec.Analysis, &rec.Prompt,
		&rec.OriginalURL, &rec.GeneratedURL, &rec.ThumbnailURL,
		&rec.AnalyzeSeconds, &rec.GenerateSeconds, &rec.TotalSeconds, &rec.CreatedAt)
	if err == pgx.ErrNoRows {
		return Record{}, err
	}
	if err != nil {
		return Record{}, fmt.Errorf("scan generation: %w", err)
	}
	return rec, nil
}
