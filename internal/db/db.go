// Package db provides storage for generated brochures.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/company-brochure/internal/types"
)

// ArtifactStore persists brochure artifacts for the export collaborator.
type ArtifactStore interface {
	SaveBrochure(ctx context.Context, artifact *types.BrochureArtifact) error
	// GetBrochure returns nil, nil when no brochure has the id.
	GetBrochure(ctx context.Context, id uuid.UUID) (*types.BrochureArtifact, error)
	// ListBrochures returns summaries, newest first.
	ListBrochures(ctx context.Context, company string, limit int) ([]BrochureSummary, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS brochures (
	id            UUID PRIMARY KEY,
	company_name  TEXT NOT NULL,
	base_url      TEXT NOT NULL,
	model         TEXT NOT NULL,
	tone          TEXT NOT NULL,
	text_content  TEXT NOT NULL,
	partial       BOOLEAN NOT NULL DEFAULT FALSE,
	request       JSONB NOT NULL,
	generated_at  TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS brochures_company_idx ON brochures (company_name, generated_at DESC);
`

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// EnsureSchema creates the brochures table if it does not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveBrochure upserts an artifact keyed by its session id.
func (db *DB) SaveBrochure(ctx context.Context, artifact *types.BrochureArtifact) error {
	requestJSON, err := json.Marshal(artifact.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO brochures (id, company_name, base_url, model, tone, text_content, partial, request, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET text_content = $6, partial = $7, request = $8, generated_at = $9`,
		artifact.SessionID,
		artifact.Request.CompanyName,
		artifact.Request.BaseURL,
		string(artifact.Request.Model),
		string(artifact.Request.Tone),
		artifact.Text,
		artifact.Partial,
		requestJSON,
		artifact.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save brochure %s: %w", artifact.SessionID, err)
	}
	return nil
}

// GetBrochure retrieves a brochure by session id
func (db *DB) GetBrochure(ctx context.Context, id uuid.UUID) (*types.BrochureArtifact, error) {
	var artifact types.BrochureArtifact
	var requestJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, text_content, partial, request, generated_at FROM brochures WHERE id = $1`,
		id,
	).Scan(&artifact.SessionID, &artifact.Text, &artifact.Partial, &requestJSON, &artifact.GeneratedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get brochure: %w", err)
	}
	if err := json.Unmarshal(requestJSON, &artifact.Request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal brochure request: %w", err)
	}
	artifact.GeneratedAt = artifact.GeneratedAt.UTC()
	return &artifact, nil
}

// BrochureSummary is a listing row without the brochure text.
type BrochureSummary struct {
	ID          uuid.UUID `json:"id"`
	CompanyName string    `json:"company_name"`
	Model       string    `json:"model"`
	Tone        string    `json:"tone"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ListBrochures returns the most recent brochures for a company, or for
// every company when company is empty.
func (db *DB) ListBrochures(ctx context.Context, company string, limit int) ([]BrochureSummary, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, company_name, model, tone, generated_at FROM brochures
		 WHERE $1 = '' OR company_name = $1
		 ORDER BY generated_at DESC LIMIT $2`,
		company, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list brochures: %w", err)
	}
	defer rows.Close()

	var out []BrochureSummary
	for rows.Next() {
		var s BrochureSummary
		if err := rows.Scan(&s.ID, &s.CompanyName, &s.Model, &s.Tone, &s.GeneratedAt); err != nil {
			return nil, fmt.Errorf("failed to scan brochure: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var _ ArtifactStore = (*DB)(nil)
