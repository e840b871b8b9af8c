package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/webhook-ingest/internal/repository"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// InitSchema creates the tables and unique indexes the repositories rely on.
// It is idempotent.
func InitSchema(ctx context.Context, db *pgxpool.Pool) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS folders (
			id BIGSERIAL PRIMARY KEY,
			parent_id BIGINT REFERENCES folders(id),
			kind TEXT NOT NULL CHECK (kind IN ('run', 'platform', 'scrape-iteration')),
			label TEXT NOT NULL,
			scrape_iteration INT CHECK (scrape_iteration > 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK ((kind = 'scrape-iteration') = (scrape_iteration IS NOT NULL))
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS folders_parent_iteration_key
			ON folders (parent_id, scrape_iteration) WHERE scrape_iteration IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS folders_parent_kind_label_key
			ON folders ((COALESCE(parent_id, 0)), kind, label) WHERE kind <> 'scrape-iteration'`,

		`CREATE TABLE IF NOT EXISTS scrape_requests (
			id BIGSERIAL PRIMARY KEY,
			platform TEXT NOT NULL,
			target_url TEXT NOT NULL DEFAULT '',
			target_key TEXT NOT NULL DEFAULT '',
			external_request_id TEXT UNIQUE,
			run_folder_id BIGINT REFERENCES folders(id),
			folder_id BIGINT REFERENCES folders(id),
			scrape_iteration INT,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			items_expected INT,
			items_received INT NOT NULL DEFAULT 0,
			last_error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS scrape_requests_status_target_idx
			ON scrape_requests (status, target_key)`,

		`CREATE TABLE IF NOT EXISTS raw_webhook_events (
			id UUID PRIMARY KEY,
			received_at TIMESTAMPTZ NOT NULL,
			source_ip TEXT NOT NULL DEFAULT '',
			request_uri TEXT NOT NULL DEFAULT '',
			headers_snapshot JSONB NOT NULL DEFAULT '{}',
			raw_body BYTEA NOT NULL,
			parsed_ok BOOLEAN NOT NULL,
			correlated_request_id BIGINT REFERENCES scrape_requests(id),
			processing_error TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS posts (
			id BIGSERIAL PRIMARY KEY,
			platform TEXT NOT NULL,
			natural_key TEXT NOT NULL CHECK (natural_key <> ''),
			external_id TEXT NOT NULL DEFAULT '',
			shortcode TEXT NOT NULL DEFAULT '',
			scrape_request_id BIGINT REFERENCES scrape_requests(id),
			folder_id BIGINT REFERENCES folders(id),
			author_handle TEXT NOT NULL DEFAULT '',
			content_text TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMPTZ,
			like_count BIGINT NOT NULL DEFAULT 0,
			comment_count BIGINT NOT NULL DEFAULT 0,
			share_count BIGINT,
			permalink TEXT NOT NULL DEFAULT '',
			media_refs TEXT[] NOT NULL DEFAULT '{}',
			raw_payload JSON,
			ingested_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS posts_natural_key
			ON posts (platform, (COALESCE(scrape_request_id, 0)), natural_key)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

// translateErr maps driver errors onto the repository sentinels.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %s", repository.ErrConflict, pgErr.ConstraintName)
		case foreignKeyViolation:
			return fmt.Errorf("%w: %s", repository.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}
