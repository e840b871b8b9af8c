package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/webhook-ingest/internal/entity"
	"github.com/user/webhook-ingest/internal/repository"
)

// PostRepoImpl upserts canonical posts in PostgreSQL.
type PostRepoImpl struct {
	db *pgxpool.Pool
}

// NewPostRepo creates a new instance of PostRepoImpl.
func NewPostRepo(db *pgxpool.Pool) *PostRepoImpl {
	return &PostRepoImpl{db: db}
}

// upsertPostQuery keys on the posts_natural_key index. xmax is zero only for
// a freshly inserted row version, which tells inserts from updates.
const upsertPostQuery = `
	INSERT INTO posts (
		platform, natural_key, external_id, shortcode, scrape_request_id, folder_id,
		author_handle, content_text, published_at, like_count, comment_count, share_count,
		permalink, media_refs, raw_payload
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (platform, (COALESCE(scrape_request_id, 0)), natural_key) DO UPDATE SET
		external_id = EXCLUDED.external_id,
		shortcode = EXCLUDED.shortcode,
		folder_id = COALESCE(EXCLUDED.folder_id, posts.folder_id),
		author_handle = EXCLUDED.author_handle,
		content_text = EXCLUDED.content_text,
		published_at = EXCLUDED.published_at,
		like_count = EXCLUDED.like_count,
		comment_count = EXCLUDED.comment_count,
		share_count = EXCLUDED.share_count,
		permalink = EXCLUDED.permalink,
		media_refs = EXCLUDED.media_refs,
		raw_payload = EXCLUDED.raw_payload,
		updated_at = NOW()
	RETURNING id, ingested_at, (xmax = 0) AS inserted;
`

// UpsertBatch runs the whole batch in one transaction with a savepoint per
// item, so a rejected item rolls back alone.
func (r *PostRepoImpl) UpsertBatch(ctx context.Context, posts []*entity.Post) ([]repository.UpsertOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	outcomes := make([]repository.UpsertOutcome, len(posts))
	for i, p := range posts {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return nil, err
		}

		mediaRefs := p.MediaRefs
		if mediaRefs == nil {
			mediaRefs = []string{}
		}
		var rawPayload []byte
		if len(p.RawPayload) > 0 {
			rawPayload = p.RawPayload
		}

		err = sp.QueryRow(ctx, upsertPostQuery,
			p.Platform,
			p.NaturalKey,
			p.ExternalID,
			p.Shortcode,
			p.ScrapeRequestID,
			p.FolderID,
			p.AuthorHandle,
			p.ContentText,
			p.PublishedAt,
			p.LikeCount,
			p.CommentCount,
			p.ShareCount,
			p.Permalink,
			mediaRefs,
			rawPayload,
		).Scan(&p.ID, &p.IngestedAt, &outcomes[i].Inserted)
		if err != nil {
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) {
				// Not a statement-level rejection: the connection itself failed.
				return nil, err
			}
			if rbErr := sp.Rollback(ctx); rbErr != nil {
				return nil, rbErr
			}
			outcomes[i].Err = fmt.Errorf("upsert %s: %w", p.NaturalKey, translateErr(err))
			continue
		}
		if err := sp.Commit(ctx); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return outcomes, nil
}
