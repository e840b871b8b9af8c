package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/webhook-ingest/internal/entity"
	"github.com/user/webhook-ingest/internal/repository"
	"github.com/user/webhook-ingest/pkg/utils"
)

const requestColumns = `id, platform, target_url, external_request_id, run_folder_id, folder_id, scrape_iteration,
	status, created_at, started_at, completed_at, items_expected, items_received, last_error`

// ScrapeRequestRepoImpl reads and advances scrape requests in PostgreSQL.
type ScrapeRequestRepoImpl struct {
	db *pgxpool.Pool
}

// NewScrapeRequestRepo creates a new instance of ScrapeRequestRepoImpl.
func NewScrapeRequestRepo(db *pgxpool.Pool) *ScrapeRequestRepoImpl {
	return &ScrapeRequestRepoImpl{db: db}
}

func scanRequest(row pgx.Row) (*entity.ScrapeRequest, error) {
	var req entity.ScrapeRequest
	err := row.Scan(
		&req.ID,
		&req.Platform,
		&req.TargetURL,
		&req.ExternalRequestID,
		&req.RunFolderID,
		&req.FolderID,
		&req.ScrapeIteration,
		&req.Status,
		&req.CreatedAt,
		&req.StartedAt,
		&req.CompletedAt,
		&req.ItemsExpected,
		&req.ItemsReceived,
		&req.LastError,
	)
	if err != nil {
		return nil, translateErr(err)
	}
	return &req, nil
}

// Create inserts a request on behalf of the trigger subsystem.
func (r *ScrapeRequestRepoImpl) Create(ctx context.Context, req *entity.ScrapeRequest) error {
	if req.Status == "" {
		req.Status = entity.StatusPending
	}
	query := `
		INSERT INTO scrape_requests (platform, target_url, target_key, external_request_id, run_folder_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at;
	`
	err := r.db.QueryRow(ctx, query,
		req.Platform,
		req.TargetURL,
		utils.NormalizeURL(req.TargetURL),
		req.ExternalRequestID,
		req.RunFolderID,
		req.Status,
	).Scan(&req.ID, &req.CreatedAt)
	return translateErr(err)
}

func (r *ScrapeRequestRepoImpl) FindByID(ctx context.Context, id int64) (*entity.ScrapeRequest, error) {
	return scanRequest(r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM scrape_requests WHERE id = $1`, id))
}

func (r *ScrapeRequestRepoImpl) FindByExternalID(ctx context.Context, externalID string) (*entity.ScrapeRequest, error) {
	return scanRequest(r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM scrape_requests WHERE external_request_id = $1`, externalID))
}

// FindProcessingByTargetURL matches on the normalized target URL.
func (r *ScrapeRequestRepoImpl) FindProcessingByTargetURL(ctx context.Context, targetURL string) (*entity.ScrapeRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM scrape_requests
		WHERE status = 'processing' AND target_key = $1
		ORDER BY started_at DESC NULLS LAST, id DESC
		LIMIT 1`
	return scanRequest(r.db.QueryRow(ctx, query, utils.NormalizeURL(targetURL)))
}

// Update writes every mutable column.
func (r *ScrapeRequestRepoImpl) Update(ctx context.Context, req *entity.ScrapeRequest) error {
	query := `
		UPDATE scrape_requests SET
			external_request_id = $2,
			folder_id = $3,
			scrape_iteration = $4,
			status = $5,
			started_at = $6,
			completed_at = $7,
			items_expected = $8,
			items_received = $9,
			last_error = $10
		WHERE id = $1;
	`
	tag, err := r.db.Exec(ctx, query,
		req.ID,
		req.ExternalRequestID,
		req.FolderID,
		req.ScrapeIteration,
		req.Status,
		req.StartedAt,
		req.CompletedAt,
		req.ItemsExpected,
		req.ItemsReceived,
		req.LastError,
	)
	if err != nil {
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AttachExternalID only fills a null external_request_id.
func (r *ScrapeRequestRepoImpl) AttachExternalID(ctx context.Context, id int64, externalID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE scrape_requests SET external_request_id = $2 WHERE id = $1 AND external_request_id IS NULL`,
		id, externalID)
	if err != nil {
		return translateErr(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM scrape_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
		return translateErr(err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return nil
}
