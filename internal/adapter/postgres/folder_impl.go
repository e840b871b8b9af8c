package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/webhook-ingest/internal/entity"
)

const folderColumns = `id, parent_id, kind, label, scrape_iteration, created_at`

// FolderRepoImpl manages the folder tree in PostgreSQL.
type FolderRepoImpl struct {
	db *pgxpool.Pool
}

// NewFolderRepo creates a new instance of FolderRepoImpl.
func NewFolderRepo(db *pgxpool.Pool) *FolderRepoImpl {
	return &FolderRepoImpl{db: db}
}

func scanFolder(row pgx.Row) (*entity.Folder, error) {
	var f entity.Folder
	if err := row.Scan(&f.ID, &f.ParentID, &f.Kind, &f.Label, &f.ScrapeIteration, &f.CreatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FolderRepoImpl) FindByID(ctx context.Context, id int64) (*entity.Folder, error) {
	folder, err := scanFolder(r.db.QueryRow(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = $1`, id))
	return folder, translateErr(err)
}

// FindOrCreate relies on folders_parent_kind_label_key: concurrent callers
// race on the insert and the loser reads the winner's row.
func (r *FolderRepoImpl) FindOrCreate(ctx context.Context, parentID *int64, kind entity.FolderKind, label string) (*entity.Folder, error) {
	if kind == entity.FolderKindScrapeIteration {
		return nil, fmt.Errorf("scrape-iteration folders are created with CreateNextIteration")
	}

	insert := `
		INSERT INTO folders (parent_id, kind, label)
		VALUES ($1, $2, $3)
		ON CONFLICT ((COALESCE(parent_id, 0)), kind, label) WHERE kind <> 'scrape-iteration' DO NOTHING
		RETURNING ` + folderColumns
	folder, err := scanFolder(r.db.QueryRow(ctx, insert, parentID, kind, label))
	if !errors.Is(err, pgx.ErrNoRows) {
		return folder, translateErr(err)
	}

	query := `SELECT ` + folderColumns + `
		FROM folders
		WHERE COALESCE(parent_id, 0) = COALESCE($1::bigint, 0) AND kind = $2 AND label = $3`
	folder, err = scanFolder(r.db.QueryRow(ctx, query, parentID, kind, label))
	return folder, translateErr(err)
}

// CreateNextIteration locks the platform folder row so that the MAX+1
// computation and the insert are serialized per platform folder.
func (r *FolderRepoImpl) CreateNextIteration(ctx context.Context, platformFolderID int64, label string) (*entity.Folder, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var kind entity.FolderKind
	err = tx.QueryRow(ctx, `SELECT kind FROM folders WHERE id = $1 FOR UPDATE`, platformFolderID).Scan(&kind)
	if err != nil {
		return nil, translateErr(err)
	}
	if kind != entity.FolderKindPlatform {
		return nil, fmt.Errorf("folder %d is a %s folder, not a platform folder", platformFolderID, kind)
	}

	var next int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(scrape_iteration), 0) + 1 FROM folders WHERE parent_id = $1 AND kind = 'scrape-iteration'`,
		platformFolderID,
	).Scan(&next)
	if err != nil {
		return nil, err
	}

	insert := `
		INSERT INTO folders (parent_id, kind, label, scrape_iteration)
		VALUES ($1, 'scrape-iteration', $2, $3)
		RETURNING ` + folderColumns
	folder, err := scanFolder(tx.QueryRow(ctx, insert, platformFolderID, label, next))
	if err != nil {
		return nil, translateErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return folder, nil
}
