package repository

import (
	"context"

	"github.com/user/webhook-ingest/internal/entity"
)

// FolderRepository manages the run/platform/scrape-iteration tree.
type FolderRepository interface {
	FindByID(ctx context.Context, id int64) (*entity.Folder, error)
	// FindOrCreate returns the run or platform folder with the given label under
	// parentID, creating it exactly once.
	FindOrCreate(ctx context.Context, parentID *int64, kind entity.FolderKind, label string) (*entity.Folder, error)
	// CreateNextIteration atomically creates the scrape-iteration child numbered
	// max(existing)+1 under the platform folder.
	CreateNextIteration(ctx context.Context, platformFolderID int64, label string) (*entity.Folder, error)
}
