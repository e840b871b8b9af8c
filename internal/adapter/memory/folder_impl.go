package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/user/webhook-ingest/internal/entity"
	"github.com/user/webhook-ingest/internal/repository"
)

// FolderRepoImpl keeps the folder tree in memory.
type FolderRepoImpl struct {
	mu      sync.Mutex
	nextID  int64
	folders map[int64]*entity.Folder
}

// NewFolderRepo creates an empty in-memory folder tree.
func NewFolderRepo() *FolderRepoImpl {
	return &FolderRepoImpl{folders: map[int64]*entity.Folder{}}
}

func (r *FolderRepoImpl) FindByID(ctx context.Context, id int64) (*entity.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.folders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneFolder(f), nil
}

func (r *FolderRepoImpl) FindOrCreate(ctx context.Context, parentID *int64, kind entity.FolderKind, label string) (*entity.Folder, error) {
	if kind == entity.FolderKindScrapeIteration {
		return nil, fmt.Errorf("scrape-iteration folders are created with CreateNextIteration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.folders {
		if f.Kind == kind && f.Label == label && sameParent(f.ParentID, parentID) {
			return cloneFolder(f), nil
		}
	}
	if parentID != nil {
		if _, ok := r.folders[*parentID]; !ok {
			return nil, repository.ErrNotFound
		}
	}
	return cloneFolder(r.insert(parentID, kind, label, nil)), nil
}

func (r *FolderRepoImpl) CreateNextIteration(ctx context.Context, platformFolderID int64, label string) (*entity.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.folders[platformFolderID]; !ok {
		return nil, repository.ErrNotFound
	}
	next := 1
	for _, f := range r.folders {
		if f.Kind == entity.FolderKindScrapeIteration && sameParent(f.ParentID, &platformFolderID) && *f.ScrapeIteration >= next {
			next = *f.ScrapeIteration + 1
		}
	}
	return cloneFolder(r.insert(&platformFolderID, entity.FolderKindScrapeIteration, label, &next)), nil
}

// Seed inserts a root run folder, standing in for the trigger subsystem.
func (r *FolderRepoImpl) Seed(label string) *entity.Folder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneFolder(r.insert(nil, entity.FolderKindRun, label, nil))
}

// Children returns the direct children of a folder.
func (r *FolderRepoImpl) Children(parentID int64) []*entity.Folder {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Folder
	for _, f := range r.folders {
		if sameParent(f.ParentID, &parentID) {
			out = append(out, cloneFolder(f))
		}
	}
	return out
}

func (r *FolderRepoImpl) insert(parentID *int64, kind entity.FolderKind, label string, iteration *int) *entity.Folder {
	r.nextID++
	f := &entity.Folder{
		ID:              r.nextID,
		ParentID:        ptrCopy(parentID),
		Kind:            kind,
		Label:           label,
		ScrapeIteration: iteration,
		CreatedAt:       time.Now().UTC(),
	}
	r.folders[f.ID] = f
	return f
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
