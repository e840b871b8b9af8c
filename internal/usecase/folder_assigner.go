package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/webhook-ingest/internal/entity"
	"github.com/user/webhook-ingest/internal/repository"
	"github.com/user/webhook-ingest/pkg/metrics"
)

// FolderAssigner places a request's posts in the run/platform/iteration tree.
type FolderAssigner interface {
	// AssignFolder returns the scrape-iteration folder of req, creating it on
	// the first call. Callers must hold the request lock.
	AssignFolder(ctx context.Context, req *entity.ScrapeRequest) (int64, error)
	// UnassignedFolder returns the run folder that holds orphaned posts.
	UnassignedFolder(ctx context.Context) (int64, error)
}

type folderAssigner struct {
	folders         repository.FolderRepository
	locker          repository.Locker
	machine         StateMachine
	unassignedLabel string
	logger          *zap.Logger
	now             func() time.Time
}

// NewFolderAssigner creates a FolderAssigner. unassignedLabel names the run
// folder used for orphans and for requests triggered without a run.
func NewFolderAssigner(folders repository.FolderRepository, locker repository.Locker, machine StateMachine, unassignedLabel string, logger *zap.Logger) FolderAssigner {
	return &folderAssigner{
		folders:         folders,
		locker:          locker,
		machine:         machine,
		unassignedLabel: unassignedLabel,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func folderLockKey(platformFolderID int64) string {
	return fmt.Sprintf("folder:%d", platformFolderID)
}

// IterationLabel is the display label of a scrape-iteration folder.
func IterationLabel(platform entity.Platform, at time.Time) string {
	return fmt.Sprintf("%s – %s", platform, at.Format("2006-01-02 15:04"))
}

func (a *folderAssigner) AssignFolder(ctx context.Context, req *entity.ScrapeRequest) (int64, error) {
	if req.FolderID != nil {
		return *req.FolderID, nil
	}

	runID, err := a.runFolder(ctx, req)
	if err != nil {
		return 0, err
	}
	platformFolder, err := a.folders.FindOrCreate(ctx, &runID, entity.FolderKindPlatform, string(req.Platform))
	if err != nil {
		return 0, storeErr("find or create platform folder", err)
	}

	release, err := a.locker.Acquire(ctx, folderLockKey(platformFolder.ID))
	if err != nil {
		return 0, storeErr("lock platform folder", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("failed to release folder lock", zap.Int64("folder_id", platformFolder.ID), zap.Error(err))
		}
	}()

	folder, err := a.folders.CreateNextIteration(ctx, platformFolder.ID, IterationLabel(req.Platform, a.now()))
	if err != nil {
		return 0, storeErr("create scrape-iteration folder", err)
	}
	if err := a.machine.AttachFolder(ctx, req, folder); err != nil {
		return 0, err
	}

	metrics.FolderIterationsCreated.WithLabelValues(string(req.Platform)).Inc()
	a.logger.Info("scrape-iteration folder created",
		zap.Int64("request_id", req.ID),
		zap.Int64("folder_id", folder.ID),
		zap.Int("scrape_iteration", *folder.ScrapeIteration))
	return folder.ID, nil
}

func (a *folderAssigner) runFolder(ctx context.Context, req *entity.ScrapeRequest) (int64, error) {
	if req.RunFolderID != nil {
		return *req.RunFolderID, nil
	}
	a.logger.Warn("request has no run folder, filing under unassigned", zap.Int64("request_id", req.ID))
	return a.UnassignedFolder(ctx)
}

func (a *folderAssigner) UnassignedFolder(ctx context.Context) (int64, error) {
	folder, err := a.folders.FindOrCreate(ctx, nil, entity.FolderKindRun, a.unassignedLabel)
	if err != nil {
		return 0, storeErr("find or create unassigned folder", err)
	}
	return folder.ID, nil
}
