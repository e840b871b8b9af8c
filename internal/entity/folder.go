package entity

import "time"

// FolderKind is the level of a folder in the run/platform/iteration tree.
type FolderKind string

const (
	FolderKindRun             FolderKind = "run"
	FolderKindPlatform        FolderKind = "platform"
	FolderKindScrapeIteration FolderKind = "scrape-iteration"
)

// Folder mirrors the `folders` table.
type Folder struct {
	ID       int64
	ParentID *int64
	Kind     FolderKind
	Label    string
	// ScrapeIteration is set only on scrape-iteration folders.
	ScrapeIteration *int
	CreatedAt       time.Time
}
