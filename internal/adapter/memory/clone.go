// Package memory holds in-process implementations of the repository
// interfaces. They enforce the same uniqueness rules as the Postgres schema.
package memory

import (
	"github.com/user/webhook-ingest/internal/entity"
)

func ptrCopy[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneRequest(r *entity.ScrapeRequest) *entity.ScrapeRequest {
	c := *r
	c.ExternalRequestID = ptrCopy(r.ExternalRequestID)
	c.RunFolderID = ptrCopy(r.RunFolderID)
	c.FolderID = ptrCopy(r.FolderID)
	c.ScrapeIteration = ptrCopy(r.ScrapeIteration)
	c.StartedAt = ptrCopy(r.StartedAt)
	c.CompletedAt = ptrCopy(r.CompletedAt)
	c.ItemsExpected = ptrCopy(r.ItemsExpected)
	c.LastError = ptrCopy(r.LastError)
	return &c
}

func clonePost(p *entity.Post) *entity.Post {
	c := *p
	c.ScrapeRequestID = ptrCopy(p.ScrapeRequestID)
	c.FolderID = ptrCopy(p.FolderID)
	c.PublishedAt = ptrCopy(p.PublishedAt)
	c.ShareCount = ptrCopy(p.ShareCount)
	c.MediaRefs = append([]string(nil), p.MediaRefs...)
	c.RawPayload = append([]byte(nil), p.RawPayload...)
	return &c
}

func cloneFolder(f *entity.Folder) *entity.Folder {
	c := *f
	c.ParentID = ptrCopy(f.ParentID)
	c.ScrapeIteration = ptrCopy(f.ScrapeIteration)
	return &c
}

func cloneRawEvent(e *entity.RawWebhookEvent) *entity.RawWebhookEvent {
	c := *e
	c.RawBody = append([]byte(nil), e.RawBody...)
	c.CorrelatedRequestID = ptrCopy(e.CorrelatedRequestID)
	c.ProcessingError = ptrCopy(e.ProcessingError)
	c.HeadersSnapshot = make(map[string]string, len(e.HeadersSnapshot))
	for k, v := range e.HeadersSnapshot {
		c.HeadersSnapshot[k] = v
	}
	return &c
}
