package entity

import (
	"encoding/json"
	"time"
)

// Post is the canonical, platform-agnostic record of one scraped item.
type Post struct {
	ID              int64
	Platform        Platform
	NaturalKey      string
	ExternalID      string
	Shortcode       string
	ScrapeRequestID *int64
	FolderID        *int64
	AuthorHandle    string
	ContentText     string
	PublishedAt     *time.Time
	LikeCount       int64
	CommentCount    int64
	ShareCount      *int64
	Permalink       string
	MediaRefs       []string
	RawPayload      json.RawMessage
	IngestedAt      time.Time
}

// Warning is a non-fatal mapping diagnostic for one canonical attribute.
type Warning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// DeriveNaturalKey builds the upsert identity of a post from the first
// non-empty of its external id, shortcode and permalink.
func (p *Post) DeriveNaturalKey() string {
	for _, id := range []string{p.ExternalID, p.Shortcode, p.Permalink} {
		if id != "" {
			return string(p.Platform) + ":" + id
		}
	}
	return ""
}
