package mapper

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/webhook-ingest/internal/entity"
)

func TestMap_InstagramBrightDataItem(t *testing.T) {
	item := map[string]any{
		"post_id":      "3301",
		"shortcode":    "C5abc",
		"user_posted":  "@nasa",
		"description":  "Launch day",
		"date_posted":  "2024-05-01T10:00:00.000Z",
		"likes":        "1,234",
		"num_comments": 12,
		"url":          "https://www.instagram.com/p/C5abc/",
		"photos":       []any{"https://cdn/1.jpg", "https://cdn/2.jpg", "https://cdn/1.jpg"},
	}

	post, warnings, err := Map(entity.PlatformInstagram, item)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "instagram:3301", post.NaturalKey)
	assert.Equal(t, "nasa", post.AuthorHandle)
	assert.Equal(t, "Launch day", post.ContentText)
	assert.Equal(t, int64(1234), post.LikeCount)
	assert.Equal(t, int64(12), post.CommentCount)
	assert.Nil(t, post.ShareCount, "instagram never reports shares")
	assert.Equal(t, "https://www.instagram.com/p/C5abc/", post.Permalink)
	assert.Equal(t, []string{"https://cdn/1.jpg", "https://cdn/2.jpg"}, post.MediaRefs)
	require.NotNil(t, post.PublishedAt)
	assert.True(t, post.PublishedAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	assert.NotEmpty(t, post.RawPayload)
}

func TestMap_AliasPriority(t *testing.T) {
	item := map[string]any{
		"id":            "apify-1",
		"ownerUsername": "second",
		"username":      "first",
		"caption":       "",
		"text":          "fallback text",
	}
	post, _, err := Map(entity.PlatformInstagram, item)
	require.NoError(t, err)
	assert.Equal(t, "first", post.AuthorHandle, "username precedes ownerUsername")
	assert.Equal(t, "fallback text", post.ContentText, "empty aliases are skipped")
	assert.Equal(t, "instagram:apify-1", post.NaturalKey)
}

func TestMap_NumericCoercion(t *testing.T) {
	tests := []struct {
		name     string
		likes    any
		want     int64
		warnings int
	}{
		{"object with num", map[string]any{"type": "Like", "num": 265}, 265, 0},
		{"array of reactions", []any{map[string]any{"type": "Like", "num": 10}, map[string]any{"type": "Love", "num": 5}}, 15, 0},
		{"suffixed string", "1.2K", 1200, 0},
		{"json number", json.Number("42"), 42, 0},
		{"garbage string", "lots", 0, 1},
		{"boolean", true, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := map[string]any{"post_id": "fb1", "likes": tt.likes}
			post, warnings, err := Map(entity.PlatformFacebook, item)
			require.NoError(t, err, "coercion failures never error")
			assert.Equal(t, tt.want, post.LikeCount)
			assert.Len(t, warnings, tt.warnings)
			if tt.warnings > 0 {
				assert.Equal(t, "like_count", warnings[0].Field)
			}
		})
	}
}

func TestMap_UnparsableDateIsWarning(t *testing.T) {
	post, warnings, err := Map(entity.PlatformFacebook, map[string]any{
		"post_id":     "fb2",
		"date_posted": "yesterday-ish",
	})
	require.NoError(t, err)
	assert.Nil(t, post.PublishedAt)
	require.Len(t, warnings, 1)
	assert.Equal(t, "published_at", warnings[0].Field)
}

func TestMap_UnixTimestamps(t *testing.T) {
	post, _, err := Map(entity.PlatformTikTok, map[string]any{
		"id":          "7300",
		"create_time": json.Number("1714557600"),
		"digg_count":  json.Number("99"),
		"share_count": "3",
		"url":         "https://www.tiktok.com/@a/video/7300",
	})
	require.NoError(t, err)
	require.NotNil(t, post.PublishedAt)
	assert.Equal(t, "2024-05-01T10:00:00Z", post.PublishedAt.Format(time.RFC3339))
	assert.Equal(t, int64(99), post.LikeCount)
	require.NotNil(t, post.ShareCount)
	assert.Equal(t, int64(3), *post.ShareCount)

	post, _, err = Map(entity.PlatformTikTok, map[string]any{
		"id":          "7301",
		"create_time": json.Number("1714557600000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T10:00:00Z", post.PublishedAt.Format(time.RFC3339), "milliseconds are detected")
}

func TestMap_NoIdentityIsUnmappable(t *testing.T) {
	_, _, err := Map(entity.PlatformLinkedIn, map[string]any{"post_text": "orphan text", "num_likes": 3})
	assert.ErrorIs(t, err, ErrUnmappable)
}

func TestMap_UnknownPlatform(t *testing.T) {
	_, _, err := Map(entity.Platform("myspace"), map[string]any{"id": "1"})
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestMap_NaturalKeyStableAcrossCountChanges(t *testing.T) {
	for _, platform := range entity.Platforms {
		t.Run(string(platform), func(t *testing.T) {
			first, _, err := Map(platform, map[string]any{"post_id": "p1", "likes": 1, "num_comments": 1, "url": "https://example.com/p1"})
			require.NoError(t, err)
			second, _, err := Map(platform, map[string]any{"post_id": "p1", "likes": 500, "num_comments": 40, "url": "https://example.com/p1"})
			require.NoError(t, err)
			assert.Equal(t, first.NaturalKey, second.NaturalKey)
			assert.Equal(t, string(platform)+":p1", first.NaturalKey)
		})
	}
}

func TestMap_PermalinkNormalisation(t *testing.T) {
	post, _, err := Map(entity.PlatformInstagram, map[string]any{"shortcode": "C9z"})
	require.NoError(t, err)
	assert.Equal(t, "https://www.instagram.com/p/C9z/", post.Permalink)
	assert.Equal(t, "instagram:C9z", post.NaturalKey)

	post, _, err = Map(entity.PlatformFacebook, map[string]any{"url": "/nasa/posts/123"})
	require.NoError(t, err)
	assert.Equal(t, "https://www.facebook.com/nasa/posts/123", post.Permalink)
	assert.Equal(t, "facebook:https://www.facebook.com/nasa/posts/123", post.NaturalKey)

	post, _, err = Map(entity.PlatformLinkedIn, map[string]any{"url": "linkedin.com/posts/abc"})
	require.NoError(t, err)
	assert.Equal(t, "https://linkedin.com/posts/abc", post.Permalink)
}

func TestMap_LinkedInHTMLContent(t *testing.T) {
	post, warnings, err := Map(entity.PlatformLinkedIn, map[string]any{
		"id":             "urn:li:activity:1",
		"post_text_html": "<p>Hello <b>world</b><br>second   line</p><script>x()</script>",
		"author":         map[string]any{"name": "Jane Doe"},
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "Hello world\nsecond line", post.ContentText)
	assert.Equal(t, "Jane Doe", post.AuthorHandle)
}

func TestMap_MediaObjects(t *testing.T) {
	post, _, err := Map(entity.PlatformFacebook, map[string]any{
		"post_id": "fb3",
		"attachments": []any{
			map[string]any{"type": "Photo", "url": "https://cdn/a.jpg"},
			map[string]any{"type": "Video", "video_url": "https://cdn/b.mp4"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/a.jpg", "https://cdn/b.mp4"}, post.MediaRefs)
}

func TestMap_IsDeterministic(t *testing.T) {
	item := map[string]any{"post_id": "d1", "likes": "7", "date_posted": "2024-01-02"}
	a, wa, errA := Map(entity.PlatformInstagram, item)
	b, wb, errB := Map(entity.PlatformInstagram, item)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
	assert.Equal(t, wa, wb)
}

func TestMapRaw_PreservesOriginalBytes(t *testing.T) {
	raw := json.RawMessage(`{"post_id": "r1",   "likes": 3}`)
	post, _, err := MapRaw(entity.PlatformInstagram, raw)
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(post.RawPayload))
	assert.Equal(t, int64(3), post.LikeCount)

	_, _, err = MapRaw(entity.PlatformInstagram, json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestSignalCode(t *testing.T) {
	tests := []struct {
		name string
		item map[string]any
		code string
		ok   bool
	}{
		{"dead page", map[string]any{"error": "Page not found", "error_code": "dead_page", "input": map[string]any{"url": "https://instagram.com/x"}}, "dead_page", true},
		{"warning only", map[string]any{"warning_code": "discovery_error"}, "discovery_error", true},
		{"post carrying a warning", map[string]any{"post_id": "1", "warning": "partial"}, "", false},
		{"false flag", map[string]any{"error": false}, "", false},
		{"plain post", map[string]any{"post_id": "1"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := SignalCode(tt.item)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestDetectPlatform(t *testing.T) {
	p, ok := DetectPlatform(map[string]any{"url": "https://www.tiktok.com/@x/video/1"})
	assert.True(t, ok)
	assert.Equal(t, entity.PlatformTikTok, p)

	p, ok = DetectPlatform(map[string]any{"platform": "LinkedIn"})
	assert.True(t, ok)
	assert.Equal(t, entity.PlatformLinkedIn, p)

	p, ok = DetectPlatform(map[string]any{"input": map[string]any{"url": "https://m.facebook.com/page"}})
	assert.True(t, ok)
	assert.Equal(t, entity.PlatformFacebook, p)

	_, ok = DetectPlatform(map[string]any{"url": "https://example.com"})
	assert.False(t, ok)
}
