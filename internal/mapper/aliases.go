package mapper

import "github.com/user/webhook-ingest/internal/entity"

// fieldTable lists, per canonical attribute, the source paths tried in order.
// Paths are dot-separated walks through nested objects.
type fieldTable struct {
	baseURL string

	externalID  []string
	shortcode   []string
	author      []string
	content     []string
	contentHTML []string
	publishedAt []string
	likes       []string
	comments    []string
	// shares is nil for platforms that never report shares.
	shares    []string
	permalink []string
	media     []string
}

var tables = map[entity.Platform]fieldTable{
	entity.PlatformInstagram: {
		baseURL:     "https://www.instagram.com",
		externalID:  []string{"post_id", "pk", "id"},
		shortcode:   []string{"shortcode", "shortCode", "code"},
		author:      []string{"user_posted", "username", "ownerUsername", "owner.username", "author.name"},
		content:     []string{"description", "caption", "text", "caption.text"},
		publishedAt: []string{"date_posted", "timestamp", "taken_at", "created_at"},
		likes:       []string{"likes", "likesCount", "like_count"},
		comments:    []string{"num_comments", "commentsCount", "comment_count"},
		permalink:   []string{"url", "post_url", "link"},
		media:       []string{"photos", "videos", "images", "displayUrl", "display_url", "thumbnail"},
	},
	entity.PlatformFacebook: {
		baseURL:     "https://www.facebook.com",
		externalID:  []string{"post_id", "postId", "id"},
		shortcode:   []string{"shortcode"},
		author:      []string{"user_username_raw", "page_name", "username", "user.name", "author.name", "pageName"},
		content:     []string{"content", "text", "message", "post_text"},
		contentHTML: []string{"content_html"},
		publishedAt: []string{"date_posted", "time", "timestamp", "created_time"},
		likes:       []string{"likes", "num_likes", "likesCount", "count_reactions_type", "reactions"},
		comments:    []string{"num_comments", "comments", "commentsCount"},
		shares:      []string{"num_shares", "shares", "sharesCount"},
		permalink:   []string{"url", "post_url", "topLevelUrl", "link"},
		media:       []string{"attachments", "post_external_image", "media", "images"},
	},
	entity.PlatformLinkedIn: {
		baseURL:     "https://www.linkedin.com",
		externalID:  []string{"id", "post_id", "urn", "activity_id"},
		author:      []string{"user_id", "author.username", "author.name", "username", "use_url"},
		content:     []string{"post_text", "text", "content", "commentary"},
		contentHTML: []string{"post_text_html", "content_html"},
		publishedAt: []string{"date_posted", "posted_at", "postedAt", "published_at"},
		likes:       []string{"num_likes", "likes", "reactions", "numLikes"},
		comments:    []string{"num_comments", "comments", "numComments"},
		shares:      []string{"num_shares", "reposts", "numShares"},
		permalink:   []string{"url", "post_url", "link"},
		media:       []string{"images", "videos", "document_cover_image", "media"},
	},
	entity.PlatformTikTok: {
		baseURL:     "https://www.tiktok.com",
		externalID:  []string{"post_id", "id", "video_id", "aweme_id"},
		author:      []string{"profile_username", "authorMeta.name", "author.uniqueId", "username"},
		content:     []string{"description", "text", "desc"},
		publishedAt: []string{"create_time", "createTimeISO", "createTime", "date_posted"},
		likes:       []string{"digg_count", "diggCount", "likes"},
		comments:    []string{"comment_count", "commentCount", "num_comments"},
		shares:      []string{"share_count", "shareCount", "num_shares"},
		permalink:   []string{"url", "webVideoUrl", "post_url"},
		media:       []string{"video_url", "preview_image", "covers", "videoMeta.coverUrl"},
	},
}

// signalFields mark an item as a provider error/warning report.
var signalFields = []string{"error_code", "warning_code", "error", "warning"}

// identifyingFields is the union of id-like fields across all platforms.
var identifyingFields = func() []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range tables {
		for _, group := range [][]string{t.externalID, t.shortcode, t.permalink} {
			for _, f := range group {
				if !seen[f] {
					seen[f] = true
					out = append(out, f)
				}
			}
		}
	}
	return out
}()
