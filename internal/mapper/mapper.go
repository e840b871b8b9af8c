// Package mapper converts raw provider items into canonical posts.
//
// Every function here is pure: no I/O, no clock, the same input always maps to
// the same output.
package mapper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/user/webhook-ingest/internal/entity"
	"github.com/user/webhook-ingest/pkg/utils"
)

var (
	// ErrUnmappable is returned for items with no id, shortcode or url.
	ErrUnmappable = errors.New("item has no identifying field")
	// ErrUnknownPlatform is returned when no alias table exists for the platform.
	ErrUnknownPlatform = errors.New("unknown platform")
)

// Map converts one raw item into a canonical Post. Type problems in individual
// attributes surface as warnings; only a missing identity is an error.
func Map(platform entity.Platform, rawItem map[string]any) (entity.Post, []entity.Warning, error) {
	table, ok := tables[platform]
	if !ok {
		return entity.Post{}, nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}

	var warnings []entity.Warning
	warn := func(field, format string, args ...any) {
		warnings = append(warnings, entity.Warning{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	post := entity.Post{
		Platform:     platform,
		ExternalID:   firstString(rawItem, table.externalID),
		Shortcode:    firstString(rawItem, table.shortcode),
		AuthorHandle: strings.TrimPrefix(firstString(rawItem, table.author), "@"),
	}

	post.Permalink = normalizePermalink(table, rawItem, post.Shortcode, warn)
	if post.ExternalID == "" && post.Shortcode == "" && post.Permalink == "" {
		return entity.Post{}, nil, ErrUnmappable
	}
	post.NaturalKey = post.DeriveNaturalKey()

	post.ContentText = firstString(rawItem, table.content)
	if post.ContentText == "" {
		if html := firstString(rawItem, table.contentHTML); html != "" {
			text, err := htmlToText(html)
			if err != nil {
				warn("content_text", "could not strip html: %v", err)
				text = html
			}
			post.ContentText = text
		}
	}

	if v, alias, ok := firstValue(rawItem, table.publishedAt); ok {
		ts, err := coerceTime(v)
		if err != nil {
			warn("published_at", "%s: %v", alias, err)
		} else {
			post.PublishedAt = &ts
		}
	}

	post.LikeCount = countField(rawItem, table.likes, "like_count", warn)
	post.CommentCount = countField(rawItem, table.comments, "comment_count", warn)
	if table.shares != nil {
		if _, _, ok := firstValue(rawItem, table.shares); ok {
			n := countField(rawItem, table.shares, "share_count", warn)
			post.ShareCount = &n
		}
	}

	seen := map[string]bool{}
	for _, alias := range table.media {
		if v, ok := lookup(rawItem, alias); ok {
			post.MediaRefs = collectURLs(v, post.MediaRefs, seen)
		}
	}

	raw, err := json.Marshal(rawItem)
	if err != nil {
		warn("raw_payload", "could not re-encode item: %v", err)
	}
	post.RawPayload = raw

	return post, warnings, nil
}

// MapRaw decodes a verbatim JSON item and maps it, preserving the original
// bytes as the post's raw payload.
func MapRaw(platform entity.Platform, raw json.RawMessage) (entity.Post, []entity.Warning, error) {
	item, err := DecodeItem(raw)
	if err != nil {
		return entity.Post{}, nil, err
	}
	post, warnings, err := Map(platform, item)
	if err != nil {
		return post, warnings, err
	}
	post.RawPayload = append(json.RawMessage(nil), raw...)
	return post, warnings, nil
}

// DecodeItem decodes one JSON object keeping numbers as json.Number.
func DecodeItem(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var item map[string]any
	if err := dec.Decode(&item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("decode item: not an object")
	}
	return item, nil
}

// DetectPlatform guesses an item's platform from its own fields.
func DetectPlatform(item map[string]any) (entity.Platform, bool) {
	if p, ok := entity.ParsePlatform(firstString(item, []string{"platform", "source"})); ok {
		return p, true
	}
	for _, key := range []string{"url", "post_url", "webVideoUrl", "topLevelUrl", "input.url"} {
		if p, ok := entity.PlatformFromURL(firstString(item, []string{key})); ok {
			return p, true
		}
	}
	return "", false
}

// SignalCode reports whether an item is a provider error/warning report rather
// than a post, returning its code. Such items carry a signal field and none of
// the identifying fields.
func SignalCode(item map[string]any) (string, bool) {
	if firstString(item, identifyingFields) != "" {
		return "", false
	}
	for _, field := range signalFields {
		v, ok := lookup(item, field)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s, true
			}
		case bool:
			if t {
				return field, true
			}
		case map[string]any:
			if code := firstString(t, []string{"code", "type", "message"}); code != "" {
				return code, true
			}
		}
	}
	return "", false
}

// InputURL returns the target URL the provider echoes back in `input.url`.
func InputURL(item map[string]any) string {
	return firstString(item, []string{"input.url", "input_url", "discovery_input.url"})
}

func countField(item map[string]any, aliases []string, field string, warn func(string, string, ...any)) int64 {
	v, alias, ok := firstValue(item, aliases)
	if !ok {
		return 0
	}
	n, err := coerceCount(v)
	if err != nil {
		warn(field, "%s: %v", alias, err)
		return 0
	}
	return n
}

func normalizePermalink(table fieldTable, item map[string]any, shortcode string, warn func(string, string, ...any)) string {
	raw := firstString(item, table.permalink)
	if raw == "" {
		if shortcode != "" && table.baseURL == "https://www.instagram.com" {
			return table.baseURL + "/p/" + shortcode + "/"
		}
		return ""
	}
	base, _ := url.Parse(table.baseURL)
	if !strings.Contains(raw, "://") && !strings.HasPrefix(raw, "/") {
		raw = "https://" + raw
	}
	abs, err := utils.ToAbsoluteURL(base, raw)
	if err != nil {
		warn("permalink", "invalid url %q: %v", raw, err)
		return ""
	}
	return abs
}

// FirstString returns the first non-empty scalar found under the given paths.
func FirstString(item map[string]any, paths ...string) string {
	return firstString(item, paths)
}

// HasIdentity reports whether an object carries any post-identifying field.
func HasIdentity(item map[string]any) bool {
	return firstString(item, identifyingFields) != ""
}
