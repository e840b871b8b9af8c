package entity

import (
	"net/url"
	"strings"
)

// Platform identifies the social network a scraped item came from.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTikTok    Platform = "tiktok"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{PlatformInstagram, PlatformFacebook, PlatformLinkedIn, PlatformTikTok}

// ParsePlatform returns the platform named by s, case-insensitively.
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// PlatformFromURL detects the platform from the host of a post or profile URL.
func PlatformFromURL(raw string) (Platform, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	switch {
	case host == "instagram.com" || strings.HasSuffix(host, ".instagram.com") || host == "instagr.am":
		return PlatformInstagram, true
	case host == "facebook.com" || strings.HasSuffix(host, ".facebook.com") || host == "fb.com" || host == "fb.watch":
		return PlatformFacebook, true
	case host == "linkedin.com" || strings.HasSuffix(host, ".linkedin.com") || host == "lnkd.in":
		return PlatformLinkedIn, true
	case host == "tiktok.com" || strings.HasSuffix(host, ".tiktok.com"):
		return PlatformTikTok, true
	}
	return "", false
}
