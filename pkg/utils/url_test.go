package utils

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAbsoluteURL(t *testing.T) {
	base, err := url.Parse("https://www.instagram.com")
	require.NoError(t, err)

	abs, err := ToAbsoluteURL(base, "/p/Cx1/")
	require.NoError(t, err)
	assert.Equal(t, "https://www.instagram.com/p/Cx1/", abs)

	abs, err = ToAbsoluteURL(base, "https://www.tiktok.com/@a/video/1")
	require.NoError(t, err)
	assert.Equal(t, "https://www.tiktok.com/@a/video/1", abs)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.instagram.com/nasa/", "instagram.com/nasa"},
		{"http://Instagram.com/nasa?hl=en#top", "instagram.com/nasa"},
		{"instagram.com/nasa", "instagram.com/nasa"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeURL(tt.in), tt.in)
	}
}

func TestHashKeyIsStable(t *testing.T) {
	assert.Equal(t, HashKey("scrape_request:42"), HashKey("scrape_request:42"))
	assert.NotEqual(t, HashKey("scrape_request:42"), HashKey("scrape_request:43"))
}
