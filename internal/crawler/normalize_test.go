package crawler

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL_StripsQueryFragmentAndTrailingSlash(t *testing.T) {
	norm, err := NormalizeURL("https://docs.example.com/guide/?utm=1#section")
	require.NoError(t, err)
	assert.Equal(t, "https://docs.example.com/guide", norm)
}

func TestNormalizeURL_TwoEquivalentURLsMatch(t *testing.T) {
	a, err := NormalizeURL("https://docs.example.com/guide/")
	require.NoError(t, err)
	b, err := NormalizeURL("https://docs.example.com/guide?ref=nav")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUnderBasePrefix_SameHostSubpath(t *testing.T) {
	base, _ := url.Parse("https://docs.example.com/guide")
	candidate, _ := url.Parse("https://docs.example.com/guide/install")
	assert.True(t, underBasePrefix(base, candidate))
}

func TestUnderBasePrefix_DifferentHostRejected(t *testing.T) {
	base, _ := url.Parse("https://docs.example.com/guide")
	candidate, _ := url.Parse("https://evil.example.com/guide")
	assert.False(t, underBasePrefix(base, candidate))
}

func TestIsSkippableLink(t *testing.T) {
	cases := map[string]bool{
		"mailto:hi@example.com": true,
		"tel:+15551234":         true,
		"javascript:void(0)":    true,
		"#top":                  true,
		"/guide/install":        false,
		"https://example.com":   false,
	}
	for href, want := range cases {
		assert.Equal(t, want, isSkippableLink(href), "href=%q", href)
	}
}
