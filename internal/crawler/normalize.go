package crawler

import (
	"net/url"
	"strings"
)

// NormalizeURL strips query strings, fragments, and a trailing slash so that
// two URLs referring to the same resource compare equal.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

// sameHost reports whether candidate is under base's host (including
// same-origin subpaths); used to drop externally-redirected responses.
func sameHost(base, candidate *url.URL) bool {
	return strings.EqualFold(base.Hostname(), candidate.Hostname())
}

// underBasePrefix reports whether candidate's path is at or below base's path.
func underBasePrefix(base, candidate *url.URL) bool {
	if !sameHost(base, candidate) {
		return false
	}
	basePath := strings.TrimSuffix(base.Path, "/")
	return strings.HasPrefix(candidate.Path, basePath)
}

// isSkippableLink reports true for link schemes that are never crawlable.
func isSkippableLink(href string) bool {
	for _, prefix := range []string{"mailto:", "tel:", "javascript:", "#"} {
		if strings.HasPrefix(href, prefix) {
			return true
		}
	}
	return false
}
