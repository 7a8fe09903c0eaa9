package crawler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchRobotsPolicy_ParsesDisallowRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private/\nSitemap: https://example.com/sitemap.xml\n"))
	}))
	defer srv.Close()

	base, err := url.Parse(srv.URL)
	require.NoError(t, err)

	policy := fetchRobotsPolicy(srv.Client(), base, UserAgent)
	assert.False(t, policy.canFetch(srv.URL+"/private/secret"))
	assert.True(t, policy.canFetch(srv.URL+"/public/page"))
	assert.Equal(t, []string{"https://example.com/sitemap.xml"}, policy.sitemapHints())
}

func TestFetchRobotsPolicy_UnreachableAllowsEverything(t *testing.T) {
	base, _ := url.Parse("http://127.0.0.1:1")
	policy := fetchRobotsPolicy(http.DefaultClient, base, UserAgent)
	assert.True(t, policy.canFetch("http://127.0.0.1:1/anything"))
	assert.Nil(t, policy.sitemapHints())
}

func TestFetchRobotsPolicy_404TreatedAsUnrestricted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	base, err := url.Parse(srv.URL)
	require.NoError(t, err)

	policy := fetchRobotsPolicy(srv.Client(), base, UserAgent)
	assert.True(t, policy.canFetch(srv.URL+"/anything"))
}
