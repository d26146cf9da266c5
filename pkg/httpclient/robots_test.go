package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRobotsServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/robots.txt", r.URL.Path)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestRobotsAllowDisallowPrecedence(t *testing.T) {
	// The longest matching rule wins, regardless of order.
	server := newRobotsServer(t, http.StatusOK, `
User-agent: *
Disallow: /shop/
Allow: /shop/public/
`)
	defer server.Close()

	cache := NewRobotsCache(server.Client())
	ctx := context.Background()

	assert.False(t, cache.IsAllowed(ctx, "CloverBot/0.1", server.URL+"/shop/secret"))
	assert.True(t, cache.IsAllowed(ctx, "CloverBot/0.1", server.URL+"/shop/public/item"))
	assert.True(t, cache.IsAllowed(ctx, "CloverBot/0.1", server.URL+"/about"))
}

func TestRobotsAgentGroupMatching(t *testing.T) {
	server := newRobotsServer(t, http.StatusOK, `
User-agent: cloverbot
Disallow: /

User-agent: *
Disallow: /checkout/
`)
	defer server.Close()

	cache := NewRobotsCache(server.Client())
	ctx := context.Background()

	// The specific group beats the wildcard for a matching agent.
	assert.False(t, cache.IsAllowed(ctx, "CloverBot/0.1 (+contact@example.com)", server.URL+"/products/1"))

	assert.True(t, cache.IsAllowed(ctx, "OtherBot/2.0", server.URL+"/products/1"))
	assert.False(t, cache.IsAllowed(ctx, "OtherBot/2.0", server.URL+"/checkout/pay"))
}

func TestRobotsMissingFileAllowsEverything(t *testing.T) {
	server := newRobotsServer(t, http.StatusNotFound, "not here")
	defer server.Close()

	cache := NewRobotsCache(server.Client())
	assert.True(t, cache.IsAllowed(context.Background(), "CloverBot/0.1", server.URL+"/anything"))
}

func TestRobotsUnreadableFileDisallows(t *testing.T) {
	server := newRobotsServer(t, http.StatusServiceUnavailable, "")
	defer server.Close()

	cache := NewRobotsCache(server.Client())
	assert.False(t, cache.IsAllowed(context.Background(), "CloverBot/0.1", server.URL+"/anything"))
}

func TestRobotsUnreachableHostDisallows(t *testing.T) {
	server := newRobotsServer(t, http.StatusOK, "User-agent: *\nDisallow:\n")
	server.Close()

	cache := NewRobotsCache(http.DefaultClient)
	assert.False(t, cache.IsAllowed(context.Background(), "CloverBot/0.1", server.URL+"/anything"))
}

func TestRobotsEmptyDisallowAllows(t *testing.T) {
	server := newRobotsServer(t, http.StatusOK, `
User-agent: *
Disallow:
`)
	defer server.Close()

	cache := NewRobotsCache(server.Client())
	assert.True(t, cache.IsAllowed(context.Background(), "CloverBot/0.1", server.URL+"/anything"))
}

func TestParseRobotsCommentsAndGroups(t *testing.T) {
	rules := parseRobots(`
# storefront crawl policy
User-agent: one
User-agent: two
Disallow: /a/ # trailing comment

User-agent: three
Allow: /b/
`)

	assert.Len(t, rules.groups["one"], 1)
	assert.Len(t, rules.groups["two"], 1)
	assert.Equal(t, "/a/", rules.groups["one"][0].path)
	assert.False(t, rules.groups["one"][0].allow)
	require.Len(t, rules.groups["three"], 1)
	assert.True(t, rules.groups["three"][0].allow)
}
