package httpclient

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// robotsRules holds the parsed rules for one host.
type robotsRules struct {
	// groups maps a lowercased user-agent token to its path rules.
	groups map[string][]robotsRule
	// failed marks hosts whose robots.txt could not be read; those are
	// treated as disallowed, matching the conservative session behavior.
	failed bool
}

type robotsRule struct {
	path  string
	allow bool
}

// RobotsCache fetches and caches robots.txt rules per host.
type RobotsCache struct {
	client *http.Client
	cache  map[string]*robotsRules
	mu     sync.Mutex
}

// NewRobotsCache creates a robots cache backed by the given client.
func NewRobotsCache(client *http.Client) *RobotsCache {
	return &RobotsCache{
		client: client,
		cache:  make(map[string]*robotsRules),
	}
}

// IsAllowed reports whether the user agent may fetch the URL. Hosts without
// a readable robots.txt are treated as disallowed.
func (c *RobotsCache) IsAllowed(ctx context.Context, userAgent, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	base := parsed.Scheme + "://" + parsed.Host

	c.mu.Lock()
	rules, ok := c.cache[base]
	c.mu.Unlock()

	if !ok {
		rules = c.fetch(ctx, base)
		c.mu.Lock()
		c.cache[base] = rules
		c.mu.Unlock()
	}

	if rules.failed {
		return false
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}

	group := rules.matchGroup(userAgent)
	return allowedByGroup(group, path)
}

func (c *RobotsCache) fetch(ctx context.Context, base string) *robotsRules {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/robots.txt", nil)
	if err != nil {
		return &robotsRules{failed: true}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &robotsRules{failed: true}
	}
	defer resp.Body.Close()

	// Missing robots.txt means everything is allowed.
	if resp.StatusCode == http.StatusNotFound {
		return &robotsRules{groups: map[string][]robotsRule{}}
	}
	if resp.StatusCode != http.StatusOK {
		return &robotsRules{failed: true}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return &robotsRules{failed: true}
	}

	return parseRobots(string(body))
}

func parseRobots(content string) *robotsRules {
	rules := &robotsRules{groups: make(map[string][]robotsRule)}

	var currentAgents []string
	sawRule := false

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			if sawRule {
				currentAgents = nil
				sawRule = false
			}
			currentAgents = append(currentAgents, strings.ToLower(value))
		case "allow", "disallow":
			sawRule = true
			if value == "" && key == "disallow" {
				// "Disallow:" with no path allows everything.
				continue
			}
			for _, agent := range currentAgents {
				rules.groups[agent] = append(rules.groups[agent], robotsRule{
					path:  value,
					allow: key == "allow",
				})
			}
		}
	}

	return rules
}

// matchGroup returns the rules for the longest user-agent token contained in
// the given agent string, falling back to the wildcard group.
func (r *robotsRules) matchGroup(userAgent string) []robotsRule {
	ua := strings.ToLower(userAgent)

	var best string
	for agent := range r.groups {
		if agent == "*" {
			continue
		}
		if strings.Contains(ua, agent) && len(agent) > len(best) {
			best = agent
		}
	}
	if best != "" {
		return r.groups[best]
	}
	return r.groups["*"]
}

// allowedByGroup applies longest-match precedence across allow/disallow rules.
func allowedByGroup(group []robotsRule, path string) bool {
	allowed := true
	matchLen := -1
	for _, rule := range group {
		if strings.HasPrefix(path, rule.path) && len(rule.path) > matchLen {
			matchLen = len(rule.path)
			allowed = rule.allow
		}
	}
	return allowed
}
