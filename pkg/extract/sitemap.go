package extract

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"
)

// maxSitemapDepth bounds sitemap-index recursion.
const maxSitemapDepth = 3

// fetchSitemapURLs walks sitemap and sitemap-index documents breadth-first
// and returns page URLs. Nested .xml locations are followed up to
// maxSitemapDepth levels; optional substring filters keep only product URLs.
func (e *Extractor) fetchSitemapURLs(ctx context.Context, sitemaps []string, headers map[string]string, urlContains []string) ([]string, error) {
	seen := make(map[string]bool)
	var results []string

	queue := append([]string(nil), sitemaps...)
	for depth := 0; depth < maxSitemapDepth && len(queue) > 0; depth++ {
		var next []string
		for _, sitemapURL := range queue {
			if seen[sitemapURL] {
				continue
			}
			seen[sitemapURL] = true

			locs, err := e.fetchSitemapLocs(ctx, sitemapURL, headers)
			if err != nil {
				e.logger.WithContext(ctx).WithError(err).WithField("sitemap", sitemapURL).Warn("failed to fetch sitemap")
				continue
			}
			for _, loc := range locs {
				if strings.HasSuffix(loc, ".xml") {
					next = append(next, loc)
				} else {
					results = append(results, loc)
				}
			}
		}
		queue = next
	}

	if len(urlContains) > 0 {
		var kept []string
		for _, u := range results {
			for _, sub := range urlContains {
				if sub != "" && strings.Contains(u, sub) {
					kept = append(kept, u)
					break
				}
			}
		}
		results = kept
	}
	return dedupe(results), nil
}

// fetchSitemapLocs returns every <loc> value in the document, matched by
// local name so namespaced sitemaps parse the same as plain ones.
func (e *Extractor) fetchSitemapLocs(ctx context.Context, sitemapURL string, headers map[string]string) ([]string, error) {
	resp, err := e.client.Get(ctx, sitemapURL, headers)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, sitemapURL)
	}
	return parseSitemapLocs(resp.Body)
}

func parseSitemapLocs(body []byte) ([]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	var locs []string
	var inLoc bool
	var text strings.Builder
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "loc" {
				inLoc = true
				text.Reset()
			}
		case xml.CharData:
			if inLoc {
				text.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "loc" {
				inLoc = false
				if loc := strings.TrimSpace(text.String()); loc != "" {
					locs = append(locs, loc)
				}
			}
		}
	}
	if len(locs) == 0 {
		return nil, fmt.Errorf("no loc entries found in sitemap")
	}
	return locs, nil
}
