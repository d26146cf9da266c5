package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Ramsey-B/clover/pkg/models"
)

var priceTextRegex = regexp.MustCompile(`(\d+(?:\.\d{2})?)`)

// extractHTML scrapes a site with CSS selectors. With a product_selector the
// category pages are mined directly; otherwise links are collected (from
// category pages and sitemaps) and each product page is visited.
func (e *Extractor) extractHTML(ctx context.Context, site *models.SiteConfig, limit int) (*Result, error) {
	conf := site.HTML
	result := &Result{}

	e.prewarm(ctx, conf.Prewarm, conf.Headers)

	var links []string
	if len(conf.Sitemaps) > 0 {
		sitemapURLs, err := e.fetchSitemapURLs(ctx, conf.Sitemaps, conf.Headers, conf.SitemapURLContains)
		if err != nil {
			result.PagesFailed++
			e.logger.WithContext(ctx).WithError(err).WithField("site", site.Brand).Warn("sitemap collection failed")
		}
		links = append(links, sitemapURLs...)
	}

	if conf.ProductSelector != "" {
		e.scrapeCategoriesDirect(ctx, site, result, limit)
	} else {
		for _, category := range conf.CategoryURLs {
			found, err := e.collectProductLinks(ctx, category, conf.ProductLinkSelector, conf.Headers)
			if err != nil {
				result.PagesFailed++
				e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"site":     site.Brand,
					"category": category,
				}).Warn("failed to collect product links")
				continue
			}
			links = append(links, found...)
		}
		e.scrapeProductPages(ctx, site, dedupe(links), result, limit)
	}

	result.Items = capItems(result.Items, limit)
	return result, nil
}

// scrapeCategoriesDirect extracts product fields from listing cards without
// visiting individual product pages. Useful for sites that block detail
// pages but serve category listings.
func (e *Extractor) scrapeCategoriesDirect(ctx context.Context, site *models.SiteConfig, result *Result, limit int) {
	conf := site.HTML
	for _, category := range conf.CategoryURLs {
		doc, err := e.fetchDocument(ctx, category, conf.Headers)
		if err != nil {
			result.PagesFailed++
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"site":     site.Brand,
				"category": category,
			}).Warn("failed to fetch category page")
			continue
		}

		doc.Find(conf.ProductSelector).EachWithBreak(func(_ int, card *goquery.Selection) bool {
			item := e.extractCard(card, category, conf.ProductSelectors)
			if isEmpty(item["external_id"]) && isEmpty(item["product_id"]) {
				result.Skipped++
				return true
			}
			result.Items = append(result.Items, item)
			return limit <= 0 || len(result.Items) < limit
		})

		if limit > 0 && len(result.Items) >= limit {
			return
		}
	}
}

// scrapeProductPages visits each collected link and extracts fields with the
// per-field selectors. The page URL doubles as the product URL and, through
// the identity fallback chain, as the external id.
func (e *Extractor) scrapeProductPages(ctx context.Context, site *models.SiteConfig, links []string, result *Result, limit int) {
	conf := site.HTML
	for _, link := range links {
		if limit > 0 && len(result.Items) >= limit {
			return
		}
		doc, err := e.fetchDocument(ctx, link, conf.Headers)
		if err != nil {
			result.PagesFailed++
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"site": site.Brand,
				"url":  link,
			}).Warn("failed to fetch product page")
			continue
		}

		item := parseProductPage(doc, link, conf.ProductSelectors)
		item["product_url"] = link
		result.Items = append(result.Items, item)
	}
}

// parseProductPage applies text selectors to a product detail page. The
// image selector reads the src attribute, everything else the node text.
func parseProductPage(doc *goquery.Document, pageURL string, selectors map[string]string) map[string]any {
	item := make(map[string]any, len(selectors))
	for field, selector := range selectors {
		if selector == "" {
			continue
		}
		switch field {
		case "image", "image_url":
			node := doc.Find(selector).First()
			src := firstAttr(node, "src", "data-src")
			if src != "" {
				item["image_url"] = absolutize(pageURL, src)
			}
		default:
			if text := strings.TrimSpace(doc.Find(selector).First().Text()); text != "" {
				item[field] = text
			}
		}
	}
	return item
}

// extractCard pulls fields from one listing card. Selector values support a
// few shapes beyond plain CSS: 'quoted' literals, href extraction for
// product_url, [data-attr] reads from the card element, and 'prefix' +
// [data-attr] + 'suffix' concatenation.
func (e *Extractor) extractCard(card *goquery.Selection, pageURL string, selectors map[string]string) map[string]any {
	item := make(map[string]any, len(selectors))
	for field, selector := range selectors {
		if selector == "" {
			continue
		}
		switch {
		case field == "product_url" && strings.Contains(selector, " + ") && strings.Contains(selector, "[data-"):
			if built := buildFromParts(card, selector); built != "" {
				item[field] = built
			}
		case field == "product_url":
			href := cardHref(card, selector)
			if href == "" {
				continue
			}
			productURL := absolutize(pageURL, href)
			item[field] = productURL
			// Shopify-style URLs carry a stable handle after /products/.
			if handle := productHandle(productURL); handle != "" {
				if isEmpty(item["external_id"]) {
					item["external_id"] = handle
				}
				if isEmpty(item["product_id"]) {
					item["product_id"] = handle
				}
			}
		case isQuotedLiteral(selector):
			item[field] = strings.Trim(selector, "'")
		case field == "image" || field == "image_url":
			node := card.Find(selector).First()
			src := firstAttr(node, "src", "data-src")
			if src != "" {
				item["image_url"] = absolutize(pageURL, src)
			}
		case field == "price":
			text := strings.TrimSpace(card.Find(selector).First().Text())
			if m := priceTextRegex.FindStringSubmatch(text); m != nil {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil {
					item[field] = v
				}
			}
		case strings.HasPrefix(selector, "[data-") && strings.HasSuffix(selector, "]"):
			if value, ok := card.Attr(dataAttrName(selector)); ok {
				item[field] = value
			}
		default:
			if text := strings.TrimSpace(card.Find(selector).First().Text()); text != "" {
				item[field] = text
			}
		}
	}
	return item
}

// collectProductLinks gathers product page links from a category listing:
// anchors matched by the selector plus any url fields in embedded JSON-LD.
func (e *Extractor) collectProductLinks(ctx context.Context, pageURL, linkSelector string, headers map[string]string) ([]string, error) {
	if linkSelector == "" {
		return nil, fmt.Errorf("no product_link_selector configured")
	}
	doc, err := e.fetchDocument(ctx, pageURL, headers)
	if err != nil {
		return nil, err
	}

	var links []string
	doc.Find(linkSelector).Each(func(_ int, node *goquery.Selection) {
		href := firstAttr(node, "href", "data-href", "data-url")
		if href == "" {
			return
		}
		if abs := absolutize(pageURL, href); strings.HasPrefix(abs, "http") {
			links = append(links, abs)
		}
	})

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, node *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(node.Text()), &data); err != nil {
			return
		}
		for _, u := range collectJSONURLs(data) {
			links = append(links, absolutize(pageURL, u))
		}
	})

	return dedupe(links), nil
}

func collectJSONURLs(node any) []string {
	var acc []string
	var walk func(any)
	walk = func(n any) {
		switch v := n.(type) {
		case map[string]any:
			if u, ok := v["url"].(string); ok && u != "" {
				acc = append(acc, u)
			}
			for _, child := range v {
				walk(child)
			}
		case []any:
			for _, child := range v {
				walk(child)
			}
		}
	}
	walk(node)
	return acc
}

func (e *Extractor) fetchDocument(ctx context.Context, pageURL string, headers map[string]string) (*goquery.Document, error) {
	resp, err := e.client.Get(ctx, pageURL, headers)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, pageURL)
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
}

// cardHref resolves the href for a product link selector. The selectors
// "href" and "[href...]" read from the card element itself; anything else
// selects a descendant first.
func cardHref(card *goquery.Selection, selector string) string {
	if selector == "href" || strings.HasPrefix(selector, "[href") {
		return firstAttr(card, "href", ":href")
	}
	return firstAttr(card.Find(selector).First(), "href", ":href")
}

// buildFromParts evaluates concatenation selectors like
// "'https://example.com/' + [data-articlecode] + '.html'".
func buildFromParts(card *goquery.Selection, selector string) string {
	var b strings.Builder
	for _, part := range strings.Split(selector, " + ") {
		part = strings.TrimSpace(part)
		switch {
		case isQuotedLiteral(part):
			b.WriteString(strings.Trim(part, "'"))
		case strings.HasPrefix(part, "[data-") && strings.HasSuffix(part, "]"):
			if value, ok := card.Attr(part[1 : len(part)-1]); ok {
				b.WriteString(value)
			}
		}
	}
	return b.String()
}

// productHandle extracts the handle segment from /products/<handle> URLs.
func productHandle(productURL string) string {
	idx := strings.Index(productURL, "/products/")
	if idx < 0 {
		return ""
	}
	handle := productURL[idx+len("/products/"):]
	handle = strings.SplitN(handle, "?", 2)[0]
	handle = strings.SplitN(handle, "/", 2)[0]
	return handle
}

// dataAttrName extracts the attribute name from selectors like
// [data-testid*='productCard'].
func dataAttrName(selector string) string {
	content := selector[1 : len(selector)-1]
	if idx := strings.IndexAny(content, "*^$~="); idx >= 0 {
		content = content[:idx]
	}
	return content
}

func isQuotedLiteral(s string) bool {
	return len(s) >= 2 && strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'")
}

func firstAttr(node *goquery.Selection, attrs ...string) string {
	for _, attr := range attrs {
		if value, ok := node.Attr(attr); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// absolutize resolves a possibly relative href against the page URL.
// Protocol-relative URLs resolve to https.
func absolutize(pageURL, href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
