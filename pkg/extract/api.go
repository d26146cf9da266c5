package extract

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

// extractAPI ingests every configured (or discovered) JSON endpoint and
// flattens the items through the site field map. Items without an identifier,
// or without an image when the field map expects one, are skipped.
func (e *Extractor) extractAPI(ctx context.Context, site *models.SiteConfig, limit int) (*Result, error) {
	conf := site.API
	result := &Result{}

	e.prewarm(ctx, conf.Prewarm, conf.Headers)

	endpoints := conf.AllEndpoints()
	if conf.DiscoverCategories != nil {
		discovered, err := e.discoverCategoryEndpoints(ctx, conf.DiscoverCategories, conf.Headers)
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("site", site.Brand).Warn("category discovery failed, using configured endpoints")
		} else if len(discovered) > 0 {
			endpoints = discovered
		}
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("site %s has no api endpoints", site.Brand)
	}

	for _, endpoint := range endpoints {
		items, skipped, err := e.ingestEndpoint(ctx, endpoint, conf)
		if err != nil {
			result.PagesFailed++
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"site":     site.Brand,
				"endpoint": endpoint,
			}).Warn("failed to ingest api endpoint")
			continue
		}
		result.Skipped += skipped
		result.Items = append(result.Items, items...)
		if limit > 0 && len(result.Items) >= limit {
			break
		}
	}

	result.Items = capItems(result.Items, limit)
	return result, nil
}

func (e *Extractor) ingestEndpoint(ctx context.Context, endpoint string, conf *models.APIConfig) ([]map[string]any, int, error) {
	endpoint, err := withParams(endpoint, conf.Params)
	if err != nil {
		return nil, 0, err
	}

	data, err := e.client.FetchJSON(ctx, endpoint, conf.Headers)
	if err != nil {
		return nil, 0, err
	}

	rawItems := e.selectItems(data, conf.ItemsPath)

	items := make([]map[string]any, 0, len(rawItems))
	skipped := 0
	_, wantsImage := conf.FieldMap["image_url"]
	for _, raw := range rawItems {
		flat := e.mapper.Flatten(raw, conf.FieldMap)
		if isEmpty(flat["external_id"]) && isEmpty(flat["product_id"]) {
			skipped++
			continue
		}
		if wantsImage && isEmpty(flat["image_url"]) {
			skipped++
			continue
		}
		items = append(items, flat)
	}
	return items, skipped, nil
}

// selectItems resolves the items list with fallback paths: the first path
// yielding a non-empty list wins. With no paths configured the document
// itself must be the list.
func (e *Extractor) selectItems(data any, paths models.Expressions) []any {
	if len(paths) == 0 {
		items, _ := data.([]any)
		return items
	}
	for _, path := range paths {
		items, err := e.evaluator.EvaluateSlice(path, data)
		if err != nil {
			continue
		}
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

// discoverCategoryEndpoints fetches the categories document and builds one
// product endpoint per category, via direct URLs or an {id} template. When
// the configured paths match nothing, any numeric id found in the document
// is fed through the template as a fallback.
func (e *Extractor) discoverCategoryEndpoints(ctx context.Context, conf *models.DiscoveryConfig, headers map[string]string) ([]string, error) {
	data, err := e.client.FetchJSON(ctx, conf.Endpoint, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}

	categories, err := e.evaluator.EvaluateSlice(conf.ItemsPath, data)
	if err != nil {
		return nil, fmt.Errorf("invalid categories path %q: %w", conf.ItemsPath, err)
	}

	var endpoints []string
	for _, item := range categories {
		if s, ok := item.(string); ok && strings.HasPrefix(s, "http") {
			endpoints = append(endpoints, s)
			continue
		}
		if conf.URLPath != "" {
			if u, _ := e.evaluator.Evaluate(conf.URLPath, item); u != nil {
				if s, ok := u.(string); ok && strings.HasPrefix(s, "http") {
					endpoints = append(endpoints, s)
					continue
				}
			}
		}
		if conf.IDPath != "" && conf.URLTemplate != "" {
			if id, _ := e.evaluator.Evaluate(conf.IDPath, item); !isEmpty(id) {
				endpoints = append(endpoints, fillTemplate(conf.URLTemplate, id))
			}
		}
	}

	if len(endpoints) == 0 && conf.URLTemplate != "" {
		for _, id := range collectNumericIDs(data) {
			endpoints = append(endpoints, strings.ReplaceAll(conf.URLTemplate, "{id}", id))
		}
	}

	return dedupe(endpoints), nil
}

// collectNumericIDs walks a JSON document and gathers every digit-only "id"
// field, preserving discovery order.
func collectNumericIDs(node any) []string {
	var acc []string
	var walk func(any)
	walk = func(n any) {
		switch v := n.(type) {
		case map[string]any:
			if id, ok := v["id"]; ok {
				s := strings.TrimSpace(toString(id))
				if s != "" && isDigits(s) {
					acc = append(acc, s)
				}
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
	return dedupe(acc)
}

func (e *Extractor) prewarm(ctx context.Context, urls []string, headers map[string]string) {
	for _, warmURL := range urls {
		if _, err := e.client.Get(ctx, warmURL, headers); err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("url", warmURL).Debugf("prewarm request failed")
		}
	}
}

func withParams(endpoint string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return endpoint, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	query := u.Query()
	for key, value := range params {
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func fillTemplate(template string, id any) string {
	return strings.ReplaceAll(template, "{id}", toString(id))
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
