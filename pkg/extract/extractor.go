// Package extract pulls raw product items out of configured sites, either
// from JSON APIs or by scraping HTML listings. Items come back as flat field
// maps keyed by canonical destination names; mapping turns them into
// products.
package extract

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/expressions"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/mapping"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Result is the outcome of one site extraction pass. Page-level failures are
// isolated: a failed endpoint or category page increments PagesFailed and
// the pass continues.
type Result struct {
	Items       []map[string]any
	Skipped     int
	PagesFailed int
}

// Extractor runs the extraction mode a site is configured for.
type Extractor struct {
	client    *httpclient.Client
	evaluator *expressions.Evaluator
	mapper    *mapping.Mapper
	logger    ectologger.Logger
}

func NewExtractor(client *httpclient.Client, evaluator *expressions.Evaluator, mapper *mapping.Mapper, logger ectologger.Logger) *Extractor {
	return &Extractor{
		client:    client,
		evaluator: evaluator,
		mapper:    mapper,
		logger:    logger,
	}
}

// Extract collects raw items for a site. A positive limit caps the number of
// items returned.
func (e *Extractor) Extract(ctx context.Context, site *models.SiteConfig, limit int) (*Result, error) {
	switch site.Mode() {
	case models.ModeAPI:
		return e.extractAPI(ctx, site, limit)
	case models.ModeHTML:
		return e.extractHTML(ctx, site, limit)
	default:
		return nil, fmt.Errorf("site %s has no api or html config", site.Brand)
	}
}

func capItems(items []map[string]any, limit int) []map[string]any {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
