// Package pipeline orchestrates a full ingestion run: extract raw items per
// site, map them to canonical products, attach image embeddings, and upsert
// the batch. Sites are isolated from each other; only fatal storage errors
// stop the run.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/batch"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/extract"
	"github.com/Ramsey-B/clover/pkg/mapping"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/store"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	UpsertProducts(ctx context.Context, rows []batch.Row) (int, error)
	DeleteMissing(ctx context.Context, source, merchantName string, seenIDs []string) (int, error)
}

// Embedder computes best-effort image embeddings.
type Embedder interface {
	EmbedImage(ctx context.Context, imageURL string) models.Vector
}

// Options control one run.
type Options struct {
	// Limit caps products per site; zero means unlimited.
	Limit int
	// DryRun extracts and maps but skips all store operations.
	DryRun bool
	// Sync deletes products for each (source, merchant) pair that were not
	// seen in this run.
	Sync bool
}

// Pipeline wires the stages together.
type Pipeline struct {
	extractor *extract.Extractor
	mapper    *mapping.Mapper
	embedder  Embedder
	store     Store
	emitter   events.Emitter
	logger    ectologger.Logger
}

func New(extractor *extract.Extractor, mapper *mapping.Mapper, embedder Embedder, st Store, emitter events.Emitter, logger ectologger.Logger) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		mapper:    mapper,
		embedder:  embedder,
		store:     st,
		emitter:   emitter,
		logger:    logger,
	}
}

// Run processes every site in order and returns the aggregated report. Site
// failures are recorded and the run continues; auth and schema errors from
// the store abort the run, since every remaining site would hit the same
// wall.
func (p *Pipeline) Run(ctx context.Context, sites []models.SiteConfig, opts Options) (*models.RunReport, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Run")
	defer span.End()

	report := &models.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	var fatal error
	for i := range sites {
		site := &sites[i]
		siteReport := p.runSite(ctx, report.RunID, site, opts)
		report.Add(*siteReport)

		if siteReport.Err != "" {
			p.logger.WithContext(ctx).WithFields(map[string]any{
				"site":  site.Brand,
				"error": siteReport.Err,
			}).Error("Site pass failed")
		} else {
			p.logger.WithContext(ctx).WithFields(map[string]any{
				"site":     site.Brand,
				"upserted": siteReport.Upserted,
				"duration": siteReport.Duration.String(),
			}).Infof("Site %s done: %d products", site.Brand, siteReport.Upserted)
		}

		if err := siteReport.FatalErr; err != nil {
			fatal = err
			break
		}
	}

	report.FinishedAt = time.Now().UTC()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)

	if p.emitter != nil && !opts.DryRun {
		if err := p.emitter.PublishRunCompleted(ctx, report); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("failed to publish run completed event")
		}
	}

	return report, fatal
}

func (p *Pipeline) runSite(ctx context.Context, runID string, site *models.SiteConfig, opts Options) *models.SiteReport {
	ctx, span := tracing.StartSpan(ctx, "pipeline.runSite")
	defer span.End()

	start := time.Now()
	report := &models.SiteReport{
		Brand:  site.Brand,
		Source: site.Source,
		Mode:   site.Mode(),
	}
	defer func() {
		report.Duration = time.Since(start)
		status := "success"
		if report.Err != "" {
			status = "failure"
		}
		metrics.RecordSitePass(site.Source, status, report.Duration.Seconds())
	}()

	result, err := p.extractor.Extract(ctx, site, opts.Limit)
	if err != nil {
		report.Err = err.Error()
		return report
	}
	report.Extracted = len(result.Items)
	report.Skipped = result.Skipped
	report.PagesFailed = result.PagesFailed
	metrics.ProductsExtracted.WithLabelValues(site.Source, site.Mode()).Add(float64(len(result.Items)))
	metrics.ProductsSkipped.WithLabelValues(site.Source, "extract").Add(float64(result.Skipped))

	products := make([]*models.Product, 0, len(result.Items))
	for _, item := range result.Items {
		product, err := p.mapper.Map(item, site)
		if err != nil {
			if errors.Is(err, mapping.ErrMissingIdentity) {
				report.Skipped++
				metrics.ProductsSkipped.WithLabelValues(site.Source, "no_identity").Inc()
				continue
			}
			report.Err = err.Error()
			return report
		}
		products = append(products, product)
	}
	report.Mapped = len(products)

	for _, product := range products {
		if product.ImageURL == nil {
			report.EmbeddingsMissing++
			continue
		}
		product.Embedding = p.embedder.EmbedImage(ctx, *product.ImageURL)
		if product.Embedding == nil {
			report.EmbeddingsMissing++
		}
	}

	if opts.DryRun {
		p.logger.WithContext(ctx).WithField("site", site.Brand).
			Infof("Dry run: %d products mapped for %s, skipping store", len(products), site.Brand)
		return report
	}

	rows := make([]batch.Row, len(products))
	for i, product := range products {
		rows[i] = product.Row()
	}
	rows = batch.Normalize(rows)

	upserted, err := p.store.UpsertProducts(ctx, rows)
	report.Upserted = upserted
	if err != nil {
		report.Err = err.Error()
		report.FatalErr = fatalStoreError(err)
		return report
	}

	if report.Upserted > 0 && p.emitter != nil {
		event := &events.SiteEvent{
			EventType: events.EventProductsUpserted,
			RunID:     runID,
			Source:    site.Source,
			Brand:     site.Brand,
			Count:     report.Upserted,
		}
		if err := p.emitter.PublishSiteEvent(ctx, event); err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("failed to publish site event")
		}
	}

	if opts.Sync {
		seen := make([]string, len(products))
		for i, product := range products {
			seen[i] = product.ExternalID
		}
		deleted, err := p.store.DeleteMissing(ctx, site.Source, site.MerchantName(), seen)
		if err != nil {
			report.Err = err.Error()
			report.FatalErr = fatalStoreError(err)
			return report
		}
		if deleted > 0 {
			p.logger.WithContext(ctx).WithFields(map[string]any{
				"site":    site.Brand,
				"deleted": deleted,
			}).Infof("Sync removed %d unseen products for %s", deleted, site.Brand)
			if p.emitter != nil {
				event := &events.SiteEvent{
					EventType: events.EventProductsDeleted,
					RunID:     runID,
					Source:    site.Source,
					Brand:     site.Brand,
					Count:     deleted,
				}
				if err := p.emitter.PublishSiteEvent(ctx, event); err != nil {
					p.logger.WithContext(ctx).WithError(err).Warn("failed to publish site event")
				}
			}
		}
	}

	return report
}

// fatalStoreError returns the error when it poisons the whole run: bad
// credentials and embedding column mismatches fail identically for every
// site, and an upsert that survived the retry budget means the store itself
// is down.
func fatalStoreError(err error) error {
	var authErr *store.AuthError
	var mismatch *store.SchemaMismatchError
	var upsertErr *store.UpsertError
	if errors.As(err, &authErr) || errors.As(err, &mismatch) || errors.As(err, &upsertErr) {
		return err
	}
	return nil
}
