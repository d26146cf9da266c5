package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/embeddings"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/expressions"
	"github.com/Ramsey-B/clover/pkg/extract"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/mapping"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/pipeline"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/sites"
	"github.com/Ramsey-B/clover/pkg/store"
)

// noopEmbedder satisfies the pipeline when no embedding backend is
// configured; every product is stored without a vector.
type noopEmbedder struct{}

func (noopEmbedder) EmbedImage(context.Context, string) models.Vector { return nil }

func runCmd() *cobra.Command {
	var (
		sitesPath string
		only      string
		limit     int
		dryRun    bool
		sync      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an ingestion pass over the configured sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if sitesPath != "" {
				cfg.SitesConfigPath = sitesPath
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}

			siteConfigs, err := sites.Load(cfg.SitesConfigPath)
			if err != nil {
				return fmt.Errorf("failed to load site configs: %w", err)
			}
			siteConfigs, err = sites.Select(siteConfigs, only)
			if err != nil {
				return err
			}
			if len(siteConfigs) == 0 {
				return fmt.Errorf("no sites to process")
			}

			if !dryRun && cfg.StoreURL == "" {
				return fmt.Errorf("STORE_URL is required unless --dry-run is set")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runPipeline(ctx, cfg, logger, siteConfigs, pipeline.Options{
				Limit:  limit,
				DryRun: dryRun,
				Sync:   sync,
			})
		},
	}

	cmd.Flags().StringVar(&sitesPath, "sites", "", "Path to the sites YAML config")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max products per site (0 = unlimited)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Extract and map without writing to the store")
	cmd.Flags().BoolVar(&sync, "sync", false, "Delete products not seen in this run, per source and merchant")
	cmd.Flags().StringVar(&only, "only", "all", "Comma-separated site brands to run, or 'all'")

	return cmd
}

func runPipeline(ctx context.Context, cfg *config.Config, logger ectologger.Logger, siteConfigs []models.SiteConfig, opts pipeline.Options) error {
	client := httpclient.NewClient(httpclient.Config{
		Timeout:       cfg.HTTPTimeout,
		MaxIdleConns:  cfg.HTTPMaxIdleConns,
		MinDelay:      cfg.HTTPMinDelay,
		MaxDelay:      cfg.HTTPMaxDelay,
		RespectRobots: respectRobots(cfg, siteConfigs),
		DefaultHeaders: map[string]string{
			"User-Agent":      cfg.UserAgent,
			"Accept":          "*/*",
			"Accept-Language": "en-US,en;q=0.9",
		},
	}, logger)

	evaluator := expressions.NewEvaluator()
	mapper := mapping.NewMapper(evaluator, logger)
	extractor := extract.NewExtractor(client, evaluator, mapper, logger)

	var embedder pipeline.Embedder = noopEmbedder{}
	if cfg.EmbeddingBackendURL != "" {
		embedCfg := embeddings.DefaultConfig()
		embedCfg.BackendURL = cfg.EmbeddingBackendURL
		embedCfg.APIKey = cfg.EmbeddingAPIKey
		embedCfg.ModelID = cfg.EmbeddingModelID
		embedCfg.Dimensions = cfg.EmbeddingDims
		embedCfg.ImageWidth = cfg.EmbeddingImageWidth
		embedCfg.Timeout = cfg.EmbeddingTimeout
		embedder = embeddings.NewService(embeddings.NewBackendProvider(embedCfg), embedCfg, logger)
	} else {
		logger.Warn("No embedding backend configured, products will be stored without vectors")
	}

	var storeClient *store.Client
	if cfg.StoreURL != "" {
		storeClient = store.NewClient(store.Config{
			BaseURL:       cfg.StoreURL,
			APIKey:        cfg.StoreKey,
			EmbeddingDims: cfg.EmbeddingDims,
			ChunkSize:     cfg.StoreChunkSize,
			MaxRetries:    cfg.StoreMaxRetries,
			InitialDelay:  cfg.StoreInitialDelay,
			MaxDelay:      cfg.StoreMaxDelay,
			Timeout:       cfg.StoreTimeout,
		}, logger)
	}

	var emitter events.Emitter
	if cfg.KafkaEnabled {
		producer := events.NewProducer(events.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
		emitter = producer
	}

	checker := startAdminServer(cfg, logger, storeClient)
	checker.SetReady(true)

	var pipelineStore pipeline.Store
	if storeClient != nil {
		pipelineStore = storeClient
	}

	p := pipeline.New(extractor, mapper, embedder, pipelineStore, emitter, logger)
	report, err := p.Run(ctx, siteConfigs, opts)
	if report != nil {
		checker.SetLastReport(report)
		logger.WithFields(map[string]any{
			"run_id":   report.RunID,
			"sites":    len(report.Sites),
			"total":    report.Total,
			"duration": report.Duration.String(),
		}).Infof("Run %s finished: %d products upserted", report.RunID, report.Total)
	}
	return err
}

// respectRobots mirrors the per-site override: robots handling is a session
// level switch, so one site opting out disables it for the whole run.
func respectRobots(cfg *config.Config, siteConfigs []models.SiteConfig) bool {
	respect := cfg.RespectRobots
	for i := range siteConfigs {
		if siteConfigs[i].RespectRobots != nil && !*siteConfigs[i].RespectRobots {
			respect = false
		}
	}
	return respect
}

func startAdminServer(cfg *config.Config, logger ectologger.Logger, storeClient *store.Client) *health.Checker {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomw.RequestID())

	var pinger health.Pinger
	if storeClient != nil {
		pinger = storeClient
	}
	checker := health.NewChecker(pinger, cfg.Version)
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	go func() {
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.WithError(err).Warn("Admin server stopped")
		}
	}()

	return checker
}
