// Package embeddings computes image embeddings for product listings via an
// HTTP inference backend. Embedding is best-effort: any failure yields an
// absent vector, never a pipeline error.
package embeddings

import (
	"context"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Provider computes an embedding for a product image. A nil vector with a
// nil error means the embedding is unavailable for this image.
type Provider interface {
	Embed(ctx context.Context, imageURL string) (models.Vector, error)
	Dimensions() int
}

// Config controls image URL handling and the inference backend.
type Config struct {
	BackendURL string
	APIKey     string
	ModelID    string
	Dimensions int
	ImageWidth string
	// RefererOverrides maps a host substring to the Referer header some
	// CDNs require before serving images.
	RefererOverrides map[string]string
	DefaultHeaders   map[string]string
	Timeout          time.Duration
}

// DefaultConfig returns the embedding defaults: the clip backend model at
// 1024 dimensions and the Referer override the zara CDN requires.
func DefaultConfig() Config {
	return Config{
		ModelID:    "clip-vit-l-14",
		Dimensions: 1024,
		ImageWidth: "800",
		RefererOverrides: map[string]string{
			"zara": "https://www.zara.com/",
		},
		Timeout: 30 * time.Second,
	}
}

// Service wraps a Provider with url fixups, a single fallback retry and
// metrics. It implements the best-effort contract used by the pipeline.
type Service struct {
	provider Provider
	cfg      Config
	logger   ectologger.Logger
}

func NewService(provider Provider, cfg Config, logger ectologger.Logger) *Service {
	if cfg.ImageWidth == "" {
		cfg.ImageWidth = "800"
	}
	return &Service{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
	}
}

// EmbedImage returns the embedding for an image URL, or nil when the image
// cannot be fetched or embedded. On failure it retries once with a larger
// image width when the URL carries one.
func (s *Service) EmbedImage(ctx context.Context, imageURL string) models.Vector {
	if strings.TrimSpace(imageURL) == "" {
		return nil
	}

	url := FixImageURL(imageURL, s.cfg.ImageWidth)

	start := time.Now()
	vec, err := s.provider.Embed(ctx, url)
	if err == nil && vec != nil {
		metrics.RecordEmbedding("success", time.Since(start).Seconds())
		return vec.L2Normalize()
	}

	// One retry with a larger width; some CDNs reject the smaller rendition.
	// Re-substitute from the templated URL so only the {width} slot changes,
	// never a matching digit run elsewhere in the path.
	if retry := FixImageURL(imageURL, "1200"); retry != url {
		vec, err = s.provider.Embed(ctx, retry)
		if err == nil && vec != nil {
			metrics.RecordEmbedding("retry_success", time.Since(start).Seconds())
			return vec.L2Normalize()
		}
	}

	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("image_url", url).Warn("failed to embed image")
	}
	metrics.RecordEmbedding("failure", time.Since(start).Seconds())
	return nil
}

// Dimensions reports the backend vector size.
func (s *Service) Dimensions() int {
	return s.provider.Dimensions()
}

// FixImageURL resolves width placeholders and protocol-relative URLs.
func FixImageURL(imageURL, width string) string {
	url := strings.ReplaceAll(imageURL, "{width}", width)
	if strings.HasPrefix(url, "//") {
		url = "https:" + url
	}
	return url
}
