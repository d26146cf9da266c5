package embeddings

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/models"
)

// maxImageSize bounds the image download to keep memory predictable.
const maxImageSize = 20 * 1024 * 1024

// BackendProvider fetches the product image and sends it to an HTTP
// inference service for embedding.
type BackendProvider struct {
	client *http.Client
	cfg    Config
}

func NewBackendProvider(cfg Config) *BackendProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BackendProvider{
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Image string `json:"image"`
}

type embedResponse struct {
	Embedding models.Vector `json:"embedding"`
}

// Embed downloads the image and returns the backend's embedding for it.
func (p *BackendProvider) Embed(ctx context.Context, imageURL string) (models.Vector, error) {
	img, err := p.fetchImage(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}

	payload, err := json.Marshal(embedRequest{
		Model: p.cfg.ModelID,
		Image: base64.StdEncoding.EncodeToString(img),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BackendURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read embed response: %w", err)
	}
	if !httpclient.IsSuccessStatus(resp.StatusCode) {
		return nil, fmt.Errorf("embed backend returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var out embedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse embed response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embed backend returned an empty vector")
	}
	if p.cfg.Dimensions > 0 && out.Embedding.Dim() != p.cfg.Dimensions {
		return nil, fmt.Errorf("embed backend returned %d dimensions, expected %d", out.Embedding.Dim(), p.cfg.Dimensions)
	}
	return out.Embedding, nil
}

// Dimensions reports the configured vector size.
func (p *BackendProvider) Dimensions() int {
	return p.cfg.Dimensions
}

// fetchImage downloads the image bytes with browser-like headers. Some CDNs
// require the site's own Referer before serving images.
func (p *BackendProvider) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	for key, value := range p.cfg.DefaultHeaders {
		req.Header.Set(key, value)
	}
	for host, referer := range p.cfg.RefererOverrides {
		if strings.Contains(imageURL, host) {
			req.Header.Set("Referer", referer)
			break
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !httpclient.IsSuccessStatus(resp.StatusCode) {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
