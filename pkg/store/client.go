// Package store persists canonical products through a PostgREST endpoint.
// Upserts are idempotent on the (source, external_id) unique constraint.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/batch"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	// DefaultChunkSize keeps individual upsert requests reasonable.
	DefaultChunkSize = 500
	// upsertPrefer makes the insert an upsert and skips the response body.
	upsertPrefer = "resolution=merge-duplicates,return=minimal"

	maxErrorBody = 4 * 1024
)

// Config holds the PostgREST connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	// EmbeddingDims enables a client-side dimension check before any row is
	// sent. Zero disables the check.
	EmbeddingDims int
	ChunkSize     int
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Timeout       time.Duration
}

// Client is the products endpoint client.
type Client struct {
	cfg    Config
	client *http.Client
	logger ectologger.Logger
}

func NewClient(cfg Config, logger ectologger.Logger) *Client {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// UpsertProducts writes rows to the products table, deduplicated within the
// batch and chunked. Returns the number of rows sent. Transient failures are
// retried with backoff; auth and schema errors abort immediately.
func (c *Client) UpsertProducts(ctx context.Context, rows []batch.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	// ON CONFLICT cannot update the same row twice in one statement, so
	// collapse duplicate identities before sending.
	rows = batch.Dedupe(rows)

	if c.cfg.EmbeddingDims > 0 {
		if err := c.checkDimensions(rows); err != nil {
			return 0, err
		}
	}

	endpoint := c.cfg.BaseURL + "/rest/v1/products?on_conflict=source,external_id"

	sent := 0
	for _, chunk := range batch.Chunk(rows, c.cfg.ChunkSize) {
		if err := c.upsertChunk(ctx, endpoint, chunk); err != nil {
			metrics.RecordUpsertBatch("failure", len(chunk))
			return sent, err
		}
		metrics.RecordUpsertBatch("success", len(chunk))
		sent += len(chunk)
	}
	return sent, nil
}

func (c *Client) upsertChunk(ctx context.Context, endpoint string, chunk []batch.Row) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal upsert payload: %w", err)
	}

	var lastErr error
	a, b := 1, 1
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		lastErr = c.postChunk(ctx, endpoint, payload)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		delay := time.Duration(a) * c.cfg.InitialDelay
		if delay > c.cfg.MaxDelay {
			delay = c.cfg.MaxDelay
		}
		c.logger.WithContext(ctx).WithError(lastErr).
			WithField("attempt", attempt).
			Warnf("Upsert chunk failed, retrying in %s", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		a, b = b, a+b
	}
	return fmt.Errorf("upsert failed after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

func (c *Client) postChunk(ctx context.Context, endpoint string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create upsert request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Prefer", upsertPrefer)

	resp, err := c.client.Do(req)
	if err != nil {
		return &UpsertError{StatusCode: http.StatusServiceUnavailable, Body: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if !httpclient.IsSuccessStatus(resp.StatusCode) {
		return classifyResponse(resp.StatusCode, body)
	}
	return nil
}

// checkDimensions rejects the whole batch when any row's embedding does not
// match the configured column size. Better a fast local failure than a
// partial write that stops mid-batch at the server.
func (c *Client) checkDimensions(rows []batch.Row) error {
	for _, row := range rows {
		emb, ok := row["embedding"]
		if !ok || emb == nil {
			continue
		}
		vec, ok := emb.(models.Vector)
		if !ok {
			continue
		}
		if vec.Dim() != c.cfg.EmbeddingDims {
			return &SchemaMismatchError{Expected: c.cfg.EmbeddingDims, Actual: vec.Dim()}
		}
	}
	return nil
}

// DeleteMissing removes products for a (source, merchant_name) pair whose
// external_id was not seen in the current run. Returns the number deleted.
func (c *Client) DeleteMissing(ctx context.Context, source, merchantName string, seenIDs []string) (int, error) {
	existing, err := c.listExternalIDs(ctx, source, merchantName)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool, len(seenIDs))
	for _, id := range seenIDs {
		seen[id] = true
	}

	deleted := 0
	for _, id := range existing {
		if seen[id] {
			continue
		}
		if err := c.deleteOne(ctx, source, merchantName, id); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (c *Client) listExternalIDs(ctx context.Context, source, merchantName string) ([]string, error) {
	query := url.Values{}
	query.Set("source", "eq."+source)
	query.Set("merchant_name", "eq."+merchantName)
	query.Set("select", "external_id")
	endpoint := c.cfg.BaseURL + "/rest/v1/products?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create list request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read list response: %w", err)
	}
	if !httpclient.IsSuccessStatus(resp.StatusCode) {
		return nil, classifyResponse(resp.StatusCode, body)
	}

	var records []struct {
		ExternalID string `json:"external_id"`
	}
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to parse list response: %w", err)
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		if r.ExternalID != "" {
			ids = append(ids, r.ExternalID)
		}
	}
	return ids, nil
}

func (c *Client) deleteOne(ctx context.Context, source, merchantName, externalID string) error {
	query := url.Values{}
	query.Set("source", "eq."+source)
	query.Set("merchant_name", "eq."+merchantName)
	query.Set("external_id", "eq."+externalID)
	endpoint := c.cfg.BaseURL + "/rest/v1/products?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete product %s: %w", externalID, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if !httpclient.IsSuccessStatus(resp.StatusCode) {
		return classifyResponse(resp.StatusCode, body)
	}
	return nil
}

// Ping checks the products endpoint is reachable with the configured key.
func (c *Client) Ping(ctx context.Context) error {
	endpoint := c.cfg.BaseURL + "/rest/v1/products?select=external_id&limit=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create ping request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("products endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if !httpclient.IsSuccessStatus(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return classifyResponse(resp.StatusCode, body)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}
