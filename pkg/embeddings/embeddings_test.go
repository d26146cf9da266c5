package embeddings

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func newTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestFixImageURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/img_800.jpg", FixImageURL("https://cdn.example.com/img_{width}.jpg", "800"))
	assert.Equal(t, "https://static.example.net/a.jpg", FixImageURL("//static.example.net/a.jpg", "800"))
	assert.Equal(t, "https://cdn.example.com/a.jpg", FixImageURL("https://cdn.example.com/a.jpg", "800"))
}

func TestBackendProviderEmbed(t *testing.T) {
	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-image-bytes"))
	}))
	defer imageServer.Close()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "clip-vit-l-14", req.Model)
		assert.NotEmpty(t, req.Image)
		json.NewEncoder(w).Encode(embedResponse{Embedding: models.Vector{3, 4}})
	}))
	defer backend.Close()

	cfg := DefaultConfig()
	cfg.BackendURL = backend.URL
	cfg.Dimensions = 2
	provider := NewBackendProvider(cfg)

	vec, err := provider.Embed(context.Background(), imageServer.URL+"/img.jpg")
	require.NoError(t, err)
	assert.Equal(t, models.Vector{3, 4}, vec)
}

func TestBackendProviderDimensionMismatch(t *testing.T) {
	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-image-bytes"))
	}))
	defer imageServer.Close()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embedding: models.Vector{1, 2, 3}})
	}))
	defer backend.Close()

	cfg := DefaultConfig()
	cfg.BackendURL = backend.URL
	cfg.Dimensions = 2
	provider := NewBackendProvider(cfg)

	_, err := provider.Embed(context.Background(), imageServer.URL+"/img.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2")
}

func TestBackendProviderRefererOverride(t *testing.T) {
	var gotReferer string
	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		w.Write([]byte("fake-image-bytes"))
	}))
	defer imageServer.Close()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embedding: models.Vector{1, 2}})
	}))
	defer backend.Close()

	cfg := DefaultConfig()
	cfg.BackendURL = backend.URL
	cfg.Dimensions = 2
	cfg.RefererOverrides = map[string]string{"127.0.0.1": "https://www.example.com/"}
	provider := NewBackendProvider(cfg)

	_, err := provider.Embed(context.Background(), imageServer.URL+"/img.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://www.example.com/", gotReferer)
}

type stubProvider struct {
	vectors map[string]models.Vector
	calls   []string
}

func (s *stubProvider) Embed(_ context.Context, imageURL string) (models.Vector, error) {
	s.calls = append(s.calls, imageURL)
	if vec, ok := s.vectors[imageURL]; ok {
		return vec, nil
	}
	return nil, assert.AnError
}

func (s *stubProvider) Dimensions() int { return 2 }

func TestServiceEmbedImageNormalizes(t *testing.T) {
	stub := &stubProvider{vectors: map[string]models.Vector{
		"https://cdn.example.com/a.jpg": {3, 4},
	}}
	svc := NewService(stub, DefaultConfig(), newTestLogger())

	vec := svc.EmbedImage(context.Background(), "https://cdn.example.com/a.jpg")
	require.NotNil(t, vec)
	assert.InDelta(t, 0.6, float64(vec[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(vec[1]), 1e-6)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestServiceEmbedImageRetriesLargerWidth(t *testing.T) {
	stub := &stubProvider{vectors: map[string]models.Vector{
		"https://cdn.example.com/img_1200.jpg": {1, 0},
	}}
	svc := NewService(stub, DefaultConfig(), newTestLogger())

	vec := svc.EmbedImage(context.Background(), "https://cdn.example.com/img_{width}.jpg")
	require.NotNil(t, vec)
	assert.Equal(t, []string{
		"https://cdn.example.com/img_800.jpg",
		"https://cdn.example.com/img_1200.jpg",
	}, stub.calls)
}

func TestServiceEmbedImageRetryOnlyChangesWidthSlot(t *testing.T) {
	stub := &stubProvider{vectors: map[string]models.Vector{
		"https://cdn.example.com/p/18003/img_1200.jpg": {0, 1},
	}}
	svc := NewService(stub, DefaultConfig(), newTestLogger())

	// The product id carries the digits "800"; only the {width} slot may be
	// rewritten on retry.
	vec := svc.EmbedImage(context.Background(), "https://cdn.example.com/p/18003/img_{width}.jpg")
	require.NotNil(t, vec)
	assert.Equal(t, []string{
		"https://cdn.example.com/p/18003/img_800.jpg",
		"https://cdn.example.com/p/18003/img_1200.jpg",
	}, stub.calls)
}

func TestServiceEmbedImageNoRetryWithoutWidthSlot(t *testing.T) {
	stub := &stubProvider{}
	svc := NewService(stub, DefaultConfig(), newTestLogger())

	assert.Nil(t, svc.EmbedImage(context.Background(), "https://cdn.example.com/p/800/a.jpg"))
	assert.Equal(t, []string{"https://cdn.example.com/p/800/a.jpg"}, stub.calls)
}

func TestServiceEmbedImageAbsentOnFailure(t *testing.T) {
	stub := &stubProvider{}
	svc := NewService(stub, DefaultConfig(), newTestLogger())

	assert.Nil(t, svc.EmbedImage(context.Background(), "https://cdn.example.com/a.jpg"))
	assert.Nil(t, svc.EmbedImage(context.Background(), "   "))
}
