package mapping

import (
	"encoding/json"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/expressions"
	"github.com/Ramsey-B/clover/pkg/models"
)

func newTestMapper() *Mapper {
	return NewMapper(expressions.NewEvaluator(), ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func decodeJSON(t *testing.T, raw string) any {
	t.Helper()
	var data any
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	return data
}

func TestFlatten(t *testing.T) {
	m := newTestMapper()

	item := decodeJSON(t, `{"id": 42, "img": "https://cdn.example.com/42.jpg", "name": "Linen Shirt"}`)
	flat := m.Flatten(item, map[string]models.Expressions{
		"external_id": {"id"},
		"image_url":   {"img"},
		"title":       {"name"},
		"brand":       {"brand.name", "brand"},
	})

	assert.Equal(t, float64(42), flat["external_id"])
	assert.Equal(t, "https://cdn.example.com/42.jpg", flat["image_url"])
	assert.Equal(t, "Linen Shirt", flat["title"])
	assert.Nil(t, flat["brand"])
}

func TestFlattenFallbackChain(t *testing.T) {
	m := newTestMapper()

	item := decodeJSON(t, `{"detail": {"colors": ["Navy"]}, "price": {"value": 4990}}`)
	flat := m.Flatten(item, map[string]models.Expressions{
		"color_names": {"colors", "detail.colors"},
		"price":       {"price.current", "price.value"},
	})

	assert.Equal(t, []any{"Navy"}, flat["color_names"])
	assert.Equal(t, float64(4990), flat["price"])
}

func TestMapBasic(t *testing.T) {
	m := newTestMapper()
	site := &models.SiteConfig{Brand: "Acme", Source: "acme", Country: "GB"}

	p, err := m.Map(map[string]any{
		"external_id": float64(42),
		"title":       "Linen Shirt",
		"price":       "49.90",
		"currency":    "GBP",
		"image_url":   "https://cdn.example.com/42.jpg",
		"product_url": "https://acme.example.com/p/42",
	}, site)
	require.NoError(t, err)

	assert.Equal(t, "acme", p.Source)
	assert.Equal(t, "42", p.ExternalID)
	require.NotNil(t, p.Title)
	assert.Equal(t, "Linen Shirt", *p.Title)
	require.NotNil(t, p.Price)
	assert.Equal(t, "49.9", p.Price.String())
	require.NotNil(t, p.Country)
	assert.Equal(t, "GB", *p.Country)
	require.NotNil(t, p.MerchantName)
	assert.Equal(t, "Acme", *p.MerchantName)
	assert.Equal(t, models.AvailabilityUnknown, p.Availability)
	assert.False(t, p.LastSeen.IsZero())
}

func TestMapExternalIDFallback(t *testing.T) {
	m := newTestMapper()
	site := &models.SiteConfig{Brand: "Acme", Source: "acme"}

	p, err := m.Map(map[string]any{
		"product_id": "sku-9",
		"title":      "Tee",
	}, site)
	require.NoError(t, err)
	assert.Equal(t, "sku-9", p.ExternalID)

	p, err = m.Map(map[string]any{
		"product_url": "https://acme.example.com/p/tee",
		"title":       "Tee",
	}, site)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.example.com/p/tee", p.ExternalID)
}

func TestMapMissingIdentity(t *testing.T) {
	m := newTestMapper()
	site := &models.SiteConfig{Brand: "Acme", Source: "acme"}

	_, err := m.Map(map[string]any{"title": "Tee"}, site)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestMapDefaultsTitle(t *testing.T) {
	m := newTestMapper()
	site := &models.SiteConfig{Brand: "Acme", Source: "acme"}

	p, err := m.Map(map[string]any{"external_id": "1"}, site)
	require.NoError(t, err)
	require.NotNil(t, p.Title)
	assert.Equal(t, "Unknown title", *p.Title)
}

func TestMapInStockOverridesAvailability(t *testing.T) {
	m := newTestMapper()
	site := &models.SiteConfig{Brand: "Acme", Source: "acme"}

	p, err := m.Map(map[string]any{
		"external_id":  "1",
		"availability": "sold out",
		"in_stock":     true,
	}, site)
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityInStock, p.Availability)
}

func TestMapColorFromDescription(t *testing.T) {
	m := newTestMapper()
	site := &models.SiteConfig{Brand: "Acme", Source: "acme"}

	p, err := m.Map(map[string]any{
		"external_id": "1",
		"title":       "Wool Coat",
		"description": "Wool coat in a relaxed fit - Navy",
	}, site)
	require.NoError(t, err)
	assert.Equal(t, []string{"Navy"}, p.ColorNames)
	require.NotNil(t, p.Description)
	assert.Equal(t, "Wool coat in a relaxed fit", *p.Description)
}

func TestMapProductURLTemplate(t *testing.T) {
	m := newTestMapper()
	site := &models.SiteConfig{
		Brand:  "Acme",
		Source: "acme",
		API: &models.APIConfig{
			ProductURLTemplate: "https://acme.example.com/{keyword}-p{id}.html",
		},
	}

	p, err := m.Map(map[string]any{
		"external_id":    "42",
		"seo_keyword":    "linen-shirt",
		"seo_product_id": "42",
	}, site)
	require.NoError(t, err)
	require.NotNil(t, p.ProductURL)
	assert.Equal(t, "https://acme.example.com/linen-shirt-p42.html", *p.ProductURL)
}
