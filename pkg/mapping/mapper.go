// Package mapping converts raw per-site items into canonical products.
package mapping

import (
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/expressions"
	"github.com/Ramsey-B/clover/pkg/models"
)

// ErrMissingIdentity marks a raw item with no resolvable external_id. Such
// records cannot be upserted idempotently and are dropped rather than stored
// under a non-unique fallback key.
var ErrMissingIdentity = errors.New("no resolvable external_id for item")

// Mapper projects raw items into the canonical product schema.
type Mapper struct {
	evaluator *expressions.Evaluator
	logger    ectologger.Logger
}

// NewMapper creates a new field mapper
func NewMapper(evaluator *expressions.Evaluator, logger ectologger.Logger) *Mapper {
	return &Mapper{
		evaluator: evaluator,
		logger:    logger,
	}
}

// Flatten applies a site field map to one raw JSON item. Each destination
// field gets the first non-nil result of its expression chain; empty chains
// yield nil without raising.
func (m *Mapper) Flatten(item any, fieldMap map[string]models.Expressions) map[string]any {
	flat := make(map[string]any, len(fieldMap))
	for dest, exprs := range fieldMap {
		flat[dest] = m.evaluator.EvaluateFirst(exprs, item)
	}
	return flat
}

// Map builds a canonical product from a flat raw item. The raw item is
// either a flattened API item or an HTML-extracted field mapping; both use
// the canonical destination field names.
func (m *Mapper) Map(flat map[string]any, site *models.SiteConfig) (*models.Product, error) {
	externalID := firstString(flat, "external_id", "product_id", "product_url")
	if externalID == "" {
		return nil, fmt.Errorf("%w (site %s)", ErrMissingIdentity, site.Source)
	}

	p := &models.Product{
		Source:     site.Source,
		ExternalID: externalID,
		LastSeen:   time.Now().UTC(),
	}

	merchant := site.MerchantName()
	if s := stringValue(flat["merchant_name"]); s != "" {
		merchant = s
	}
	p.MerchantName = strPtr(merchant)

	title := stringValue(flat["title"])
	if title == "" {
		title = "Unknown title"
	}
	p.Title = strPtr(title)

	p.Brand = optStrPtr(stringValue(flat["brand"]))
	p.Currency = optStrPtr(stringValue(flat["currency"]))
	p.ImageURL = optStrPtr(stringValue(flat["image_url"]))
	p.ProductURL = optStrPtr(stringValue(flat["product_url"]))
	p.AffiliateURL = optStrPtr(stringValue(flat["affiliate_url"]))
	p.SKU = optStrPtr(stringValue(flat["sku"]))
	p.Category = optStrPtr(stringValue(flat["category"]))
	p.Gender = optStrPtr(stringValue(flat["gender"]))

	if site.Country != "" {
		p.Country = strPtr(site.Country)
	} else {
		p.Country = optStrPtr(stringValue(flat["country"]))
	}

	p.Price = ParsePrice(flat["price"])

	avail := flat["availability"]
	if v, ok := flat["in_stock"]; ok {
		avail = v
	}
	p.Availability = NormalizeAvailability(avail)

	p.ColorNames = NormalizeColors(flat["color_names"])
	if size := NormalizeSizes(firstPresent(flat, "size", "sizes", "available_sizes")); size != "" {
		p.Size = strPtr(size)
	}

	desc := stringValue(flat["description"])
	if len(p.ColorNames) == 0 && desc != "" {
		if color := TrailingColorToken(desc); color != "" {
			p.ColorNames = []string{color}
		}
	}
	if desc != "" && len(p.ColorNames) > 0 {
		desc = StripColorTokens(desc, p.ColorNames)
		if desc == "" {
			desc = title
		}
	}
	p.Description = optStrPtr(desc)

	// Build product_url from a template when the API only exposes SEO parts.
	if p.ProductURL == nil && site.API != nil && site.API.ProductURLTemplate != "" {
		if built := BuildProductURL(site.API.ProductURLTemplate, flat, externalID); built != "" {
			p.ProductURL = strPtr(built)
		}
	}

	return p, nil
}

// firstString returns the first non-empty string value among the keys.
func firstString(flat map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringValue(flat[key]); s != "" {
			return s
		}
	}
	return ""
}

// firstPresent returns the first non-nil value among the keys.
func firstPresent(flat map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := flat[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func strPtr(s string) *string {
	return &s
}

func optStrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
