package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Availability is the normalized stock state of a product.
type Availability string

const (
	AvailabilityInStock    Availability = "in_stock"
	AvailabilityOutOfStock Availability = "out_of_stock"
	AvailabilityUnknown    Availability = "unknown"
)

// Product is the canonical product record, independent of source site.
// (Source, ExternalID) uniquely identifies a product and is the upsert
// conflict key.
type Product struct {
	Source       string           `db:"source" json:"source"`
	ExternalID   string           `db:"external_id" json:"external_id"`
	MerchantName *string          `db:"merchant_name" json:"merchant_name"`
	Brand        *string          `db:"brand" json:"brand"`
	Title        *string          `db:"title" json:"title"`
	Description  *string          `db:"description" json:"description"`
	Price        *decimal.Decimal `db:"price" json:"price"`
	Currency     *string          `db:"currency" json:"currency"`
	ImageURL     *string          `db:"image_url" json:"image_url"`
	ProductURL   *string          `db:"product_url" json:"product_url"`
	AffiliateURL *string          `db:"affiliate_url" json:"affiliate_url"`
	Availability Availability     `db:"availability" json:"availability"`
	Country      *string          `db:"country" json:"country"`

	// Optional passthrough attributes. Only written when the site mapping
	// produced them, so they participate in batch key-set padding.
	SKU        *string  `db:"sku" json:"sku,omitempty"`
	Category   *string  `db:"category" json:"category,omitempty"`
	Gender     *string  `db:"gender" json:"gender,omitempty"`
	ColorNames []string `db:"color_names" json:"color_names,omitempty"`
	Size       *string  `db:"size" json:"size,omitempty"`

	// Embedding is nil when no embedding could be produced for this pass.
	Embedding Vector `db:"embedding" json:"embedding,omitempty"`

	LastSeen time.Time `db:"last_seen" json:"last_seen"`
}

// TableName returns the database table name
func (Product) TableName() string {
	return "products"
}

// Row converts the product into the mapping shape the storage API consumes.
// Core columns are always present (nil for absent values); optional
// attributes and the embedding are included only when set, leaving key-set
// padding to the batch normalizer.
func (p *Product) Row() map[string]any {
	row := map[string]any{
		"source":        p.Source,
		"external_id":   p.ExternalID,
		"merchant_name": strOrNil(p.MerchantName),
		"brand":         strOrNil(p.Brand),
		"title":         strOrNil(p.Title),
		"description":   strOrNil(p.Description),
		"currency":      strOrNil(p.Currency),
		"image_url":     strOrNil(p.ImageURL),
		"product_url":   strOrNil(p.ProductURL),
		"affiliate_url": strOrNil(p.AffiliateURL),
		"availability":  string(p.Availability),
		"country":       strOrNil(p.Country),
		"last_seen":     p.LastSeen.UTC().Format(time.RFC3339),
	}

	if p.Price != nil {
		row["price"] = p.Price.InexactFloat64()
	} else {
		row["price"] = nil
	}

	if p.SKU != nil {
		row["sku"] = *p.SKU
	}
	if p.Category != nil {
		row["category"] = *p.Category
	}
	if p.Gender != nil {
		row["gender"] = *p.Gender
	}
	if len(p.ColorNames) > 0 {
		row["color_names"] = p.ColorNames
	}
	if p.Size != nil {
		row["size"] = *p.Size
	}
	if p.Embedding != nil {
		row["embedding"] = p.Embedding
	}

	return row
}

func strOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
