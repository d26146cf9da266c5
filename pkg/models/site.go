package models

import "fmt"

// Expressions is a JMESPath expression with optional fallbacks: in YAML it can
// be a single string or a list of strings tried in order, first non-nil wins.
type Expressions []string

// UnmarshalYAML accepts either a scalar or a sequence of scalars.
func (e *Expressions) UnmarshalYAML(unmarshal func(any) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		*e = Expressions{single}
		return nil
	}
	var list []string
	if err := unmarshal(&list); err != nil {
		return fmt.Errorf("expression must be a string or list of strings: %w", err)
	}
	*e = Expressions(list)
	return nil
}

// DiscoveryConfig locates category product endpoints from a categories JSON
// document. Either URLPath yields endpoint URLs directly, or IDPath plus
// URLTemplate (with an {id} placeholder) builds them.
type DiscoveryConfig struct {
	Endpoint    string `yaml:"endpoint" validate:"required,url"`
	ItemsPath   string `yaml:"items_path" validate:"required"`
	URLPath     string `yaml:"url_path"`
	IDPath      string `yaml:"id_path"`
	URLTemplate string `yaml:"url_template"`
}

// APIConfig describes JSON API extraction for one site.
type APIConfig struct {
	Endpoint           string                 `yaml:"endpoint"`
	Endpoints          []string               `yaml:"endpoints"`
	ItemsPath          Expressions            `yaml:"items_path"`
	FieldMap           map[string]Expressions `yaml:"field_map" validate:"required"`
	Headers            map[string]string      `yaml:"headers"`
	Params             map[string]string      `yaml:"params"`
	Prewarm            []string               `yaml:"prewarm"`
	DiscoverCategories *DiscoveryConfig       `yaml:"discover_categories"`
	ProductURLTemplate string                 `yaml:"product_url_template"`
}

// AllEndpoints returns the configured endpoint list, preferring Endpoints
// over the single Endpoint form.
func (c *APIConfig) AllEndpoints() []string {
	if len(c.Endpoints) > 0 {
		return c.Endpoints
	}
	if c.Endpoint != "" {
		return []string{c.Endpoint}
	}
	return nil
}

// HTMLConfig describes CSS-selector extraction for one site. When
// ProductSelector is set, products are extracted directly from category
// pages; otherwise ProductLinkSelector collects links and each product page
// is scraped with ProductSelectors.
type HTMLConfig struct {
	CategoryURLs        []string          `yaml:"category_urls"`
	Sitemaps            []string          `yaml:"sitemaps"`
	SitemapURLContains  []string          `yaml:"sitemap_url_contains"`
	ProductSelector     string            `yaml:"product_selector"`
	ProductLinkSelector string            `yaml:"product_link_selector"`
	ProductSelectors    map[string]string `yaml:"product_selectors" validate:"required"`
	Headers             map[string]string `yaml:"headers"`
	Prewarm             []string          `yaml:"prewarm"`
}

// SiteConfig is one site's declarative configuration. Exactly one of API or
// HTML must be set.
type SiteConfig struct {
	Brand         string      `yaml:"brand" validate:"required"`
	Merchant      string      `yaml:"merchant"`
	Source        string      `yaml:"source" validate:"required"`
	Country       string      `yaml:"country"`
	RespectRobots *bool       `yaml:"respect_robots"`
	API           *APIConfig  `yaml:"api"`
	HTML          *HTMLConfig `yaml:"html"`
}

// MerchantName returns the configured merchant, falling back to the brand.
func (s *SiteConfig) MerchantName() string {
	if s.Merchant != "" {
		return s.Merchant
	}
	return s.Brand
}

// Extraction modes.
const (
	ModeAPI  = "api"
	ModeHTML = "html"
)

// Mode returns the extraction mode the configuration shape selects, or an
// empty string when neither is set.
func (s *SiteConfig) Mode() string {
	if s.API != nil {
		return ModeAPI
	}
	if s.HTML != nil {
		return ModeHTML
	}
	return ""
}
