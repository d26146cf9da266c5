// Package sites loads and validates the per-site declarative configuration.
package sites

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"

	"github.com/Ramsey-B/clover/pkg/models"
)

var validate = validator.New()

// Load reads a YAML file containing a list of site configurations.
func Load(path string) ([]models.SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sites config %s: %w", path, err)
	}

	var sites []models.SiteConfig
	if err := yaml.Unmarshal(data, &sites); err != nil {
		return nil, fmt.Errorf("failed to parse sites config %s: %w", path, err)
	}

	for i := range sites {
		if err := Validate(&sites[i]); err != nil {
			return nil, fmt.Errorf("site %q: %w", sites[i].Brand, err)
		}
	}

	return sites, nil
}

// Validate checks one site configuration for structural problems.
func Validate(site *models.SiteConfig) error {
	if err := validate.Struct(site); err != nil {
		return err
	}

	if (site.API == nil) == (site.HTML == nil) {
		return fmt.Errorf("exactly one of 'api' or 'html' must be configured")
	}

	if site.API != nil {
		if len(site.API.AllEndpoints()) == 0 && site.API.DiscoverCategories == nil {
			return fmt.Errorf("api config needs an endpoint, endpoints list or discover_categories")
		}
		if len(site.API.FieldMap) == 0 {
			return fmt.Errorf("api config needs a field_map")
		}
	}

	if site.HTML != nil {
		if len(site.HTML.CategoryURLs) == 0 && len(site.HTML.Sitemaps) == 0 {
			return fmt.Errorf("html config needs category_urls or sitemaps")
		}
		if site.HTML.ProductSelector == "" && site.HTML.ProductLinkSelector == "" {
			return fmt.Errorf("html config needs product_selector or product_link_selector")
		}
		if len(site.HTML.ProductSelectors) == 0 {
			return fmt.Errorf("html config needs product_selectors")
		}
	}

	return nil
}

// Select filters sites by a comma-separated list of brand names, or returns
// all sites for "all". Unknown names are reported as an error so typos do
// not silently run nothing.
func Select(all []models.SiteConfig, requested string) ([]models.SiteConfig, error) {
	if strings.EqualFold(strings.TrimSpace(requested), "all") {
		return all, nil
	}

	wanted := make(map[string]bool)
	for _, name := range strings.Split(requested, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			wanted[name] = true
		}
	}

	var selected []models.SiteConfig
	for _, site := range all {
		if wanted[strings.ToLower(site.Brand)] {
			selected = append(selected, site)
			delete(wanted, strings.ToLower(site.Brand))
		}
	}

	if len(wanted) > 0 {
		var missing []string
		for name := range wanted {
			missing = append(missing, name)
		}
		return nil, fmt.Errorf("unknown sites requested: %s", strings.Join(missing, ", "))
	}

	return selected, nil
}
