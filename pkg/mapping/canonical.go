package mapping

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Ramsey-B/clover/pkg/models"
)

var (
	priceCleanRegex    = regexp.MustCompile(`[^0-9.,]`)
	trailingColorRegex = regexp.MustCompile(`(?:\s[-|]\s|\s*[\[(])([A-Za-z][A-Za-z\-/ ]{1,24})[)\]]?\s*$`)
	trailingSepRegex   = regexp.MustCompile(`\s*[-|]\s*$`)
	leadingSepRegex    = regexp.MustCompile(`^[\-|]\s*`)
	multiSpaceRegex    = regexp.MustCompile(`\s{2,}`)
)

var availabilityAliases = map[string]models.Availability{
	"in_stock":     models.AvailabilityInStock,
	"instock":      models.AvailabilityInStock,
	"in stock":     models.AvailabilityInStock,
	"available":    models.AvailabilityInStock,
	"out_of_stock": models.AvailabilityOutOfStock,
	"out-of-stock": models.AvailabilityOutOfStock,
	"outofstock":   models.AvailabilityOutOfStock,
	"sold_out":     models.AvailabilityOutOfStock,
	"sold-out":     models.AvailabilityOutOfStock,
	"sold out":     models.AvailabilityOutOfStock,
	"unavailable":  models.AvailabilityOutOfStock,
	"coming_soon":  models.AvailabilityUnknown,
	"coming-soon":  models.AvailabilityUnknown,
	"preorder":     models.AvailabilityUnknown,
	"pre-order":    models.AvailabilityUnknown,
}

// NormalizeAvailability maps raw availability values onto the canonical enum.
// Bools map directly, unrecognized text maps to unknown.
func NormalizeAvailability(raw any) models.Availability {
	switch v := raw.(type) {
	case nil:
		return models.AvailabilityUnknown
	case bool:
		if v {
			return models.AvailabilityInStock
		}
		return models.AvailabilityOutOfStock
	default:
		text := strings.ToLower(strings.TrimSpace(stringValue(raw)))
		if avail, ok := availabilityAliases[text]; ok {
			return avail
		}
		return models.AvailabilityUnknown
	}
}

var thousand = decimal.NewFromInt(1000)
var hundred = decimal.NewFromInt(100)

// ParsePrice normalizes raw price values to a decimal amount. Integral values
// of 1000 or more are treated as minor units and divided by 100. Strings are
// stripped of currency symbols and may use a comma as the decimal separator.
// Unparseable values yield nil.
func ParsePrice(raw any) *decimal.Decimal {
	switch v := raw.(type) {
	case nil:
		return nil
	case int:
		return scaleMinorUnits(decimal.NewFromInt(int64(v)))
	case int64:
		return scaleMinorUnits(decimal.NewFromInt(v))
	case float64:
		return scaleMinorUnits(decimal.NewFromFloat(v))
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return nil
		}
		return scaleMinorUnits(d)
	case string:
		s := priceCleanRegex.ReplaceAllString(strings.TrimSpace(v), "")
		if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
			s = strings.Replace(s, ",", ".", 1)
		}
		s = strings.ReplaceAll(s, ",", "")
		// Collapse thousand separators when more than one dot remains.
		if strings.Count(s, ".") > 1 {
			parts := strings.Split(s, ".")
			s = strings.Join(parts[:len(parts)-1], "") + "." + parts[len(parts)-1]
		}
		if s == "" {
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil
		}
		return scaleMinorUnits(d)
	default:
		return nil
	}
}

func scaleMinorUnits(d decimal.Decimal) *decimal.Decimal {
	if d.IsInteger() && d.GreaterThanOrEqual(thousand) {
		d = d.Div(hundred)
	}
	return &d
}

// NormalizeColors flattens raw color values to a deduplicated string slice.
// Accepts a single string, a list of strings, or nested lists.
func NormalizeColors(raw any) []string {
	switch v := raw.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
		return nil
	case []any:
		flat := flattenStrings(v)
		if len(flat) == 0 {
			return nil
		}
		seen := make(map[string]bool, len(flat))
		unique := make([]string, 0, len(flat))
		for _, s := range flat {
			key := strings.ToLower(s)
			if !seen[key] {
				seen[key] = true
				unique = append(unique, s)
			}
		}
		return unique
	case []string:
		anySlice := make([]any, len(v))
		for i, s := range v {
			anySlice[i] = s
		}
		return NormalizeColors(anySlice)
	default:
		return nil
	}
}

// NormalizeSizes flattens raw size values to a comma-separated string.
func NormalizeSizes(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		flat := flattenStrings(v)
		if len(flat) == 0 {
			return ""
		}
		seen := make(map[string]bool, len(flat))
		unique := make([]string, 0, len(flat))
		for _, s := range flat {
			if !seen[s] {
				seen[s] = true
				unique = append(unique, s)
			}
		}
		return strings.Join(unique, ", ")
	default:
		return ""
	}
}

func flattenStrings(values []any) []string {
	var flat []string
	for _, v := range values {
		switch s := v.(type) {
		case string:
			if t := strings.TrimSpace(s); t != "" {
				flat = append(flat, t)
			}
		case []any:
			flat = append(flat, flattenStrings(s)...)
		}
	}
	return flat
}

// TrailingColorToken extracts a color candidate from the tail of a product
// description, e.g. "Wool coat - Navy" or "Relaxed tee (Black)".
func TrailingColorToken(desc string) string {
	m := trailingColorRegex.FindStringSubmatch(desc)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// StripColorTokens removes known color words from a description and cleans
// up leftover separators.
func StripColorTokens(desc string, colors []string) string {
	for _, c := range colors {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(c) + `\b`)
		if err != nil {
			continue
		}
		desc = re.ReplaceAllString(desc, "")
	}
	desc = trailingSepRegex.ReplaceAllString(desc, "")
	desc = leadingSepRegex.ReplaceAllString(desc, "")
	desc = multiSpaceRegex.ReplaceAllString(desc, " ")
	return strings.Trim(desc, "- |,;:()[] ")
}

// BuildProductURL fills a product URL template from SEO fields in the raw
// item. Supported placeholders are {keyword}, {id} and {discern_id}. Returns
// an empty string when the template cannot be fully resolved.
func BuildProductURL(template string, flat map[string]any, externalID string) string {
	keyword := stringValue(flat["seo_keyword"])
	if keyword == "" {
		return ""
	}
	id := stringValue(flat["seo_product_id"])
	if id == "" {
		id = stringValue(flat["id"])
	}
	url := strings.NewReplacer(
		"{keyword}", keyword,
		"{id}", id,
		"{discern_id}", externalID,
	).Replace(template)
	if strings.Contains(url, "{") {
		return ""
	}
	return url
}

// stringValue renders a raw value as a trimmed string. Numbers are rendered
// without a trailing exponent so numeric external ids stay stable.
func stringValue(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
