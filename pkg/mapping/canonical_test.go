package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestNormalizeAvailability(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		expected models.Availability
	}{
		{"nil", nil, models.AvailabilityUnknown},
		{"bool true", true, models.AvailabilityInStock},
		{"bool false", false, models.AvailabilityOutOfStock},
		{"in stock with spaces", " In Stock ", models.AvailabilityInStock},
		{"available", "available", models.AvailabilityInStock},
		{"sold out", "sold-out", models.AvailabilityOutOfStock},
		{"unavailable", "unavailable", models.AvailabilityOutOfStock},
		{"preorder", "preorder", models.AvailabilityUnknown},
		{"gibberish", "maybe?", models.AvailabilityUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeAvailability(tt.raw))
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		expected string
	}{
		{"plain float", 49.9, "49.9"},
		{"plain string", "49.90", "49.9"},
		{"currency prefix", "$49.90", "49.9"},
		{"currency letters", "CZK849", "849"},
		{"comma decimal", "49,90", "49.9"},
		{"minor units int", 4990, "49.9"},
		{"minor units string", "4990", "49.9"},
		{"thousand separators", "1.234.56", "1234.56"},
		{"below minor unit cutoff", 999, "999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePrice(tt.raw)
			require.NotNil(t, got)
			assert.Equal(t, tt.expected, got.String())
		})
	}

	assert.Nil(t, ParsePrice(nil))
	assert.Nil(t, ParsePrice("N/A"))
	assert.Nil(t, ParsePrice(map[string]any{}))
}

func TestNormalizeColors(t *testing.T) {
	assert.Equal(t, []string{"Navy"}, NormalizeColors("  Navy "))
	assert.Nil(t, NormalizeColors("   "))
	assert.Equal(t, []string{"Navy", "Black"}, NormalizeColors([]any{"Navy", []any{"Black", "navy"}}))
	assert.Nil(t, NormalizeColors(42))
}

func TestNormalizeSizes(t *testing.T) {
	assert.Equal(t, "S, M, L", NormalizeSizes([]any{"S", []any{"M"}, "L", "M"}))
	assert.Equal(t, "M", NormalizeSizes(" M "))
	assert.Equal(t, "", NormalizeSizes(nil))
}

func TestTrailingColorToken(t *testing.T) {
	assert.Equal(t, "Navy", TrailingColorToken("Wool coat - Navy"))
	assert.Equal(t, "Black", TrailingColorToken("Relaxed tee (Black)"))
	assert.Equal(t, "", TrailingColorToken("Plain description"))
}

func TestStripColorTokens(t *testing.T) {
	assert.Equal(t, "Wool coat", StripColorTokens("Wool coat - Navy", []string{"Navy"}))
	assert.Equal(t, "Relaxed tee", StripColorTokens("Relaxed tee (Black)", []string{"black"}))
}

func TestBuildProductURL(t *testing.T) {
	flat := map[string]any{"seo_keyword": "linen-shirt", "seo_product_id": "42"}
	url := BuildProductURL("https://x.example.com/{keyword}-p{id}.html?v1={discern_id}", flat, "abc")
	assert.Equal(t, "https://x.example.com/linen-shirt-p42.html?v1=abc", url)

	assert.Equal(t, "", BuildProductURL("https://x.example.com/{keyword}", map[string]any{}, "abc"))
}
