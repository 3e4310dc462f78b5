package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const wellFormed = `Title: Nike Vintage 90s Black Windbreaker Jacket Retro Streetwear

Brand: Nike
Size: M
Condition: Very Good

Lightweight 90s Nike windbreaker in black with a relaxed fit. Perfect for layering.

#nike #vintage #windbreaker #streetwear #90s`

func TestRepair_WellFormed(t *testing.T) {
	text, fallback := Repair(wellFormed)

	assert.False(t, fallback)
	assert.Equal(t, wellFormed, text)
}

func TestRepair(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		want         string
		wantFallback bool
	}{
		{
			name:         "empty input",
			raw:          "",
			want:         EmptyResultMessage,
			wantFallback: true,
		},
		{
			name:         "whitespace input",
			raw:          "  \n\t\n",
			want:         EmptyResultMessage,
			wantFallback: true,
		},
		{
			name:         "missing title gets placeholder",
			raw:          "Brand: Zara\nSize: S\nCondition: Good\n\nFloral summer dress.",
			want:         "Title: Clothing item\n\nBrand: Zara\nSize: S\nCondition: Good\n\nFloral summer dress.",
			wantFallback: true,
		},
		{
			name:         "empty title gets placeholder",
			raw:          "Title:   \nBrand: Zara\nSize: S\nCondition: Good",
			want:         "Title: Clothing item\n\nBrand: Zara\nSize: S\nCondition: Good",
			wantFallback: true,
		},
		{
			name:         "missing condition stays blank",
			raw:          "Title: Levi's 501 Jeans\nBrand: Levi's\nSize: W32 L32\n\nClassic straight leg.",
			want:         "Title: Levi's 501 Jeans\n\nBrand: Levi's\nSize: W32 L32\nCondition:\n\nClassic straight leg.",
			wantFallback: true,
		},
		{
			name:         "blank brand and size are not fallbacks",
			raw:          "Title: Knit Jumper\n\nBrand:\nSize:\nCondition: Fair",
			want:         "Title: Knit Jumper\n\nBrand:\nSize:\nCondition: Fair",
			wantFallback: false,
		},
		{
			name:         "no labels at all",
			raw:          "I could not identify this item.",
			want:         "Title: Clothing item\n\nBrand:\nSize:\nCondition:\n\nI could not identify this item.",
			wantFallback: true,
		},
		{
			name:         "flaws line kept after condition",
			raw:          "Title: Denim Jacket\nBrand: Lee\nSize: L\nCondition: Good\nFlaws: small mark on cuff\n\nWashed blue denim.",
			want:         "Title: Denim Jacket\n\nBrand: Lee\nSize: L\nCondition: Good\nFlaws: small mark on cuff\n\nWashed blue denim.",
			wantFallback: false,
		},
		{
			name:         "markdown labels and casing",
			raw:          "**Title:** Adidas Track Top\n- **brand:** Adidas\n* SIZE: XL\n**Condition:** excellent",
			want:         "Title: Adidas Track Top\n\nBrand: Adidas\nSize: XL\nCondition: Excellent",
			wantFallback: false,
		},
		{
			name:         "unknown condition kept verbatim",
			raw:          "Title: Scarf\nCondition: Like new",
			want:         "Title: Scarf\n\nBrand:\nSize:\nCondition: Like new",
			wantFallback: false,
		},
		{
			name:         "first occurrence wins",
			raw:          "Title: First\nTitle: Second\nCondition: New",
			want:         "Title: First\n\nBrand:\nSize:\nCondition: New\n\nTitle: Second",
			wantFallback: false,
		},
		{
			name:         "repeated label after description is kept",
			raw:          "Title: Bomber Jacket\nBrand: Alpha\nSize: M\nCondition: Good\n\nLovely jacket.\nSize: runs small, size up",
			want:         "Title: Bomber Jacket\n\nBrand: Alpha\nSize: M\nCondition: Good\n\nLovely jacket.\nSize: runs small, size up",
			wantFallback: false,
		},
		{
			name:         "windows line endings",
			raw:          "Title: Coat\r\nCondition: Good\r\n\r\nWarm wool coat.\r\n",
			want:         "Title: Coat\n\nBrand:\nSize:\nCondition: Good\n\nWarm wool coat.",
			wantFallback: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fallback := Repair(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantFallback, fallback)
		})
	}
}

func TestParse_Fields(t *testing.T) {
	l := Parse(wellFormed)

	assert.Equal(t, "Nike Vintage 90s Black Windbreaker Jacket Retro Streetwear", l.Title)
	assert.Equal(t, "Nike", l.Brand)
	assert.Equal(t, "M", l.Size)
	assert.Equal(t, "Very Good", l.Condition)
	assert.False(t, l.HasFlaws)
	assert.Contains(t, l.Description, "#nike #vintage")
}

func TestParse_DescriptionKeepsInnerBlankLines(t *testing.T) {
	l := Parse("\n\nTitle: Tee\n\nLine one.\n\nLine two.\n\n")

	assert.Equal(t, "Line one.\n\nLine two.", l.Description)
}

func TestRepair_IsStable(t *testing.T) {
	// Repairing a repaired block changes nothing.
	first, _ := Repair("Brand: Gap\nSize: 10\n\nKids hoodie.")
	second, fallback := Repair(first)

	assert.Equal(t, first, second)
	assert.True(t, fallback, "condition is still missing")
}
