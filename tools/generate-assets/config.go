// config.go defines the placeholder card configuration loaded from
// data/assets.json. [AssetData] holds shared defaults plus one [CardStyle]
// per output file.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// CardStyle is the visual styling of one placeholder card.
type CardStyle struct {
	// Text is drawn centered; "\n" separates lines.
	Text string `json:"text,omitempty"`
	// BgColor is the background hex color (e.g. "#1F2933").
	BgColor string `json:"bg_color,omitempty"`
	// FgColor is the text hex color.
	FgColor string `json:"fg_color,omitempty"`
	// Width and Height are the canvas size in pixels.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	// FontSize is the font size in points at 72 DPI.
	FontSize int `json:"font_size,omitempty"`
	// LineGap is extra spacing between lines in pixels.
	LineGap int `json:"line_gap,omitempty"`
}

// AssetData holds the card list read from data/assets.json.
type AssetData struct {
	// Font is a local font file path relative to the repo root.
	Font string `json:"font,omitempty"`
	// FontFallback is a Google Fonts spec (e.g. "google:Inter:700") used
	// when Font is missing.
	FontFallback string `json:"font_fallback,omitempty"`
	// Defaults is inherited by every card.
	Defaults CardStyle `json:"defaults"`
	// Cards maps output file names (e.g. "Nothing_Playing.png") to overrides.
	Cards map[string]CardStyle `json:"cards"`
}

// Resolved returns the effective style of a card: defaults, then overrides.
func (d *AssetData) Resolved(name string) CardStyle {
	style := d.Defaults
	if c, ok := d.Cards[name]; ok {
		mergeCardStyle(&style, c)
	}
	return style
}

// Names returns the card file names in sorted order.
func (d *AssetData) Names() []string {
	names := make([]string, 0, len(d.Cards))
	for n := range d.Cards {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// mergeCardStyle applies non-zero fields from src onto dst.
func mergeCardStyle(dst *CardStyle, src CardStyle) {
	if src.Text != "" {
		dst.Text = src.Text
	}
	if src.BgColor != "" {
		dst.BgColor = src.BgColor
	}
	if src.FgColor != "" {
		dst.FgColor = src.FgColor
	}
	if src.Width != 0 {
		dst.Width = src.Width
	}
	if src.Height != 0 {
		dst.Height = src.Height
	}
	if src.FontSize != 0 {
		dst.FontSize = src.FontSize
	}
	if src.LineGap != 0 {
		dst.LineGap = src.LineGap
	}
}

// Validate rejects styles that cannot be rendered.
func (s CardStyle) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("size must be positive, got %dx%d", s.Width, s.Height)
	}
	if s.FontSize <= 0 {
		return fmt.Errorf("font_size must be positive, got %d", s.FontSize)
	}
	return nil
}

// LoadAssetData reads and parses an assets.json file.
func LoadAssetData(path string) (*AssetData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ad AssetData
	if err := json.Unmarshal(data, &ad); err != nil {
		return nil, err
	}
	return &ad, nil
}
