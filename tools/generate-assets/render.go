// render.go implements PNG rendering for placeholder cards. [RenderCard]
// draws one or more centered text lines on a solid background.

package main

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// RenderCard renders a placeholder card and returns the PNG bytes.
func RenderCard(style CardStyle, otFont *opentype.Font) ([]byte, error) {
	if err := style.Validate(); err != nil {
		return nil, err
	}
	bgColor, err := ParseHexColor(style.BgColor)
	if err != nil {
		return nil, fmt.Errorf("parse bg_color: %w", err)
	}
	fgColor, err := ParseHexColor(style.FgColor)
	if err != nil {
		return nil, fmt.Errorf("parse fg_color: %w", err)
	}

	face, err := opentype.NewFace(otFont, &opentype.FaceOptions{
		Size:    float64(style.FontSize),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	defer face.Close()

	img := image.NewNRGBA(image.Rect(0, 0, style.Width, style.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(bgColor), image.Point{}, draw.Src)

	lines := splitLines(style.Text)
	if len(lines) == 0 {
		return encodePNG(img)
	}

	// Lines share one line height so mixed glyph heights stay aligned.
	metrics := face.Metrics()
	lineH := (metrics.Ascent + metrics.Descent).Ceil()
	blockH := len(lines)*lineH + (len(lines)-1)*style.LineGap
	top := (style.Height - blockH) / 2

	d := &font.Drawer{Dst: img, Src: image.NewUniform(fgColor), Face: face}
	for i, line := range lines {
		w := d.MeasureString(line).Ceil()
		x := (style.Width - w) / 2
		y := top + i*(lineH+style.LineGap) + metrics.Ascent.Ceil()
		d.Dot = fixed.P(x, y)
		d.DrawString(line)
	}
	return encodePNG(img)
}

// splitLines breaks text on newlines, dropping surrounding blank lines.
func splitLines(text string) []string {
	text = strings.Trim(text, "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
