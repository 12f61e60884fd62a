// gen-assets renders the placeholder images the daemon posts when nothing is
// playing or an item has no artwork.
//
// Reads card text and styling from data/assets.json, resolves the font, and
// writes one PNG per card to the output directory. The file names must match
// the [assets] entries in config.toml.
//
// Font resolution:
//  1. Local file path from assets.json "font" field
//  2. Google Fonts download from "font_fallback" field (e.g. "google:Inter:700")
//  3. The bundled Go Bold font
//
// Usage:
//
//	cd tools/generate-assets && go run .
//	cd tools/generate-assets && go run . -cards ../../data/assets.json -out ~/.embycord/assets
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tdewolff/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
)

func main() {
	// Default paths assume running from tools/generate-assets/
	cardsFile := flag.String("cards", "../../data/assets.json", "Path to assets.json")
	outDir := flag.String("out", "../../assets", "Output directory for the rendered PNGs")
	flag.Parse()

	repoRoot, err := filepath.Abs(filepath.Join(filepath.Dir(*cardsFile), ".."))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: resolve repo root: %v\n", err)
		os.Exit(1)
	}
	fontCacheDir := filepath.Join(repoRoot, "assets", "fonts", ".cache")

	data, err := LoadAssetData(*cardsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load cards: %v\n", err)
		os.Exit(1)
	}
	if len(data.Cards) == 0 {
		fmt.Fprintln(os.Stderr, "error: no cards defined in assets.json")
		os.Exit(1)
	}

	fontBytes, err := resolveFont(data, repoRoot, fontCacheDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	otFont, err := opentype.Parse(fontBytes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: parse font: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error: create output dir: %v\n", err)
		os.Exit(1)
	}

	for _, name := range data.Names() {
		if filepath.Base(name) != name || !strings.HasSuffix(strings.ToLower(name), ".png") {
			fmt.Fprintf(os.Stderr, "error: card name %q must be a bare .png file name\n", name)
			os.Exit(1)
		}
		style := data.Resolved(name)
		pngData, err := RenderCard(style, otFont)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: render %s: %v\n", name, err)
			os.Exit(1)
		}
		outPath := filepath.Join(*outDir, name)
		if err := os.WriteFile(outPath, pngData, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "error: write %s: %v\n", outPath, err)
			os.Exit(1)
		}
		fmt.Printf("  %s (%dx%d)\n", name, style.Width, style.Height)
	}

	fmt.Printf("Done. Generated %d placeholder images.\n", len(data.Cards))
}

// resolveFont loads the local font, falling back to Google Fonts and then
// to Go Bold.
func resolveFont(data *AssetData, repoRoot, fontCacheDir string) ([]byte, error) {
	if data.Font != "" {
		localPath := filepath.Join(repoRoot, data.Font)
		if b, err := os.ReadFile(localPath); err == nil {
			fmt.Printf("font: %s (local)\n", data.Font)
			return toSFNT(localPath, b)
		}
	}

	if data.FontFallback != "" {
		if family, weight, ok := ParseGoogleFontSpec(data.FontFallback); ok {
			fmt.Printf("font: %s wght@%s (Google Fonts)\n", family, weight)
			b, err := FetchGoogleFont(data.FontFallback, fontCacheDir)
			if err == nil {
				return b, nil
			}
			fmt.Fprintf(os.Stderr, "warning: google fonts fallback failed: %v\n", err)
		}
	}

	fmt.Println("font: Go Bold (bundled)")
	return gobold.TTF, nil
}

// toSFNT converts WOFF2 font data to SFNT; other formats pass through.
func toSFNT(name string, data []byte) ([]byte, error) {
	if !isWOFF2(name, data) {
		return data, nil
	}
	sfnt, err := font.ToSFNT(data)
	if err != nil {
		return nil, fmt.Errorf("convert woff2 to sfnt: %w", err)
	}
	return sfnt, nil
}

// isWOFF2 checks the extension, then the "wOF2" magic bytes.
func isWOFF2(name string, data []byte) bool {
	if strings.HasSuffix(strings.ToLower(name), ".woff2") {
		return true
	}
	return len(data) >= 4 && string(data[:4]) == "wOF2"
}
