// google_fonts.go downloads font files from the Google Fonts CSS API.
//
// Font specs use the format "google:FAMILY:WEIGHT" (e.g. "google:Inter:700").
// Downloaded fonts are cached locally so they aren't re-fetched on every run.

package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// googleCSSBase is the Google Fonts CSS2 endpoint.
const googleCSSBase = "https://fonts.googleapis.com/css2"

// fontURLRe extracts the first font file URL from a CSS response.
// Matches: url(https://fonts.gstatic.com/s/inter/v18/xxx.woff2)
var fontURLRe = regexp.MustCompile(`url\((https?://[^)]+)\)`)

// ParseGoogleFontSpec parses a "google:Family:Weight" spec into its parts.
// Returns family, weight, and whether the spec is valid.
func ParseGoogleFontSpec(spec string) (family, weight string, ok bool) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 || parts[0] != "google" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// FetchGoogleFont downloads a font from Google Fonts, caching the result.
// Returns SFNT (TTF/OTF) bytes, converting from WOFF2 if necessary.
func FetchGoogleFont(spec, cacheDir string) ([]byte, error) {
	return (&fontFetcher{
		client:  &http.Client{Timeout: 15 * time.Second},
		cssBase: googleCSSBase,
	}).fetch(spec, cacheDir)
}

// fontFetcher resolves a CSS2 stylesheet and downloads the referenced font.
type fontFetcher struct {
	client  *http.Client
	cssBase string
}

func (f *fontFetcher) fetch(spec, cacheDir string) ([]byte, error) {
	family, weight, ok := ParseGoogleFontSpec(spec)
	if !ok {
		return nil, fmt.Errorf("invalid google font spec %q: expected google:FAMILY:WEIGHT", spec)
	}

	cacheFile := filepath.Join(cacheDir, fmt.Sprintf("%s-%s.ttf", strings.ReplaceAll(family, " ", "_"), weight))
	if data, err := os.ReadFile(cacheFile); err == nil {
		return data, nil
	}

	cssURL := fmt.Sprintf("%s?family=%s:wght@%s", f.cssBase, url.QueryEscape(family), weight)
	req, err := http.NewRequest(http.MethodGet, cssURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	// Google returns WOFF2 URLs for modern User-Agents.
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	css, err := f.get(req, 1<<20)
	if err != nil {
		return nil, fmt.Errorf("fetching CSS for %s wght@%s: %w", family, weight, err)
	}
	m := fontURLRe.FindSubmatch(css)
	if m == nil {
		return nil, fmt.Errorf("no font URL found in Google Fonts CSS response for %s wght@%s", family, weight)
	}
	fontURL := string(m[1])

	req, err = http.NewRequest(http.MethodGet, fontURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	fontData, err := f.get(req, 10<<20)
	if err != nil {
		return nil, fmt.Errorf("downloading font file: %w", err)
	}
	fontData, err = toSFNT(fontURL, fontData)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating font cache dir: %w", err)
	}
	if err := os.WriteFile(cacheFile, fontData, 0o644); err != nil {
		// Non-fatal: the font is still usable for this run.
		fmt.Fprintf(os.Stderr, "warning: failed to cache font: %v\n", err)
	}
	return fontData, nil
}

// get performs req and returns at most limit bytes of a 200 response.
func (f *fontFetcher) get(req *http.Request, limit int64) ([]byte, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", req.URL.Redacted(), resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}
