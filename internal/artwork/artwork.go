// Package artwork resolves rendered image references into uploadable files.
//
// Remote images are fetched from Emby through an optional on-disk cache
// keyed by item ID and image tag. Local files (series folder images) are
// read directly. When the preferred image cannot be produced the payload's
// fallback asset is used instead; artwork problems never fail a render.
package artwork

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"tools.zach/dev/embycord/internal/atomicfile"
	"tools.zach/dev/embycord/internal/discord"
	"tools.zach/dev/embycord/internal/emby"
	"tools.zach/dev/embycord/internal/media"
)

// ErrNoImage is returned when a source cannot be turned into a file.
var ErrNoImage = errors.New("artwork: no image")

// maxLocalBytes caps local image files.
const maxLocalBytes = 16 << 20

// Fetcher downloads remote item images.
type Fetcher interface {
	FetchImage(ctx context.Context, itemID, tag string) (emby.Image, error)
}

// ///////////////////////////////////////////////
// Resolver
// ///////////////////////////////////////////////

// Resolver turns [media.ImageSource] values into [discord.File] attachments.
type Resolver struct {
	fetcher    Fetcher
	assetsDir  string
	cacheDir   string
	timeout    time.Duration
	logger     *slog.Logger
	onFallback func(media.Kind)
	// flight collapses concurrent fetches of one image, e.g. two users
	// watching the same movie in the same tick.
	flight singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithAssetsDir sets the placeholder asset directory.
func WithAssetsDir(dir string) Option { return func(r *Resolver) { r.assetsDir = dir } }

// WithCacheDir enables the on-disk cache for tagged remote images.
func WithCacheDir(dir string) Option { return func(r *Resolver) { r.cacheDir = dir } }

// WithTimeout bounds each remote fetch.
func WithTimeout(d time.Duration) Option { return func(r *Resolver) { r.timeout = d } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(r *Resolver) { r.logger = l } }

// WithFallbackHook is called whenever a payload falls back to its asset
// or loses its image.
func WithFallbackHook(fn func(media.Kind)) Option { return func(r *Resolver) { r.onFallback = fn } }

// New creates a Resolver backed by fetcher.
func New(fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher: fetcher,
		timeout: 5 * time.Second,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Images resolves a payload's primary image (or its fallback asset) and its
// secondary image. Either result may be nil.
func (r *Resolver) Images(ctx context.Context, p media.Payload) (primary, secondary *discord.File) {
	if p.Primary != nil {
		f, err := r.Resolve(ctx, *p.Primary)
		if err == nil {
			primary = &f
		} else {
			r.logger.Debug("primary artwork unavailable", "kind", p.Kind.String(), "error", err)
		}
	}
	if primary == nil && p.Fallback != "" {
		f, err := r.Asset(p.Fallback)
		if err == nil {
			primary = &f
		} else {
			r.logger.Warn("fallback asset unavailable", "asset", p.Fallback, "error", err)
		}
		r.fallback(p.Kind)
	} else if primary == nil && p.Primary != nil {
		r.fallback(p.Kind)
	}

	if p.Secondary != nil {
		f, err := r.Resolve(ctx, *p.Secondary)
		if err == nil {
			secondary = &f
		} else {
			r.logger.Debug("secondary artwork unavailable", "kind", p.Kind.String(), "error", err)
		}
	}
	return primary, secondary
}

func (r *Resolver) fallback(k media.Kind) {
	if r.onFallback != nil {
		r.onFallback(k)
	}
}

// Resolve produces the file for one image source.
func (r *Resolver) Resolve(ctx context.Context, src media.ImageSource) (discord.File, error) {
	switch src.Origin {
	case media.OriginFile:
		data, err := readLimited(src.Path)
		if err != nil {
			return discord.File{}, fmt.Errorf("%w: %w", ErrNoImage, err)
		}
		return newFile(src.Name, data, ""), nil
	case media.OriginRemote:
		return r.remote(ctx, src)
	default:
		return discord.File{}, fmt.Errorf("%w: unknown origin %d", ErrNoImage, src.Origin)
	}
}

// Asset loads a placeholder image from the assets directory.
func (r *Resolver) Asset(name string) (discord.File, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return discord.File{}, fmt.Errorf("%w: invalid asset name %q", ErrNoImage, name)
	}
	data, err := readLimited(filepath.Join(r.assetsDir, name))
	if err != nil {
		return discord.File{}, fmt.Errorf("%w: %w", ErrNoImage, err)
	}
	return discord.File{Name: name, ContentType: http.DetectContentType(data), Data: data}, nil
}

// remote fetches a remote image through the cache.
func (r *Resolver) remote(ctx context.Context, src media.ImageSource) (discord.File, error) {
	if r.fetcher == nil {
		return discord.File{}, fmt.Errorf("%w: no fetcher", ErrNoImage)
	}
	cachePath := r.cachePath(src)
	if cachePath != "" {
		if data, err := os.ReadFile(cachePath); err == nil && len(data) > 0 {
			return newFile(src.Name, data, ""), nil
		}
	}

	v, err, shared := r.flight.Do(src.ItemID+"\x00"+src.Tag, func() (any, error) {
		fctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		img, err := r.fetcher.FetchImage(fctx, src.ItemID, src.Tag)
		if err != nil {
			return nil, err
		}
		if cachePath != "" {
			if err := atomicfile.Write(cachePath, img.Data, 0o644); err != nil {
				r.logger.Debug("failed to write artwork cache", "path", cachePath, "error", err)
			}
		}
		return img, nil
	})
	if err != nil {
		return discord.File{}, fmt.Errorf("%w: %w", ErrNoImage, err)
	}
	if shared {
		r.logger.Debug("shared artwork fetch", "item", src.ItemID)
	}
	img := v.(emby.Image)
	return newFile(src.Name, img.Data, img.ContentType), nil
}

// cachePath returns where a tagged remote image is cached, or "" when
// caching is off or the image is untagged (untagged images can change).
func (r *Resolver) cachePath(src media.ImageSource) string {
	if r.cacheDir == "" || src.Tag == "" || src.ItemID == "" {
		return ""
	}
	return filepath.Join(r.cacheDir, sanitize(src.ItemID)+"-"+sanitize(src.Tag)+".img")
}

// Prune removes cache entries not modified within maxAge.
func (r *Resolver) Prune(maxAge time.Duration) (int, error) {
	if r.cacheDir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(r.cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading artwork cache: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".img" {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(r.cacheDir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// newFile names an attachment with an extension matching its content.
func newFile(name string, data []byte, contentType string) discord.File {
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if ext, ok := extensions[contentType]; ok {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ext
	}
	return discord.File{Name: name, ContentType: contentType, Data: data}
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

func readLimited(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	if info.Size() > maxLocalBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", path, maxLocalBytes)
	}
	return os.ReadFile(path)
}

// sanitize keeps cache file names to a portable character set.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
