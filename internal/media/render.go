package media

import (
	"fmt"
	"strings"

	"tools.zach/dev/embycord/internal/emby"
	"tools.zach/dev/embycord/internal/paths"
)

// ticksPerSecond converts Emby's 100ns ticks.
const ticksPerSecond = 10_000_000

// Attachment names for rendered images.
const (
	PosterName  = "poster.jpg"
	FolderName  = "folder.jpg"
	EpisodeName = "episode.jpg"
	CoverName   = "cover.jpg"
)

// ///////////////////////////////////////////////
// Renderer
// ///////////////////////////////////////////////

// Renderer renders items according to privacy and fallback settings.
// The zero value suppresses nothing and uses the default asset names.
type Renderer struct {
	// RestrictedRatings are official ratings whose movies are suppressed,
	// compared case-insensitively.
	RestrictedRatings []string
	// MovieMissing and SeriesMissing override the fallback asset names.
	MovieMissing  string
	SeriesMissing string
}

// renderFunc renders one kind. Returning false suppresses the item.
type renderFunc func(r *Renderer, item emby.Item) (Payload, bool)

// renderers is indexed by Kind; every slot must be populated.
var renderers = [kindCount]renderFunc{
	KindGeneric:    renderGeneric,
	KindMovie:      renderMovie,
	KindEpisode:    renderEpisode,
	KindAudio:      renderAudio,
	KindMusicVideo: renderMusicVideo,
	KindAudioBook:  renderAudioBook,
}

// Render builds the payload for item. The bool is false when the item must
// not be shown at all.
func (r *Renderer) Render(item emby.Item, play emby.PlayState) (Payload, bool) {
	kind := ParseKind(item.Type)
	p, ok := renderers[kind](r, item)
	if !ok {
		return Payload{}, false
	}
	p.Kind = kind
	p.TypeName = strings.ToLower(item.Type)
	p.Status = statusLine(play, item.RunTimeTicks)
	return p, true
}

// Restricted reports whether rating is on the restricted list.
func (r *Renderer) Restricted(rating string) bool {
	rating = strings.TrimSpace(rating)
	if rating == "" {
		return false
	}
	for _, rr := range r.RestrictedRatings {
		if strings.EqualFold(rr, rating) {
			return true
		}
	}
	return false
}

func (r *Renderer) movieMissing() string {
	if r.MovieMissing != "" {
		return r.MovieMissing
	}
	return paths.MovieMissingAsset
}

func (r *Renderer) seriesMissing() string {
	if r.SeriesMissing != "" {
		return r.SeriesMissing
	}
	return paths.SeriesMissingAsset
}

// ///////////////////////////////////////////////
// Per-Kind Renderers
// ///////////////////////////////////////////////

func renderMovie(r *Renderer, item emby.Item) (Payload, bool) {
	if r.Restricted(item.OfficialRating) {
		return Payload{}, false
	}

	title := orDefault(item.Name, "Unknown Movie")
	if item.ProductionYear > 0 {
		title = fmt.Sprintf("%s (%d)", title, item.ProductionYear)
	}

	var lines []string
	if item.Size > 0 {
		lines = append(lines, fmt.Sprintf("**Size:** %.2f GB", float64(item.Size)/(1<<30)))
	}
	if len(item.Genres) > 0 {
		lines = append(lines, "**Genres:** "+strings.Join(item.Genres, ", "))
	}
	lines = append(lines, "**Overview:** "+orDefault(item.Overview, "No overview available"))

	tag, _ := item.PrimaryTag()
	return Payload{
		Title:       title,
		Description: strings.Join(lines, "\n"),
		Primary:     &ImageSource{Origin: OriginRemote, ItemID: item.ID, Tag: tag, Name: PosterName},
		Fallback:    r.movieMissing(),
		Mode:        ModeReplace,
	}, true
}

func renderEpisode(r *Renderer, item emby.Item) (Payload, bool) {
	p := Payload{
		Title:    EpisodeTitle(item),
		Fields:   []Field{{Name: "Overview", Value: orDefault(item.Overview, "No overview available")}},
		Fallback: r.seriesMissing(),
		Mode:     ModeReplace,
	}
	if folder := seriesFolderImage(item.Path); folder != "" {
		p.Primary = &ImageSource{Origin: OriginFile, Path: folder, Name: FolderName}
	}
	if tag, ok := item.PrimaryTag(); ok {
		p.Secondary = &ImageSource{Origin: OriginRemote, ItemID: item.ID, Tag: tag, Name: EpisodeName}
	}
	return p, true
}

func renderAudio(r *Renderer, item emby.Item) (Payload, bool) {
	artist, title := ArtistAndTitle(item)
	lines := []string{
		"**Title:** " + title,
		"**Artist:** " + artist,
		"**Album:** " + orDefault(item.Album, "Unknown Album"),
	}
	if item.ProductionYear > 0 {
		lines = append(lines, fmt.Sprintf("**Year:** %d", item.ProductionYear))
	}
	return Payload{
		Title:       "Audio",
		Description: strings.Join(lines, "\n"),
		Primary:     taggedPrimary(item, CoverName),
		Mode:        ModeReplace,
	}, true
}

func renderMusicVideo(r *Renderer, item emby.Item) (Payload, bool) {
	artist, title := ArtistAndTitle(item)
	year := "Unknown Year"
	if item.ProductionYear > 0 {
		year = fmt.Sprint(item.ProductionYear)
	}
	lines := []string{
		"**Artist:** " + artist,
		"**Album:** " + orDefault(item.Album, "Unknown Album"),
		"**Year:** " + year,
		"**Title:** " + title,
	}
	return Payload{
		Title:       "Music Video",
		Description: strings.Join(lines, "\n"),
		Primary:     taggedPrimary(item, CoverName),
		Mode:        ModeReplace,
	}, true
}

func renderAudioBook(r *Renderer, item emby.Item) (Payload, bool) {
	return Payload{
		Title:       orDefault(item.Name, "Unknown Audio Book"),
		Description: "Currently listening to an audiobook.",
		Mode:        ModeEdit,
	}, true
}

func renderGeneric(r *Renderer, item emby.Item) (Payload, bool) {
	kind := strings.ToLower(orDefault(item.Type, "media"))
	return Payload{
		Title:       orDefault(item.Name, "Unknown "+kind),
		Description: fmt.Sprintf("Currently watching/listening to %s.", kind),
		Mode:        ModeEdit,
	}, true
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// EpisodeTitle formats "{series} - S01E03: {name}". The season/episode code
// is dropped when either number is missing.
func EpisodeTitle(item emby.Item) string {
	series := orDefault(item.SeriesName, "Unknown Series")
	title := series
	if item.ParentIndexNumber != nil && item.IndexNumber != nil {
		title = fmt.Sprintf("%s - S%02dE%02d", series, *item.ParentIndexNumber, *item.IndexNumber)
	}
	if item.Name != "" {
		title += ": " + item.Name
	}
	return title
}

// ArtistAndTitle picks the artist from AlbumArtist, then Artists, then the
// part of Name before the first " - ". The last rule is a heuristic: a
// title that itself contains " - " is split at its first occurrence.
func ArtistAndTitle(item emby.Item) (artist, title string) {
	title = orDefault(item.Name, "Unknown Title")
	switch {
	case item.AlbumArtist != "":
		return item.AlbumArtist, title
	case len(item.Artists) > 0:
		return strings.Join(item.Artists, ", "), title
	}
	if a, t, ok := strings.Cut(item.Name, " - "); ok && strings.TrimSpace(a) != "" && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(a), strings.TrimSpace(t)
	}
	return "Unknown Artist", title
}

// seriesFolderImage returns the folder.jpg path two directories above an
// episode file, keeping the separator style of the source path.
func seriesFolderImage(p string) string {
	if p == "" {
		return ""
	}
	sep := "/"
	if strings.Contains(p, `\`) && !strings.Contains(p, "/") {
		sep = `\`
	}
	dir := parentDir(parentDir(p, sep), sep)
	if dir == "" {
		return ""
	}
	return dir + sep + "folder.jpg"
}

// parentDir strips the last path element.
func parentDir(p, sep string) string {
	p = strings.TrimRight(p, sep)
	i := strings.LastIndex(p, sep)
	if i <= 0 {
		return ""
	}
	return p[:i]
}

func taggedPrimary(item emby.Item, name string) *ImageSource {
	tag, ok := item.PrimaryTag()
	if !ok {
		return nil
	}
	return &ImageSource{Origin: OriginRemote, ItemID: item.ID, Tag: tag, Name: name}
}

// statusLine renders "Playing" or "Paused" with position and runtime.
func statusLine(play emby.PlayState, runtimeTicks int64) string {
	s := "Playing"
	if play.IsPaused {
		s = "Paused"
	}
	if runtimeTicks > 0 {
		s += fmt.Sprintf(" · %s / %s", FormatTicks(play.PositionTicks), FormatTicks(runtimeTicks))
	}
	return s
}

// FormatTicks renders 100ns ticks as h:mm:ss, or m:ss under an hour.
func FormatTicks(ticks int64) string {
	if ticks < 0 {
		ticks = 0
	}
	total := ticks / ticksPerSecond
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
