package emby

// Session is one active client session reported by GET /Sessions.
type Session struct {
	ID             string    `json:"Id"`
	UserName       string    `json:"UserName"`
	Client         string    `json:"Client"`
	DeviceName     string    `json:"DeviceName"`
	NowPlayingItem *Item     `json:"NowPlayingItem,omitempty"`
	PlayState      PlayState `json:"PlayState"`
}

// Playing reports whether the session has an item loaded.
func (s Session) Playing() bool {
	return s.NowPlayingItem != nil && s.NowPlayingItem.ID != ""
}

// Item is the subset of an Emby BaseItemDto the daemon renders.
type Item struct {
	ID                string            `json:"Id"`
	Type              string            `json:"Type"`
	MediaType         string            `json:"MediaType,omitempty"`
	Name              string            `json:"Name"`
	SeriesName        string            `json:"SeriesName,omitempty"`
	IndexNumber       *int              `json:"IndexNumber,omitempty"`
	ParentIndexNumber *int              `json:"ParentIndexNumber,omitempty"`
	Path              string            `json:"Path,omitempty"`
	Artists           []string          `json:"Artists,omitempty"`
	Album             string            `json:"Album,omitempty"`
	AlbumArtist       string            `json:"AlbumArtist,omitempty"`
	ProductionYear    int               `json:"ProductionYear,omitempty"`
	OfficialRating    string            `json:"OfficialRating,omitempty"`
	ImageTags         map[string]string `json:"ImageTags,omitempty"`
	Size              int64             `json:"Size,omitempty"`
	Overview          string            `json:"Overview,omitempty"`
	Genres            []string          `json:"Genres,omitempty"`
	RunTimeTicks      int64             `json:"RunTimeTicks,omitempty"`
}

// PrimaryTag returns the cache tag of the item's primary image, if any.
func (i Item) PrimaryTag() (string, bool) {
	tag, ok := i.ImageTags["Primary"]
	return tag, ok && tag != ""
}

// PlayState is the playback position of a session.
type PlayState struct {
	// PositionTicks is in 100ns units.
	PositionTicks int64 `json:"PositionTicks"`
	IsPaused      bool  `json:"IsPaused"`
}

// Image is a fetched artwork payload.
type Image struct {
	Data        []byte
	ContentType string
}
