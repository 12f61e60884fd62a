package media

// Mode selects how the lifecycle manager updates an existing message.
type Mode uint8

const (
	// ModeReplace deletes the old message and posts a new one so the status
	// resurfaces at the bottom of the thread.
	ModeReplace Mode = iota
	// ModeEdit edits the existing message in place.
	ModeEdit
)

// Origin says where an image comes from.
type Origin uint8

const (
	// OriginRemote is an item image served by Emby.
	OriginRemote Origin = iota
	// OriginFile is a file on the local filesystem.
	OriginFile
)

// ImageSource references artwork without fetching it.
type ImageSource struct {
	Origin Origin
	// ItemID and Tag address a remote image.
	ItemID string
	Tag    string
	// Path addresses a local file.
	Path string
	// Name is the attachment file name.
	Name string
}

// Field is a titled block in the rendered card.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Payload is the rendered presentation of one playing item.
type Payload struct {
	Kind Kind
	// TypeName is the Emby item type, lowercased.
	TypeName    string
	Title       string
	Description string
	Fields      []Field
	// Status is the playback line, e.g. "Playing · 1:02 / 1:45:00".
	Status string
	// Primary is the main image, if any.
	Primary *ImageSource
	// Fallback names the placeholder asset used when Primary cannot be
	// resolved. Empty means no image.
	Fallback string
	// Secondary is an optional extra image posted as a second message.
	Secondary *ImageSource
	Mode      Mode
}
