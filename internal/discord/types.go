package discord

import "fmt"

// ///////////////////////////////////////////////
// Handles
// ///////////////////////////////////////////////

// Handle addresses one posted message.
type Handle struct {
	ChannelID string
	MessageID string
}

// String renders the handle as channel/message for logs.
func (h Handle) String() string {
	return fmt.Sprintf("%s/%s", h.ChannelID, h.MessageID)
}

// ///////////////////////////////////////////////
// Outgoing Messages
// ///////////////////////////////////////////////

// Message is the body of a create or edit request.
type Message struct {
	Content string  `json:"content"`
	Embeds  []Embed `json:"embeds"`
	// Files are uploaded as multipart attachments. Embeds reference them
	// as "attachment://{Name}".
	Files []File `json:"-"`
}

// File is an attachment uploaded with a message.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// AttachmentURL returns the embed URL that refers to an uploaded file.
func AttachmentURL(name string) string {
	return "attachment://" + name
}

// Embed is a rich message card.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Image       *EmbedImage  `json:"image,omitempty"`
	Thumbnail   *EmbedImage  `json:"thumbnail,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

// EmbedField is a titled block inside an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedImage points an embed at an image URL.
type EmbedImage struct {
	URL string `json:"url"`
}

// EmbedFooter is the small text at the bottom of an embed.
type EmbedFooter struct {
	Text string `json:"text"`
}

// attachment describes an uploaded file in payload_json.
type attachment struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
}

// wireMessage is the JSON form of Message including attachment metadata.
type wireMessage struct {
	Content     string       `json:"content"`
	Embeds      []Embed      `json:"embeds"`
	Attachments []attachment `json:"attachments"`
}

// ///////////////////////////////////////////////
// API Objects
// ///////////////////////////////////////////////

// User is a Discord account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

// Recent is a message returned by the history endpoint.
type Recent struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Author    User   `json:"author"`
	Timestamp string `json:"timestamp"`
}

// Handle returns the handle of the listed message.
func (r Recent) Handle() Handle {
	return Handle{ChannelID: r.ChannelID, MessageID: r.ID}
}

// Channel types used by thread resolution.
const (
	ChannelTypeGuildText     = 0
	ChannelTypePublicThread  = 11
	ChannelTypePrivateThread = 12
)

// Channel is a guild channel or thread.
type Channel struct {
	ID             string          `json:"id"`
	Type           int             `json:"type"`
	GuildID        string          `json:"guild_id"`
	ParentID       string          `json:"parent_id"`
	Name           string          `json:"name"`
	ThreadMetadata *ThreadMetadata `json:"thread_metadata,omitempty"`
}

// ThreadMetadata carries thread-only fields.
type ThreadMetadata struct {
	Archived bool `json:"archived"`
	Locked   bool `json:"locked"`
}

// IsThread reports whether the channel is a thread.
func (c Channel) IsThread() bool {
	return c.Type == ChannelTypePublicThread || c.Type == ChannelTypePrivateThread
}
