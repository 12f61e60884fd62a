package presence

import (
	"tools.zach/dev/embycord/internal/discord"
	"tools.zach/dev/embycord/internal/lifecycle"
	"tools.zach/dev/embycord/internal/media"
)

// embedColor is the accent used for every card.
const embedColor = 0x3498db

// idleTitle is a zero-width space; Discord rejects an empty embed.
const idleTitle = "\u200b"

// compose builds the outgoing messages for a rendered payload.
func compose(p media.Payload, primary, secondary *discord.File) lifecycle.Outgoing {
	embed := discord.Embed{
		Title:       p.Title,
		Description: p.Description,
		Color:       embedColor,
	}
	for _, f := range p.Fields {
		embed.Fields = append(embed.Fields, discord.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if p.Status != "" {
		embed.Footer = &discord.EmbedFooter{Text: p.Status}
	}

	msg := &discord.Message{Embeds: []discord.Embed{embed}}
	if primary != nil {
		msg.Embeds[0].Image = &discord.EmbedImage{URL: discord.AttachmentURL(primary.Name)}
		msg.Files = []discord.File{*primary}
	}

	out := lifecycle.Outgoing{Primary: msg}
	if secondary != nil {
		out.Secondary = &discord.Message{Files: []discord.File{*secondary}}
	}
	return out
}

// idleMessage builds the shared placeholder shown when nobody is playing.
func idleMessage(image *discord.File) *discord.Message {
	embed := discord.Embed{Title: idleTitle, Color: embedColor}
	msg := &discord.Message{}
	if image != nil {
		embed.Image = &discord.EmbedImage{URL: discord.AttachmentURL(image.Name)}
		msg.Files = []discord.File{*image}
	} else {
		embed.Description = "Nothing playing"
	}
	msg.Embeds = []discord.Embed{embed}
	return msg
}
