package reactionroles

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var ErrEmptyPayload = errors.New("message has neither content nor embed")

// Payload is what gets posted as the reaction-role message.
type Payload struct {
	Content string
	Embed   *discordgo.MessageEmbed
}

// discohookPayload is the JSON shape exported by Discohook's JSON data editor.
type discohookPayload struct {
	Content *string                   `json:"content"`
	Embeds  []*discordgo.MessageEmbed `json:"embeds"`
}

// ParseSource reads the operator's message source. A JSON object is taken as a
// Discohook payload (content plus the first embed); anything else, including
// malformed JSON, is posted as literal text.
func ParseSource(source string) (Payload, error) {
	raw := strings.TrimSpace(source)
	if raw == "" {
		return Payload{}, ErrEmptyPayload
	}

	if strings.HasPrefix(raw, "{") {
		var data discohookPayload
		if err := json.Unmarshal([]byte(raw), &data); err == nil {
			var p Payload
			if data.Content != nil {
				p.Content = *data.Content
			}
			if len(data.Embeds) > 0 && data.Embeds[0] != nil && !emptyEmbed(data.Embeds[0]) {
				p.Embed = data.Embeds[0]
			}
			if strings.TrimSpace(p.Content) == "" && p.Embed == nil {
				return Payload{}, ErrEmptyPayload
			}
			return p, nil
		}
	}
	return Payload{Content: raw}, nil
}

// MessageSend converts the payload for posting.
func (p Payload) MessageSend() *discordgo.MessageSend {
	send := &discordgo.MessageSend{Content: p.Content}
	if p.Embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{p.Embed}
	}
	return send
}

func emptyEmbed(e *discordgo.MessageEmbed) bool {
	return e.Title == "" && e.Description == "" && len(e.Fields) == 0 &&
		e.Image == nil && e.Thumbnail == nil && e.Author == nil && e.Footer == nil
}
