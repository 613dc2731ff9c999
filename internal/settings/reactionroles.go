package settings

import (
	"bytes"
	"encoding/json"
	"sort"
)

// SourceKey is the reserved key under a message entry that holds the raw source
// of the posted message.
const SourceKey = "_source"

// ReactionRoles maps channel id -> message id -> binding.
type ReactionRoles map[string]map[string]*MessageBinding

// MessageBinding is the emoji -> role table of one message.
type MessageBinding struct {
	Roles  map[string]string
	Source string
}

func (m *MessageBinding) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(m.Roles)+1)
	for emoji, role := range m.Roles {
		out[emoji] = role
	}
	if m.Source != "" {
		out[SourceKey] = m.Source
	}
	// custom emoji keys and mentions keep their < > in the file
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (m *MessageBinding) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Roles = make(map[string]string, len(raw))
	for key, value := range raw {
		if key == SourceKey {
			var source string
			if err := json.Unmarshal(value, &source); err != nil {
				// structured payloads were once stored verbatim
				source = string(value)
			}
			m.Source = source
			continue
		}
		var role Snowflake
		if err := json.Unmarshal(value, &role); err != nil || role.IsZero() {
			continue
		}
		m.Roles[key] = role.String()
	}
	return nil
}

// Target addresses one bound message.
type Target struct {
	GuildID   string
	ChannelID string
	MessageID string
}

// Pair is one emoji -> role binding.
type Pair struct {
	Emoji string
	Role  string
}

// Resolve returns the role bound to emoji on a message. Custom emoji also match
// by id so that a renamed or re-animated emoji keeps working.
func (c Collection) Resolve(guildID, channelID, messageID, emoji string) (string, bool) {
	guild, ok := c[guildID]
	if !ok {
		return "", false
	}
	binding, ok := guild.ReactionRoles[channelID][messageID]
	if !ok {
		return "", false
	}
	if role, ok := binding.Roles[emoji]; ok {
		return role, true
	}
	id := customEmojiID(emoji)
	if id == "" {
		return "", false
	}
	for key, role := range binding.Roles {
		if customEmojiID(key) == id {
			return role, true
		}
	}
	return "", false
}

// Bind upserts one emoji -> role pair. The guild must exist.
func (c Collection) Bind(guildID, channelID, messageID, emoji, roleID string) bool {
	guild, ok := c[guildID]
	if !ok {
		return false
	}
	binding := guild.ReactionRoles.binding(channelID, messageID)
	if current, ok := binding.Roles[emoji]; ok && current == roleID {
		return false
	}
	binding.Roles[emoji] = roleID
	return true
}

// SetSource stores the raw source text of a bound message.
func (c Collection) SetSource(guildID, channelID, messageID, source string) bool {
	guild, ok := c[guildID]
	if !ok {
		return false
	}
	binding, ok := guild.ReactionRoles[channelID][messageID]
	if !ok || binding.Source == source {
		return false
	}
	binding.Source = source
	return true
}

// UnbindMessage removes a message's whole table and prunes its channel when it
// becomes empty.
func (c Collection) UnbindMessage(guildID, channelID, messageID string) bool {
	guild, ok := c[guildID]
	if !ok {
		return false
	}
	return guild.ReactionRoles.unbindMessage(channelID, messageID)
}

// UnbindChannel removes a whole channel entry.
func (c Collection) UnbindChannel(guildID, channelID string) bool {
	guild, ok := c[guildID]
	if !ok {
		return false
	}
	return guild.ReactionRoles.unbindChannel(channelID)
}

// UnbindEmoji removes one pair and prunes upward.
func (c Collection) UnbindEmoji(guildID, channelID, messageID, emoji string) bool {
	guild, ok := c[guildID]
	if !ok {
		return false
	}
	binding, ok := guild.ReactionRoles[channelID][messageID]
	if !ok {
		return false
	}
	if _, ok := binding.Roles[emoji]; !ok {
		return false
	}
	delete(binding.Roles, emoji)
	if len(binding.Roles) == 0 {
		guild.ReactionRoles.unbindMessage(channelID, messageID)
	}
	return true
}

// Pairs returns a message's pairs ordered by emoji key.
func (c Collection) Pairs(guildID, channelID, messageID string) []Pair {
	guild, ok := c[guildID]
	if !ok {
		return nil
	}
	binding, ok := guild.ReactionRoles[channelID][messageID]
	if !ok {
		return nil
	}
	pairs := make([]Pair, 0, len(binding.Roles))
	for emoji, role := range binding.Roles {
		pairs = append(pairs, Pair{Emoji: emoji, Role: role})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Emoji < pairs[j].Emoji })
	return pairs
}

// Targets lists every bound message, ordered for stable iteration.
func (c Collection) Targets() []Target {
	var targets []Target
	for guildID, guild := range c {
		if guild == nil {
			continue
		}
		for channelID, messages := range guild.ReactionRoles {
			for messageID := range messages {
				targets = append(targets, Target{GuildID: guildID, ChannelID: channelID, MessageID: messageID})
			}
		}
	}
	sort.Slice(targets, func(i, j int) bool {
		a, b := targets[i], targets[j]
		if a.GuildID != b.GuildID {
			return a.GuildID < b.GuildID
		}
		if a.ChannelID != b.ChannelID {
			return a.ChannelID < b.ChannelID
		}
		return a.MessageID < b.MessageID
	})
	return targets
}

func (r ReactionRoles) binding(channelID, messageID string) *MessageBinding {
	messages, ok := r[channelID]
	if !ok {
		messages = make(map[string]*MessageBinding)
		r[channelID] = messages
	}
	binding, ok := messages[messageID]
	if !ok || binding == nil {
		binding = &MessageBinding{Roles: make(map[string]string)}
		messages[messageID] = binding
	}
	if binding.Roles == nil {
		binding.Roles = make(map[string]string)
	}
	return binding
}

func (r ReactionRoles) unbindMessage(channelID, messageID string) bool {
	messages, ok := r[channelID]
	if !ok {
		return false
	}
	_, existed := messages[messageID]
	delete(messages, messageID)
	if len(messages) == 0 {
		delete(r, channelID)
	}
	return existed
}

func (r ReactionRoles) unbindChannel(channelID string) bool {
	if _, ok := r[channelID]; !ok {
		return false
	}
	delete(r, channelID)
	return true
}

// prune drops empty message and channel nodes.
func (r ReactionRoles) prune() bool {
	changed := false
	for channelID, messages := range r {
		for messageID, binding := range messages {
			if binding == nil || len(binding.Roles) == 0 {
				delete(messages, messageID)
				changed = true
			}
		}
		if len(messages) == 0 {
			delete(r, channelID)
			changed = true
		}
	}
	return changed
}

func (r ReactionRoles) clone() ReactionRoles {
	out := make(ReactionRoles, len(r))
	for channelID, messages := range r {
		copied := make(map[string]*MessageBinding, len(messages))
		for messageID, binding := range messages {
			if binding == nil {
				continue
			}
			roles := make(map[string]string, len(binding.Roles))
			for emoji, role := range binding.Roles {
				roles[emoji] = role
			}
			copied[messageID] = &MessageBinding{Roles: roles, Source: binding.Source}
		}
		out[channelID] = copied
	}
	return out
}
