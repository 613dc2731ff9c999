package settings

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var ErrInvalidEmoji = errors.New("invalid emoji")

var (
	customEmojiPattern = regexp.MustCompile(`^<(a?):([A-Za-z0-9_~]{0,32}):([0-9]{15,21})>$`)
	apiEmojiPattern    = regexp.MustCompile(`^(a:)?([A-Za-z0-9_~]{2,32}):([0-9]{15,21})$`)
)

// Emoji is a unicode or custom emoji as used in the reaction-role table.
type Emoji struct {
	ID       string
	Name     string
	Animated bool
}

// Key is the canonical table key: the character itself for unicode emoji,
// <:name:id> or <a:name:id> for custom ones.
func (e Emoji) Key() string {
	if e.ID == "" {
		return e.Name
	}
	if e.Animated {
		return "<a:" + e.Name + ":" + e.ID + ">"
	}
	return "<:" + e.Name + ":" + e.ID + ">"
}

// APIName is the form the reaction endpoints expect.
func (e Emoji) APIName() string {
	if e.ID == "" {
		return e.Name
	}
	return e.Name + ":" + e.ID
}

// ParseEmoji accepts <:name:id>, <a:name:id>, name:id, a:name:id or a unicode
// emoji.
func ParseEmoji(input string) (Emoji, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Emoji{}, ErrInvalidEmoji
	}
	if m := customEmojiPattern.FindStringSubmatch(input); m != nil {
		if len(m[2]) < 2 {
			return Emoji{}, ErrInvalidEmoji
		}
		return Emoji{ID: m[3], Name: m[2], Animated: m[1] == "a"}, nil
	}
	if m := apiEmojiPattern.FindStringSubmatch(input); m != nil {
		return Emoji{ID: m[3], Name: m[2], Animated: m[1] != ""}, nil
	}
	if len(input) > 64 || !utf8.ValidString(input) {
		return Emoji{}, ErrInvalidEmoji
	}
	nonASCII := false
	for _, r := range input {
		if unicode.IsSpace(r) || r == '<' || r == '>' || r == ':' {
			return Emoji{}, ErrInvalidEmoji
		}
		if r > unicode.MaxASCII {
			nonASCII = true
		}
	}
	if !nonASCII {
		return Emoji{}, ErrInvalidEmoji
	}
	return Emoji{Name: input}, nil
}

// EmojiKey builds the table key from the parts a reaction event carries.
func EmojiKey(id, name string, animated bool) string {
	return Emoji{ID: id, Name: name, Animated: animated}.Key()
}

// customEmojiID returns the id of a custom emoji key, or "" for unicode.
func customEmojiID(key string) string {
	if m := customEmojiPattern.FindStringSubmatch(key); m != nil {
		return m[3]
	}
	return ""
}

// EmojiFromKey splits a stored table key back into its parts.
func EmojiFromKey(key string) Emoji {
	if m := customEmojiPattern.FindStringSubmatch(key); m != nil {
		return Emoji{ID: m[3], Name: m[2], Animated: m[1] == "a"}
	}
	return Emoji{Name: key}
}
