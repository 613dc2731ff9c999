package settings

import (
	"encoding/json"
)

const (
	DefaultWelcomeUser = "Heyo {member.mention} ~ Welcome to **{guild.name}** !"
	DefaultWelcomeBot  = "Beep boob, boop beep ~ {member.mention} just appeared !"
	DefaultGoodbyeUser = "{member.mention} just said a \"Goodbye\" ~ !\n\nWe hope you had a great time in **{guild.name}** !"
	DefaultGoodbyeBot  = "Beep boop-... ~ {member.mention} just disappeared !"
)

// Collection is the whole settings document keyed by guild id.
type Collection map[string]*Guild

type Guild struct {
	WelcomeChannel Greeting      `json:"welcome_channel"`
	GoodbyeChannel Greeting      `json:"goodbye_channel"`
	Greetings      bool          `json:"greetings"`
	ReactionRoles  ReactionRoles `json:"reaction_roles"`
	HoneyPot       HoneyPot      `json:"honey_pot"`
	AutoRoles      AutoRoles     `json:"auto_roles"`
}

type Greeting struct {
	ChannelID Snowflake `json:"channel_id"`
	Template  Templates `json:"message_template"`
}

type Templates struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// For picks the template for a human or a bot member.
func (t Templates) For(bot bool) string {
	if bot {
		return t.Bot
	}
	return t.User
}

type HoneyPot struct {
	ChannelID    Snowflake `json:"channel_id"`
	AllowOwner   bool      `json:"allow_owner"`
	ModChannelID Snowflake `json:"mod_channel_id"`
}

func (h HoneyPot) Enabled() bool { return !h.ChannelID.IsZero() }

// MarshalJSON writes an unset honeypot as {}.
func (h HoneyPot) MarshalJSON() ([]byte, error) {
	if !h.Enabled() {
		return []byte("{}"), nil
	}
	type plain HoneyPot
	return json.Marshal(plain(h))
}

type AutoRoles struct {
	Users []string `json:"users"`
	Bots  []string `json:"bots"`
}

// For returns the roles granted to a joining human or bot.
func (a AutoRoles) For(bot bool) []string {
	if bot {
		return a.Bots
	}
	return a.Users
}

// FillChannels points unset welcome/goodbye channels at systemChannel.
func (g *Guild) FillChannels(systemChannel string) bool {
	if systemChannel == "" {
		return false
	}
	changed := false
	if g.WelcomeChannel.ChannelID.IsZero() {
		g.WelcomeChannel.ChannelID = Snowflake(systemChannel)
		changed = true
	}
	if g.GoodbyeChannel.ChannelID.IsZero() {
		g.GoodbyeChannel.ChannelID = Snowflake(systemChannel)
		changed = true
	}
	return changed
}

// ChannelsMissing reports whether a greeting channel is still unset.
func (g *Guild) ChannelsMissing() bool {
	return g.WelcomeChannel.ChannelID.IsZero() || g.GoodbyeChannel.ChannelID.IsZero()
}

// Add appends roleID to the human or bot list unless it is already there.
func (a *AutoRoles) Add(bot bool, roleID string) bool {
	list := &a.Users
	if bot {
		list = &a.Bots
	}
	for _, id := range *list {
		if id == roleID {
			return false
		}
	}
	*list = append(*list, roleID)
	return true
}

// Remove drops roleID from the human or bot list.
func (a *AutoRoles) Remove(bot bool, roleID string) bool {
	list := &a.Users
	if bot {
		list = &a.Bots
	}
	for i, id := range *list {
		if id == roleID {
			*list = append((*list)[:i:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

// NewGuild returns the settings a guild gets on first observation. systemChannel
// may be empty.
func NewGuild(systemChannel string) *Guild {
	return &Guild{
		WelcomeChannel: Greeting{
			ChannelID: Snowflake(systemChannel),
			Template:  Templates{User: DefaultWelcomeUser, Bot: DefaultWelcomeBot},
		},
		GoodbyeChannel: Greeting{
			ChannelID: Snowflake(systemChannel),
			Template:  Templates{User: DefaultGoodbyeUser, Bot: DefaultGoodbyeBot},
		},
		Greetings:     true,
		ReactionRoles: ReactionRoles{},
		AutoRoles:     AutoRoles{Users: []string{}, Bots: []string{}},
	}
}

// UnmarshalJSON decodes over the defaults so that missing keys keep their
// default value. A legacy top-level moderation channel key is folded into
// honey_pot.
func (g *Guild) UnmarshalJSON(data []byte) error {
	*g = *NewGuild("")
	type plain Guild
	aux := struct {
		*plain
		ModChannelID       Snowflake `json:"mod_channel_id"`
		HoneyPotModChannel Snowflake `json:"honey_pot_mod_channel"`
	}{plain: (*plain)(g)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if g.HoneyPot.ModChannelID.IsZero() && g.HoneyPot.Enabled() {
		g.HoneyPot.ModChannelID = aux.ModChannelID
		if g.HoneyPot.ModChannelID.IsZero() {
			g.HoneyPot.ModChannelID = aux.HoneyPotModChannel
		}
	}
	return nil
}

// Upgrade patches a loaded guild in place. It reports whether anything changed.
func (g *Guild) Upgrade() bool {
	changed := false
	if g.WelcomeChannel.Template.User == "" {
		g.WelcomeChannel.Template.User = DefaultWelcomeUser
		changed = true
	}
	if g.WelcomeChannel.Template.Bot == "" {
		g.WelcomeChannel.Template.Bot = DefaultWelcomeBot
		changed = true
	}
	if g.GoodbyeChannel.Template.User == "" {
		g.GoodbyeChannel.Template.User = DefaultGoodbyeUser
		changed = true
	}
	if g.GoodbyeChannel.Template.Bot == "" {
		g.GoodbyeChannel.Template.Bot = DefaultGoodbyeBot
		changed = true
	}
	if g.ReactionRoles == nil {
		g.ReactionRoles = ReactionRoles{}
		changed = true
	}
	if g.ReactionRoles.prune() {
		changed = true
	}
	if g.AutoRoles.Users == nil {
		g.AutoRoles.Users = []string{}
		changed = true
	}
	if g.AutoRoles.Bots == nil {
		g.AutoRoles.Bots = []string{}
		changed = true
	}
	if !g.HoneyPot.Enabled() && (g.HoneyPot.AllowOwner || !g.HoneyPot.ModChannelID.IsZero()) {
		g.HoneyPot = HoneyPot{}
		changed = true
	}
	return changed
}

// Clone returns a deep copy.
func (g *Guild) Clone() *Guild {
	if g == nil {
		return nil
	}
	out := *g
	out.ReactionRoles = g.ReactionRoles.clone()
	out.AutoRoles = AutoRoles{
		Users: append([]string{}, g.AutoRoles.Users...),
		Bots:  append([]string{}, g.AutoRoles.Bots...),
	}
	return &out
}

// Upgrade runs the per-guild upgrade over the whole collection, dropping nil
// entries.
func (c Collection) Upgrade() bool {
	changed := false
	for id, guild := range c {
		if guild == nil {
			delete(c, id)
			changed = true
			continue
		}
		if guild.Upgrade() {
			changed = true
		}
	}
	return changed
}

// Ensure creates the guild's settings if they do not exist yet and reports
// whether it did.
func (c Collection) Ensure(guildID, systemChannel string) bool {
	if _, ok := c[guildID]; ok {
		return false
	}
	c[guildID] = NewGuild(systemChannel)
	return true
}

// Remove deletes the guild's settings and reports whether they existed.
func (c Collection) Remove(guildID string) bool {
	if _, ok := c[guildID]; !ok {
		return false
	}
	delete(c, guildID)
	return true
}

// ClearChannel drops every reference to a deleted channel. It reports whether
// anything changed.
func (g *Guild) ClearChannel(channelID string) bool {
	id := Snowflake(channelID)
	changed := g.ReactionRoles.unbindChannel(channelID)
	if g.WelcomeChannel.ChannelID == id {
		g.WelcomeChannel.ChannelID = ""
		changed = true
	}
	if g.GoodbyeChannel.ChannelID == id {
		g.GoodbyeChannel.ChannelID = ""
		changed = true
	}
	if g.HoneyPot.ChannelID == id {
		g.HoneyPot = HoneyPot{}
		changed = true
	} else if g.HoneyPot.ModChannelID == id {
		g.HoneyPot.ModChannelID = ""
		changed = true
	}
	return changed
}
