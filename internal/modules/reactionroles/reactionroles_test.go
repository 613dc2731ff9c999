package reactionroles

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"moe-bot/internal/settings"
	"moe-bot/internal/storage"
	"moe-bot/internal/wizard"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSession struct {
	posted    []*discordgo.MessageSend
	reactions []string
	added     []string
	removed   []string
	reactErr  error
	onReact   func()
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.posted = append(f.posted, data)
	return &discordgo.Message{ID: "900", ChannelID: channelID}, nil
}

func (f *fakeSession) MessageReactionAdd(channelID, messageID, emojiID string, _ ...discordgo.RequestOption) error {
	if f.onReact != nil {
		f.onReact()
	}
	if f.reactErr != nil {
		return f.reactErr
	}
	f.reactions = append(f.reactions, emojiID)
	return nil
}

func (f *fakeSession) GuildMemberRoleAdd(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.added = append(f.added, userID+":"+roleID)
	return nil
}

func (f *fakeSession) GuildMemberRoleRemove(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.removed = append(f.removed, userID+":"+roleID)
	return nil
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "guild_config.json"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Update(func(c settings.Collection) bool { return c.Ensure("42", "") }))
	return store
}

func TestParseSource(t *testing.T) {
	p, err := ParseSource("  pick a role  ")
	require.NoError(t, err)
	assert.Equal(t, Payload{Content: "pick a role"}, p)

	p, err = ParseSource(`{"content":"hi","embeds":[{"title":"Roles","description":"react below"}]}`)
	require.NoError(t, err)
	assert.Equal(t, "hi", p.Content)
	require.NotNil(t, p.Embed)
	assert.Equal(t, "Roles", p.Embed.Title)

	p, err = ParseSource(`{"content": "broken"`)
	require.NoError(t, err)
	assert.Equal(t, `{"content": "broken"`, p.Content)
	assert.Nil(t, p.Embed)

	_, err = ParseSource(`{"content":"","embeds":[]}`)
	assert.ErrorIs(t, err, ErrEmptyPayload)
	_, err = ParseSource("   ")
	assert.ErrorIs(t, err, ErrEmptyPayload)

	send := Payload{Content: "x", Embed: &discordgo.MessageEmbed{Title: "t"}}.MessageSend()
	assert.Len(t, send.Embeds, 1)
}

func TestPublishBindsInOneSave(t *testing.T) {
	store := openStore(t)
	session := &fakeSession{}
	m := New(session, store, nil, zap.NewNop())
	before := store.Saves()

	plan := wizard.Plan{
		GuildID:   "42",
		ChannelID: "7",
		Source:    "pick a role",
		Pairs: []settings.Pair{
			{Emoji: "✅", Role: "501"},
			{Emoji: "<:haro:132681176592889045>", Role: "502"},
		},
	}
	id, err := m.Publish(context.Background(), plan, "1")
	require.NoError(t, err)
	assert.Equal(t, "900", id)
	assert.Equal(t, before+1, store.Saves())
	assert.Equal(t, []string{"✅", "haro:132681176592889045"}, session.reactions)

	role, ok := store.Resolve("42", "7", "900", "✅")
	require.True(t, ok)
	assert.Equal(t, "501", role)

	guild, _ := store.Guild("42")
	assert.Equal(t, "pick a role", guild.ReactionRoles["7"]["900"].Source)
}

func TestPublishReactsBeforeSaving(t *testing.T) {
	store := openStore(t)
	session := &fakeSession{}
	m := New(session, store, nil, zap.NewNop())
	before := store.Saves()

	var savesAtReact []uint64
	session.onReact = func() { savesAtReact = append(savesAtReact, store.Saves()) }

	plan := wizard.Plan{
		GuildID:   "42",
		ChannelID: "7",
		Source:    "pick a role",
		Pairs:     []settings.Pair{{Emoji: "✅", Role: "501"}, {Emoji: "❌", Role: "502"}},
	}
	_, err := m.Publish(context.Background(), plan, "1")
	require.NoError(t, err)
	assert.Equal(t, []uint64{before, before}, savesAtReact)
	assert.Equal(t, before+1, store.Saves())
}

func TestPublishRejectsEmptySource(t *testing.T) {
	session := &fakeSession{}
	m := New(session, openStore(t), nil, zap.NewNop())
	_, err := m.Publish(context.Background(), wizard.Plan{GuildID: "42", ChannelID: "7", Source: "{}"}, "1")
	assert.ErrorIs(t, err, ErrEmptyPayload)
	assert.Empty(t, session.posted)
}

func TestHandleReaction(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.Update(func(c settings.Collection) bool { return c.Bind("42", "7", "900", "✅", "501") }))
	session := &fakeSession{}
	m := New(session, store, nil, zap.NewNop())

	r := &discordgo.MessageReaction{GuildID: "42", ChannelID: "7", MessageID: "900", UserID: "100", Emoji: discordgo.Emoji{Name: "✅"}}
	role, err := m.HandleReaction(context.Background(), r, true)
	require.NoError(t, err)
	assert.Equal(t, "501", role)
	assert.Equal(t, []string{"100:501"}, session.added)

	_, err = m.HandleReaction(context.Background(), r, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"100:501"}, session.removed)

	other := *r
	other.Emoji = discordgo.Emoji{Name: "❌"}
	role, err = m.HandleReaction(context.Background(), &other, true)
	require.NoError(t, err)
	assert.Empty(t, role)
	assert.Len(t, session.added, 1)
}

func TestBindAndUnbind(t *testing.T) {
	store := openStore(t)
	session := &fakeSession{}
	m := New(session, store, nil, zap.NewNop())
	target := settings.Target{GuildID: "42", ChannelID: "7", MessageID: "900"}

	emoji, err := settings.ParseEmoji("✅")
	require.NoError(t, err)
	require.NoError(t, m.Bind(context.Background(), target, emoji, "501", "1"))
	_, ok := store.Resolve("42", "7", "900", "✅")
	assert.True(t, ok)

	require.NoError(t, m.Unbind(context.Background(), target, &emoji, "1"))
	_, ok = store.Resolve("42", "7", "900", "✅")
	assert.False(t, ok)

	assert.ErrorIs(t, m.Unbind(context.Background(), target, nil, "1"), ErrNotBound)
}

func TestBindFailsWhenReactionFails(t *testing.T) {
	store := openStore(t)
	session := &fakeSession{reactErr: errors.New("unknown emoji")}
	m := New(session, store, nil, zap.NewNop())

	emoji, err := settings.ParseEmoji("✅")
	require.NoError(t, err)
	err = m.Bind(context.Background(), settings.Target{GuildID: "42", ChannelID: "7", MessageID: "900"}, emoji, "501", "1")
	assert.Error(t, err)
	_, ok := store.Resolve("42", "7", "900", "✅")
	assert.False(t, ok)
}
