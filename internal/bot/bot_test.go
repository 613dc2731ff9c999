package bot

import (
	"errors"
	"strings"
	"testing"

	"moe-bot/internal/settings"
	"moe-bot/internal/wizard"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandDefinitions(t *testing.T) {
	want := []string{
		"ping", "set_welcome_channel", "set_goodbye_channel", "greetings", "message_template",
		"reaction_roles", "add_reaction_role", "remove_reaction_role", "auto_roles", "honey_pot", "report",
	}
	seen := make(map[string]bool)
	for _, cmd := range commandDefinitions() {
		assert.False(t, seen[cmd.Name], "duplicate command %s", cmd.Name)
		seen[cmd.Name] = true
		assert.NotEmpty(t, cmd.Description, cmd.Name)
		if cmd.Name != "ping" {
			require.NotNil(t, cmd.DMPermission, cmd.Name)
			assert.False(t, *cmd.DMPermission, cmd.Name)
		}
	}
	for _, name := range want {
		assert.True(t, seen[name], "missing command %s", name)
	}
	assert.Len(t, seen, len(want))
}

func TestFirstWritableChannel(t *testing.T) {
	channels := []*discordgo.Channel{
		{ID: "voice", Type: discordgo.ChannelTypeGuildVoice, Position: 0},
		{ID: "rules", Type: discordgo.ChannelTypeGuildText, Position: 1},
		{ID: "general", Type: discordgo.ChannelTypeGuildText, Position: 2},
		{ID: "lobby", Type: discordgo.ChannelTypeGuildText, Position: 0},
		nil,
	}
	writable := map[string]bool{"general": true, "rules": true, "voice": true}

	got := firstWritableChannel(channels, func(id string) bool { return writable[id] })
	assert.Equal(t, "rules", got)

	got = firstWritableChannel(channels, func(string) bool { return false })
	assert.Empty(t, got)
}

func TestParseCustomID(t *testing.T) {
	id := parseCustomID("rr:abc-123:channel")
	assert.Equal(t, customID{prefix: "rr", key: "abc-123", step: "channel"}, id)
	assert.Equal(t, "rr:abc-123:channel", id.String())

	assert.Equal(t, customID{prefix: "tpl", key: "welcome"}, parseCustomID("tpl:welcome"))
	assert.Equal(t, customID{prefix: "x", key: "y", step: "z:w"}, parseCustomID("x:y:z:w"))
	assert.Equal(t, "rr:s1:finish", wizardID("s1", stepFinish))
}

func TestCommandOptions(t *testing.T) {
	opts := optionMap([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "channel", Type: discordgo.ApplicationCommandOptionChannel, Value: "123"},
		{Name: "emoji", Type: discordgo.ApplicationCommandOptionString, Value: "  ✅ "},
		{Name: "allow_owner", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
	})

	assert.Equal(t, "123", opts.str("channel"))
	assert.Equal(t, "✅", opts.str("emoji"))
	assert.Empty(t, opts.str("missing"))

	allow, ok := opts.boolean("allow_owner")
	assert.True(t, ok)
	assert.True(t, allow)
	_, ok = opts.boolean("enabled")
	assert.False(t, ok)
}

func TestModalValues(t *testing.T) {
	data := discordgo.ModalSubmitInteractionData{
		CustomID: "tpl:welcome:submit",
		Components: []discordgo.MessageComponent{
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: "user", Value: "Hi {member.mention}"},
			}},
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: "bot", Value: "Beep"},
			}},
		},
	}
	assert.Equal(t, map[string]string{"user": "Hi {member.mention}", "bot": "Beep"}, modalValues(data))
}

func TestInteractionUserID(t *testing.T) {
	inGuild := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{User: &discordgo.User{ID: "1"}},
	}}
	inDM := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{User: &discordgo.User{ID: "2"}}}

	assert.Equal(t, "1", interactionUserID(inGuild))
	assert.Equal(t, "2", interactionUserID(inDM))
	assert.Empty(t, interactionUserID(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}))
}

func TestDescribeReactionRoles(t *testing.T) {
	table := settings.ReactionRoles{
		"20": {"200": {Roles: map[string]string{"✅": "501", "❌": "502"}}},
		"10": {"100": {Roles: map[string]string{"<:blob:123456789012345678>": "503"}}, "101": nil},
	}
	lines := describeReactionRoles("42", table)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "<#10> [message](https://discord.com/channels/42/10/100)"))
	assert.Contains(t, lines[0], "<:blob:123456789012345678> → <@&503>")
	assert.Contains(t, lines[1], "✅ → <@&501>")
	assert.Contains(t, lines[1], "❌ → <@&502>")

	assert.Empty(t, describeReactionRoles("42", settings.ReactionRoles{}))
}

func TestWizardView(t *testing.T) {
	s := wizard.NewSession("s1", "42", "1")
	require.NoError(t, s.Apply(wizard.SubmitMessage("pick")))

	content, components := wizardView(s, 60)
	assert.Contains(t, content, "Select the channel")
	require.Len(t, components, 2)
	menu := components[0].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	assert.Equal(t, discordgo.ChannelSelectMenu, menu.MenuType)
	assert.Equal(t, "rr:s1:channel", menu.CustomID)

	require.NoError(t, s.Apply(wizard.SelectChannel("7")))
	content, components = wizardView(s, 60)
	assert.Contains(t, content, "<#7>")
	menu = components[0].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	assert.Equal(t, discordgo.RoleSelectMenu, menu.MenuType)

	require.NoError(t, s.Apply(wizard.SelectRole("501")))
	content, components = wizardView(s, 60)
	assert.Contains(t, content, "<@&501>")
	assert.Contains(t, content, "60 seconds")
	require.Len(t, components, 1)

	require.NoError(t, s.Apply(wizard.CaptureEmoji("✅")))
	content, components = wizardView(s, 60)
	assert.Contains(t, content, "✅ → <@&501>")
	buttons := components[0].(discordgo.ActionsRow).Components
	require.Len(t, buttons, 3)
	assert.Equal(t, "rr:s1:more", buttons[0].(discordgo.Button).CustomID)
	assert.Equal(t, "rr:s1:finish", buttons[1].(discordgo.Button).CustomID)
	assert.Equal(t, "rr:s1:cancel", buttons[2].(discordgo.Button).CustomID)
}

func TestWizardErrorText(t *testing.T) {
	assert.Contains(t, wizardErrorText(wizard.ErrNotOperator), "Only the person")
	assert.Contains(t, wizardErrorText(wizard.ErrSessionNotFound), "expired")
	assert.Contains(t, wizardErrorText(wizard.ErrEmojiAlreadyBound), "emoji")
	assert.Contains(t, wizardErrorText(errors.New("boom")), "not available")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "*(empty)*", codeBlock(""))
	assert.Equal(t, "Welcome", titleCase("welcome"))
}

func TestExpiredText(t *testing.T) {
	assert.Equal(t, wizardTimedOut, expiredText(wizard.ReasonTimeout))
	assert.Equal(t, wizardReplaced, expiredText(wizard.ReasonReplaced))
	assert.Equal(t, wizardIdle, expiredText(wizard.ReasonIdle))
}
